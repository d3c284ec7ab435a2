package models

import (
	"strings"
	"sync"

	serial "github.com/allbin/serial-assistant"
	"github.com/allbin/serial-assistant/internal/tui/components"
)

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	switch m {
	case InputModeNormal:
		return "NORMAL"
	case InputModeInsert:
		return "INSERT"
	default:
		return "NORMAL"
	}
}

type ConnectionStatusMsg struct {
	Connected bool
	Error     error
}

// TXResultMsg reports the outcome of a write started from the input line
type TXResultMsg struct {
	Index int
	Bytes int
	Error error
}

type SerialModel struct {
	session  *serial.Session
	portPath string

	connected bool
	rawData   []components.DataReceivedMsg
	err       error
	ready     bool

	inputMode InputMode

	mu sync.RWMutex
}

func NewSerialModel(session *serial.Session, portPath string) *SerialModel {
	return &SerialModel{
		session:   session,
		portPath:  portPath,
		rawData:   make([]components.DataReceivedMsg, 0),
		inputMode: InputModeNormal,
	}
}

func (m *SerialModel) Session() *serial.Session {
	return m.session
}

func (m *SerialModel) GetPortPath() string {
	return m.portPath
}

func (m *SerialModel) IsConnected() bool {
	return m.connected
}

func (m *SerialModel) SetConnected(connected bool) {
	m.connected = connected
}

func (m *SerialModel) GetError() error {
	return m.err
}

func (m *SerialModel) SetError(err error) {
	m.err = err
}

func (m *SerialModel) IsReady() bool {
	return m.ready
}

func (m *SerialModel) SetReady(ready bool) {
	m.ready = ready
}

func (m *SerialModel) GetRawData() []components.DataReceivedMsg {
	return m.rawData
}

// AddRawData appends msg and returns its index for later status updates
func (m *SerialModel) AddRawData(msg components.DataReceivedMsg) int {
	m.rawData = append(m.rawData, msg)
	return len(m.rawData) - 1
}

// SetTXStatus updates a previously added TX entry. Stale indices are ignored.
func (m *SerialModel) SetTXStatus(index int, status string) bool {
	if index < 0 || index >= len(m.rawData) || !m.rawData[index].IsTX {
		return false
	}
	m.rawData[index].Status = status
	return true
}

func (m *SerialModel) ClearData() {
	m.rawData = make([]components.DataReceivedMsg, 0)
}

// ReceivedText concatenates the decoded text of every RX entry
func (m *SerialModel) ReceivedText() string {
	var sb strings.Builder
	for _, msg := range m.rawData {
		if !msg.IsTX {
			sb.WriteString(msg.Text)
		}
	}
	return sb.String()
}

func (m *SerialModel) GetInputMode() InputMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode
}

func (m *SerialModel) SetInputMode(mode InputMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputMode = mode
}

func (m *SerialModel) ToggleInputMode() InputMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.inputMode {
	case InputModeNormal:
		m.inputMode = InputModeInsert
	case InputModeInsert:
		m.inputMode = InputModeNormal
	}
	return m.inputMode
}

func (m *SerialModel) IsInInsertMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode == InputModeInsert
}

// Cleanup closes the port and stops event delivery
func (m *SerialModel) Cleanup() error {
	if m.session == nil {
		return nil
	}
	return m.session.Shutdown()
}
