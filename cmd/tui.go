/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	serial "github.com/allbin/serial-assistant"
	"github.com/allbin/serial-assistant/internal/tui/components"
	"github.com/allbin/serial-assistant/internal/tui/models"
	tea "github.com/charmbracelet/bubbletea"
)

// sender is the part of *tea.Program the session observer needs
type sender interface {
	Send(msg tea.Msg)
}

// programObserver forwards session events to a running bubbletea program.
// Send blocks until the program takes the message, which keeps the
// session's event order intact.
func programObserver(p sender) serial.Observer {
	return serial.ObserverFunc(func(e serial.Event) {
		switch e.Kind {
		case serial.EventDataReceived:
			p.Send(components.DataReceivedMsg{
				Timestamp: e.Time,
				Data:      e.Data,
				Text:      e.Text,
			})
		case serial.EventStatusChanged:
			p.Send(models.ConnectionStatusMsg{Connected: e.Open})
		case serial.EventTransportError:
			p.Send(models.ConnectionStatusMsg{Connected: false, Error: e.Err})
		}
	})
}

// openCmd opens the port in the background; success is reported by the
// session's status event, failure here.
func openCmd(s *serial.Session, cfg serial.PortConfig) tea.Cmd {
	return func() tea.Msg {
		if err := s.Open(cfg); err != nil {
			return models.ConnectionStatusMsg{Connected: false, Error: err}
		}
		return nil
	}
}

// writeCmd writes data and reports the outcome for the TX entry at index
func writeCmd(s *serial.Session, index int, data []byte) tea.Cmd {
	return func() tea.Msg {
		n, err := s.Write(data)
		if err == nil && n < len(data) {
			err = serial.ErrPortClosed
		}
		return models.TXResultMsg{Index: index, Bytes: n, Error: err}
	}
}

type savedMsg struct {
	Path  string
	Error error
}

// saveCmd writes text to a timestamped file in dir
func saveCmd(saver *serial.TextSaver, dir, text string) tea.Cmd {
	return func() tea.Msg {
		path := filepath.Join(dir, fmt.Sprintf("serial-%s.txt", time.Now().Format("20060102-150405")))
		return savedMsg{Path: path, Error: saver.Save(path, text)}
	}
}
