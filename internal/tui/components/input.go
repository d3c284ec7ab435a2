package components

import (
	"fmt"
	"strconv"
	"strings"

	serial "github.com/allbin/serial-assistant"
	"github.com/allbin/serial-assistant/internal/tui/colors"
	"github.com/allbin/serial-assistant/internal/tui/styles"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/encoding"
)

const maxHistory = 100

// SendingMode selects how the input line is turned into bytes
type SendingMode int

const (
	SendingModeText SendingMode = iota
	SendingModeHex
)

func (s SendingMode) String() string {
	if s == SendingModeHex {
		return "HEX"
	}
	return "TEXT"
}

// LineEnding is appended to every line sent in text mode
type LineEnding int

const (
	LineEndingLF LineEnding = iota
	LineEndingCRLF
	LineEndingCR
	LineEndingNone
)

var lineEndingNames = []string{"lf", "crlf", "cr", "none"}

func (l LineEnding) String() string {
	if l < 0 || int(l) >= len(lineEndingNames) {
		return "LineEnding(" + strconv.Itoa(int(l)) + ")"
	}
	return lineEndingNames[l]
}

// Suffix returns the characters the ending adds to a line
func (l LineEnding) Suffix() string {
	switch l {
	case LineEndingCRLF:
		return "\r\n"
	case LineEndingCR:
		return "\r"
	case LineEndingNone:
		return ""
	default:
		return "\n"
	}
}

// ParseLineEnding accepts lf, crlf, cr or none
func ParseLineEnding(s string) (LineEnding, error) {
	for i, name := range lineEndingNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return LineEnding(i), nil
		}
	}
	return LineEndingLF, fmt.Errorf("unknown line ending %q (use lf, crlf, cr or none)", s)
}

// ParseHex converts hex strings to bytes. Supports:
// - Space-separated: "48 65 6C 6C 6F"
// - Continuous: "48656C6C6F"
// - Prefixed bytes: "0x48 0x65"
func ParseHex(hexStr string) ([]byte, error) {
	var sb strings.Builder
	for _, field := range strings.Fields(hexStr) {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		sb.WriteString(field)
	}
	cleanHex := sb.String()
	if len(cleanHex) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	for _, char := range cleanHex {
		if !((char >= '0' && char <= '9') || (char >= 'A' && char <= 'F') || (char >= 'a' && char <= 'f')) {
			return nil, fmt.Errorf("invalid hex character '%c'", char)
		}
	}

	// Must be even number of hex digits to form complete bytes
	if len(cleanHex)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even number of digits (got %d)", len(cleanHex))
	}

	out := make([]byte, 0, len(cleanHex)/2)
	for i := 0; i < len(cleanHex); i += 2 {
		b, err := strconv.ParseUint(cleanHex[i:i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte '%s': %v", cleanHex[i:i+2], err)
		}
		out = append(out, byte(b))
	}
	return out, nil
}

// Input is the line editor of the connect view. Text lines are encoded with
// the port's encoding and terminated with the configured line ending.
type Input struct {
	textInput     textinput.Model
	sendingMode   SendingMode
	lineEnding    LineEnding
	enc           encoding.Encoding
	history       []string
	historyIndex  int
	draft         string // line being edited before history navigation started
	terminalWidth int
}

func NewInput(enc encoding.Encoding, ending LineEnding) *Input {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Prompt = ""
	ti.Focus()

	in := &Input{
		textInput:    ti,
		sendingMode:  SendingModeText,
		lineEnding:   ending,
		enc:          enc,
		historyIndex: -1,
	}
	in.updatePlaceholder()
	return in
}

func (i *Input) SetWidth(width int) {
	i.terminalWidth = width
	// border(2) + padding(2) + prompt(1) + space(1)
	i.textInput.Width = max(width-6, 20)
}

func (i *Input) Focus() {
	i.textInput.Focus()
}

func (i *Input) Blur() {
	i.textInput.Blur()
}

func (i *Input) Value() string {
	return i.textInput.Value()
}

func (i *Input) SetValue(value string) {
	i.textInput.SetValue(value)
}

func (i *Input) ToggleSendingMode() {
	if i.sendingMode == SendingModeText {
		i.sendingMode = SendingModeHex
	} else {
		i.sendingMode = SendingModeText
	}
	i.updatePlaceholder()
}

func (i *Input) GetSendingMode() SendingMode {
	return i.sendingMode
}

// CycleLineEnding switches to the next line ending and returns it
func (i *Input) CycleLineEnding() LineEnding {
	i.lineEnding = (i.lineEnding + 1) % LineEnding(len(lineEndingNames))
	i.updatePlaceholder()
	return i.lineEnding
}

func (i *Input) LineEnding() LineEnding {
	return i.lineEnding
}

// ModeLabel describes the sending mode for the status bar
func (i *Input) ModeLabel() string {
	if i.sendingMode == SendingModeHex {
		return i.sendingMode.String()
	}
	return i.sendingMode.String() + "+" + strings.ToUpper(i.lineEnding.String())
}

func (i *Input) updatePlaceholder() {
	if i.sendingMode == SendingModeHex {
		i.textInput.Placeholder = "Enter hex (e.g. 48656C6C6F or 48 65 6C 6C 6F)..."
		return
	}
	i.textInput.Placeholder = "Type message and press Enter to send..."
}

// Encode converts the current line into the bytes to write. In text mode it
// also returns the line as typed, for display; in hex mode text is empty.
func (i *Input) Encode() (data []byte, text string, err error) {
	line := i.Value()
	if i.sendingMode == SendingModeHex {
		data, err = ParseHex(line)
		if err != nil {
			return nil, "", fmt.Errorf("invalid hex input: %w", err)
		}
		return data, "", nil
	}

	data, err = serial.EncodeText(i.enc, line+i.lineEnding.Suffix())
	if err != nil {
		return nil, "", err
	}
	return data, line, nil
}

func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return i, cmd
}

func (i *Input) ViewWithMode(isInsertMode bool) string {
	promptSymbol := ">"
	promptStyle := lipgloss.NewStyle().Foreground(colors.Green).Bold(true)
	if i.sendingMode == SendingModeHex {
		promptSymbol = "#"
		promptStyle = promptStyle.Foreground(colors.Yellow)
	}
	styledPrompt := promptStyle.Render(promptSymbol)

	var content string
	if isInsertMode {
		content = lipgloss.JoinHorizontal(lipgloss.Left, styledPrompt, " ", i.textInput.View())
	} else {
		instruction := lipgloss.NewStyle().
			Foreground(colors.Overlay0).
			Render("Press 'i' to enter insert mode")
		content = lipgloss.JoinHorizontal(lipgloss.Left, styledPrompt, " ", instruction)
	}

	// RoundedBorder and the 0,1 padding take four columns
	inputStyle := styles.InputStyle.
		Width(max(i.terminalWidth-4, 10)).
		AlignHorizontal(lipgloss.Left)
	if isInsertMode {
		inputStyle = inputStyle.BorderForeground(colors.Green)
	}

	return inputStyle.Render(content)
}

// AddToHistory adds a command to the history if it's not empty or a duplicate
func (i *Input) AddToHistory(command string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return
	}
	if len(i.history) > 0 && i.history[len(i.history)-1] == command {
		return
	}

	i.history = append(i.history, command)
	if len(i.history) > maxHistory {
		i.history = i.history[1:]
	}

	i.historyIndex = -1
	i.draft = ""
}

// NavigateHistoryUp moves up in command history
func (i *Input) NavigateHistoryUp() {
	if len(i.history) == 0 {
		return
	}

	if i.historyIndex == -1 {
		i.draft = i.textInput.Value()
		i.historyIndex = len(i.history) - 1
	} else if i.historyIndex > 0 {
		i.historyIndex--
	}

	i.textInput.SetValue(i.history[i.historyIndex])
}

// NavigateHistoryDown moves down in command history, ending at the draft
func (i *Input) NavigateHistoryDown() {
	if len(i.history) == 0 || i.historyIndex == -1 {
		return
	}

	if i.historyIndex < len(i.history)-1 {
		i.historyIndex++
		i.textInput.SetValue(i.history[i.historyIndex])
		return
	}
	i.historyIndex = -1
	i.textInput.SetValue(i.draft)
	i.draft = ""
}
