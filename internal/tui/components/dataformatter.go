package components

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/allbin/serial-assistant/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

// TX status values shown next to sent data
const (
	TXPending = "PENDING"
	TXWritten = "WRITTEN"
	TXError   = "ERROR"
)

type DataReceivedMsg struct {
	Timestamp time.Time
	Data      []byte
	Text      string // decoded text for RX, the typed line for text TX
	IsTX      bool
	Status    string // For TX messages: PENDING, WRITTEN, ERROR; empty for RX
}

type DisplayMode struct {
	ShowHex        bool
	ShowText       bool
	HideTimestamps bool
	HideIndicators bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(showHex, showText bool) *DataFormatter {
	return &DataFormatter{
		mode: DisplayMode{
			ShowHex:  showHex,
			ShowText: showText,
		},
	}
}

func (df *DataFormatter) SetDisplayMode(showHex, showText bool) {
	df.mode.ShowHex = showHex
	df.mode.ShowText = showText
}

// SetFormatOptions controls the line prefix
func (df *DataFormatter) SetFormatOptions(hideTimestamps, hideIndicators bool) {
	df.mode.HideTimestamps = hideTimestamps
	df.mode.HideIndicators = hideIndicators
}

func (df *DataFormatter) GetDisplayMode() DisplayMode {
	return df.mode
}

// printableText renders msg as text with control characters made visible.
func printableText(msg DataReceivedMsg) string {
	text := msg.Text
	if text == "" && len(msg.Data) > 0 {
		text = strings.ToValidUTF8(string(msg.Data), "\uFFFD")
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return r
		case r == '\r':
			return -1
		case r == '\n':
			return '⏎'
		case unicode.IsControl(r):
			return '·'
		default:
			return r
		}
	}, text)
}

func (df *DataFormatter) indicator(msg DataReceivedMsg) string {
	if !msg.IsTX {
		return lipgloss.NewStyle().
			Foreground(colors.Sky).
			Bold(true).
			Render("↙ RX")
	}

	var txColor lipgloss.Color
	var statusText string
	switch msg.Status {
	case TXPending:
		txColor = colors.Yellow
		statusText = "TX ○"
	case TXWritten:
		txColor = colors.Green
		statusText = "TX ✓"
	case TXError:
		txColor = colors.Red
		statusText = "TX ✗"
	default:
		txColor = colors.Peach
		statusText = "TX"
	}
	return lipgloss.NewStyle().
		Foreground(txColor).
		Bold(true).
		Render("↗ " + statusText)
}

func (df *DataFormatter) FormatMessage(msg DataReceivedMsg) string {
	var parts []string

	if df.mode.ShowHex {
		parts = append(parts, fmt.Sprintf("HEX: % X", msg.Data))
	}
	if df.mode.ShowText {
		parts = append(parts, "TEXT: "+printableText(msg))
	}
	// If both are disabled, show raw bytes count
	if !df.mode.ShowHex && !df.mode.ShowText {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(msg.Data)))
	}

	var prefix []string
	if !df.mode.HideTimestamps {
		prefix = append(prefix, lipgloss.NewStyle().
			Foreground(colors.Subtext0).
			Render(fmt.Sprintf("[%s]", msg.Timestamp.Format("15:04:05.000"))))
	}
	if !df.mode.HideIndicators {
		prefix = append(prefix, df.indicator(msg)+":")
	}

	body := strings.Join(parts, "  ")
	if len(prefix) == 0 {
		return body
	}
	return strings.Join(prefix, " ") + " " + body
}

func (df *DataFormatter) FormatMessages(messages []DataReceivedMsg) []string {
	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = df.FormatMessage(msg)
	}
	return formatted
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleText() {
	df.mode.ShowText = !df.mode.ShowText
}

func (df *DataFormatter) ToggleTimestamps() {
	df.mode.HideTimestamps = !df.mode.HideTimestamps
}

func (df *DataFormatter) ToggleIndicators() {
	df.mode.HideIndicators = !df.mode.HideIndicators
}
