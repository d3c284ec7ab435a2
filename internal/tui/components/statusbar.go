package components

import (
	"fmt"

	serial "github.com/allbin/serial-assistant"
	"github.com/allbin/serial-assistant/internal/tui/colors"
	"github.com/allbin/serial-assistant/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

type ConnectionInfo struct {
	Config   serial.PortConfig
	Encoding string
}

// String renders e.g. "115200 8N1 none utf-8"
func (ci ConnectionInfo) String() string {
	if ci.Encoding == "" {
		return ci.Config.String()
	}
	return fmt.Sprintf("%s %s", ci.Config, ci.Encoding)
}

type StatusBar struct {
	portPath       string
	status         styles.StatusType
	message        string
	err            error
	width          int
	connectionInfo *ConnectionInfo
}

func NewStatusBar(portPath string) *StatusBar {
	return &StatusBar{
		portPath: portPath,
		status:   styles.StatusConnecting,
		message:  "Initializing...",
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetConnectionInfo(info *ConnectionInfo) {
	sb.connectionInfo = info
}

func (sb *StatusBar) SetConnecting() {
	sb.status = styles.StatusConnecting
	sb.message = "Connecting..."
	sb.err = nil
}

func (sb *StatusBar) SetConnected() {
	sb.status = styles.StatusConnected
	sb.message = "Connected - listening for data..."
	sb.err = nil
}

func (sb *StatusBar) SetDisconnected(err error) {
	if err != nil {
		sb.status = styles.StatusError
		sb.message = fmt.Sprintf("Connection failed: %v", err)
		sb.err = err
	} else {
		sb.status = styles.StatusDisconnected
		sb.message = "Disconnected"
		sb.err = nil
	}
}

// Message is the human-readable connection state
func (sb *StatusBar) Message() string {
	return sb.message
}

func (sb *StatusBar) indicator() string {
	var symbol string
	switch sb.status {
	case styles.StatusConnected:
		symbol = "●"
	case styles.StatusError:
		symbol = "✗"
	default:
		symbol = "○"
	}
	return styles.GetStatusStyle(sb.status).Render(symbol)
}

// ComprehensiveStatusBar renders a comprehensive status bar with all connection info
func (sb *StatusBar) ComprehensiveStatusBar(inputMode, sendingMode, viewMode, timestamp string) string {
	terminalWidth := sb.width
	if terminalWidth <= 0 {
		terminalWidth = 80
	}

	// Section 1: Mode indicator (like NORMAL in nvim)
	modeStyle := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(colors.Blue).
		Bold(true).
		Padding(0, 1)
	modeText := "NORMAL"
	if inputMode == "INSERT" {
		modeStyle = modeStyle.Background(colors.Green)
		modeText = "INSERT"
	}
	mode := modeStyle.Render(modeText)

	// Section 2: Port path with connection indicator
	portStyle := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1)
	port := portStyle.Render(sb.portPath)

	// Section 3: line settings
	connInfo := "⚡ serial"
	if sb.connectionInfo != nil {
		connInfo = "⚡ " + sb.connectionInfo.String()
	}
	connInfoStyle := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1)
	connectionDetails := connInfoStyle.Render(connInfo)

	viewStyle := lipgloss.NewStyle().
		Foreground(colors.Lavender).
		Padding(0, 1)
	view := viewStyle.Render(viewMode)

	timeStyle := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1)
	clock := timeStyle.Render(timestamp)

	dividerStyle := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1)
	divider := dividerStyle.Render("│")

	// Sending mode indicator with Tab hint (only show in INSERT mode)
	leftParts := []string{mode, port, sb.indicator()}
	if inputMode == "INSERT" {
		sendingModeStyle := lipgloss.NewStyle().
			Foreground(colors.Peach).
			Bold(true).
			Padding(0, 1)
		leftParts = append(leftParts, sendingModeStyle.Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode)))
	}
	leftParts = append(leftParts, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, leftParts...)

	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, connectionDetails, divider, view, divider, clock)

	spacerWidth := terminalWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	statusBarStyle := lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(terminalWidth)

	content := lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide)
	return statusBarStyle.Render(content)
}
