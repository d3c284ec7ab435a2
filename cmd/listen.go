/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"time"

	serial "github.com/allbin/serial-assistant"
	"github.com/allbin/serial-assistant/internal/tui/colors"
	"github.com/allbin/serial-assistant/internal/tui/components"
	"github.com/allbin/serial-assistant/internal/tui/keys"
	"github.com/allbin/serial-assistant/internal/tui/models"
	"github.com/allbin/serial-assistant/internal/tui/styles"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen <port>",
	Short: "Listen for data on a serial port with real-time display",
	Long: `Listen for incoming data on a serial port with a real-time TUI display.

This command opens the specified serial port and displays incoming data in real-time
using a terminal user interface. Features include:
- Real-time data streaming with timestamps
- Text and hex display modes
- Connection status indicators
- Configurable line settings and text encoding

Example usage:
  serial-assistant listen /dev/ttyUSB0
  serial-assistant listen 0 --baud 9600
  serial-assistant listen /dev/ttyUSB0 --raw`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noTimestamps, _ := cmd.Flags().GetBool("no-timestamps")
		showIndicators, _ := cmd.Flags().GetBool("show-indicators")
		rawMode, _ := cmd.Flags().GetBool("raw")

		logger, closeLog, err := newTUILogger()
		if err != nil {
			return err
		}
		defer closeLog()

		s, cfg, err := openSession(cmd, args[0], logger)
		if err != nil {
			return err
		}

		terminal := components.NewTerminal(80, 20)
		// Default: no indicators, show timestamps
		if rawMode {
			terminal.SetFormatOptions(true, true)
		} else {
			terminal.SetFormatOptions(noTimestamps, !showIndicators)
		}

		return runListenTUI(s, cfg, viper.GetString("encoding"), terminal)
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)

	addPortFlags(listenCmd)

	// Add flags for display formatting
	listenCmd.Flags().Bool("no-timestamps", false, "Hide timestamps from output")
	listenCmd.Flags().Bool("show-indicators", false, "Show RX/TX indicators (off by default)")
	listenCmd.Flags().Bool("raw", false, "Raw output mode: no timestamps, no indicators")
}

// listenModel represents the Bubble Tea model for the listen command
type listenModel struct {
	*models.SerialModel
	cfg       serial.PortConfig
	terminal  *components.Terminal
	statusBar *components.StatusBar
	help      help.Model
	keys      keys.TerminalKeys
}

func runListenTUI(s *serial.Session, cfg serial.PortConfig, encodingName string, terminal *components.Terminal) error {
	m := listenModel{
		SerialModel: models.NewSerialModel(s, cfg.Name),
		cfg:         cfg,
		terminal:    terminal,
		statusBar:   components.NewStatusBar(cfg.Name),
		help:        help.New(),
		keys:        keys.NewTerminalKeys(),
	}
	m.statusBar.SetConnecting()
	m.statusBar.SetConnectionInfo(&components.ConnectionInfo{Config: cfg, Encoding: encodingName})

	p := tea.NewProgram(&m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	unsubscribe := s.Subscribe(programObserver(p))

	_, err := p.Run()

	unsubscribe()
	if cerr := m.Cleanup(); err == nil {
		err = cerr
	}
	return err
}

func (m *listenModel) Init() tea.Cmd {
	return openCmd(m.Session(), m.cfg)
}

func (m *listenModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Status bar is single line
		statusBarHeight := 1

		m.terminal.SetSize(msg.Width, msg.Height-statusBarHeight)
		m.statusBar.SetWidth(msg.Width)
		m.SetReady(true)

	case models.ConnectionStatusMsg:
		m.SetConnected(msg.Connected)
		switch {
		case msg.Error != nil:
			m.SetError(msg.Error)
			m.statusBar.SetDisconnected(msg.Error)
		case msg.Connected:
			m.SetError(nil)
			m.statusBar.SetConnected()
		case m.GetError() == nil:
			m.statusBar.SetDisconnected(nil)
		}

	case components.DataReceivedMsg:
		// Ensure we're ready to display data - if window size hasn't been set yet,
		// use reasonable defaults
		if !m.IsReady() {
			m.terminal.SetSize(80, 20)
			m.SetReady(true)
		}

		m.AddRawData(msg)
		m.terminal.AddMessage(msg)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Clear):
			m.ClearData()
			m.terminal.Clear()

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll

		case key.Matches(msg, m.keys.ToggleHex):
			m.terminal.ToggleHex()
			m.terminal.RefreshDisplayWithRawData(m.GetRawData())

		case key.Matches(msg, m.keys.ToggleText):
			m.terminal.ToggleText()
			m.terminal.RefreshDisplayWithRawData(m.GetRawData())

		case key.Matches(msg, m.keys.ToggleTimestamps):
			m.terminal.ToggleTimestamps()
			m.terminal.RefreshDisplayWithRawData(m.GetRawData())

		case key.Matches(msg, m.keys.ToggleIndicators):
			m.terminal.ToggleIndicators()
			m.terminal.RefreshDisplayWithRawData(m.GetRawData())

		case key.Matches(msg, m.keys.VisualMode):
			m.terminal.ToggleViewMode()

		case key.Matches(msg, m.keys.Up):
			m.terminal.ScrollUp()

		case key.Matches(msg, m.keys.Down):
			m.terminal.ScrollDown()

		case key.Matches(msg, m.keys.GotoTop):
			m.terminal.GotoTop()

		case key.Matches(msg, m.keys.GotoBottom):
			m.terminal.GotoBottom()
		}
	}

	// Update terminal viewport for window resize messages
	if _, ok := msg.(tea.WindowSizeMsg); ok {
		_, cmd := m.terminal.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *listenModel) View() string {
	var content string
	if m.IsReady() {
		content = m.terminal.View()
	} else {
		content = "Initializing..."
	}

	// Listen mode is always NORMAL, no sending mode
	timestamp := time.Now().Format("15:04:05")
	statusBar := m.statusBar.ComprehensiveStatusBar("NORMAL", "LISTEN", m.terminal.ViewMode().String(), timestamp)

	contentWithBorder := styles.ContentBorderStyle.Render(content)

	if m.help.ShowAll {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			contentWithBorder,
			helpBox(m.help.View(m.keys)),
			statusBar,
		)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		contentWithBorder,
		statusBar,
	)
}

func helpBox(content string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colors.Surface2).
		Padding(1, 2).
		Margin(1, 0).
		Render(content)
}
