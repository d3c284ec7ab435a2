/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"time"

	serial "github.com/allbin/serial-assistant"
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

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <port>",
	Short: "Connect to a serial port with bidirectional communication",
	Long: `Connect to a serial port with a bidirectional terminal interface.

This command opens the specified serial port and provides an interactive terminal
with real-time bidirectional communication. Features include:
- Real-time data streaming with timestamps
- Input field for sending text or hex data, with history
- Text is sent in the port's --encoding, ended with --line-ending (ctrl+l cycles)
- Text and hex display modes
- Connection status indicators
- Saving received text to a file (ctrl+s)

Example usage:
  serial-assistant connect /dev/ttyUSB0
  serial-assistant connect 0 --baud 9600 --parity even
  serial-assistant connect /dev/ttyUSB0 --encoding gbk --save-dir ~/captures
  serial-assistant connect 0 --line-ending crlf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, closeLog, err := newTUILogger()
		if err != nil {
			return err
		}
		defer closeLog()

		s, cfg, err := openSession(cmd, args[0], logger)
		if err != nil {
			return err
		}

		ending, err := components.ParseLineEnding(viper.GetString("line-ending"))
		if err != nil {
			s.Shutdown()
			return err
		}

		saveDir, _ := cmd.Flags().GetString("save-dir")
		return runConnectTUI(s, cfg, viper.GetString("encoding"), saveDir, ending)
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)

	addPortFlags(connectCmd)
	connectCmd.Flags().String("save-dir", ".", "Directory for text saved with ctrl+s")
	connectCmd.Flags().String("line-ending", "lf", "Appended to each text line sent (lf, crlf, cr, none)")
}

// connectModel represents the Bubble Tea model for the connect command
type connectModel struct {
	*models.SerialModel
	cfg       serial.PortConfig
	saver     *serial.TextSaver
	saveDir   string
	terminal  *components.Terminal
	statusBar *components.StatusBar
	input     *components.Input
	help      help.Model
	keys      keys.ConnectKeys
}

func runConnectTUI(s *serial.Session, cfg serial.PortConfig, encodingName, saveDir string, ending components.LineEnding) error {
	m := connectModel{
		SerialModel: models.NewSerialModel(s, cfg.Name),
		cfg:         cfg,
		saver:       serial.NewTextSaver(nil),
		saveDir:     saveDir,
		terminal:    components.NewTerminal(0, 0), // Will be properly sized by WindowSizeMsg
		statusBar:   components.NewStatusBar(cfg.Name),
		input:       components.NewInput(s.Encoding(), ending),
		help:        help.New(),
		keys:        keys.NewConnectKeys(),
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

func (m *connectModel) Init() tea.Cmd {
	return openCmd(m.Session(), m.cfg)
}

// notice shows a line in the terminal that is not serial data
func (m *connectModel) notice(style lipgloss.Style, text string) {
	m.terminal.AddFormattedMessage(style.Render(text))
}

func (m *connectModel) send() tea.Cmd {
	inputStr := m.input.Value()
	if inputStr == "" {
		return nil
	}

	dataToSend, text, err := m.input.Encode()
	if err != nil {
		m.notice(styles.StatusDisconnectedStyle, fmt.Sprintf("Not sent: %v", err))
		return nil
	}

	txData := components.DataReceivedMsg{
		Timestamp: time.Now(),
		Data:      dataToSend,
		Text:      text,
		IsTX:      true,
		Status:    components.TXPending,
	}
	index := m.AddRawData(txData)
	m.terminal.AddMessage(txData)

	m.input.AddToHistory(inputStr)
	m.input.SetValue("")

	return writeCmd(m.Session(), index, dataToSend)
}

func (m *connectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Input area height (includes border)
		inputHeight := 3
		// Status bar is single line
		statusBarHeight := 1
		verticalMarginHeight := inputHeight + statusBarHeight

		m.terminal.SetSize(msg.Width, msg.Height-verticalMarginHeight)
		m.input.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.SetReady(true)

	case models.ConnectionStatusMsg:
		m.SetConnected(msg.Connected)
		switch {
		case msg.Error != nil:
			m.SetError(msg.Error)
			m.statusBar.SetDisconnected(msg.Error)
			m.notice(styles.StatusDisconnectedStyle, m.statusBar.Message())
		case msg.Connected:
			m.SetError(nil)
			m.statusBar.SetConnected()
			m.input.Focus()
		case m.GetError() == nil:
			// A close that follows an error keeps the error visible
			m.statusBar.SetDisconnected(nil)
			m.notice(styles.StatusDisconnectedStyle, m.statusBar.Message())
		}

	case models.TXResultMsg:
		status := components.TXWritten
		if msg.Error != nil {
			status = components.TXError
		}
		if m.SetTXStatus(msg.Index, status) {
			m.terminal.RefreshDisplayWithRawData(m.GetRawData())
		}
		if msg.Error != nil {
			m.notice(styles.StatusDisconnectedStyle, fmt.Sprintf("Send failed: %v", msg.Error))
		}

	case savedMsg:
		if msg.Error != nil {
			m.notice(styles.StatusDisconnectedStyle, fmt.Sprintf("Save failed: %v", msg.Error))
		} else {
			m.notice(styles.StatusConnectedStyle, "Saved received text to "+msg.Path)
		}

	case components.DataReceivedMsg:
		m.AddRawData(msg)
		m.terminal.AddMessage(msg)

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Save) {
			return m, saveCmd(m.saver, m.saveDir, m.ReceivedText())
		}

		// Handle mode-specific keys
		if m.IsInInsertMode() {
			switch {
			case key.Matches(msg, m.keys.Escape):
				m.SetInputMode(models.InputModeNormal)
				m.input.Blur()
				return m, nil
			case key.Matches(msg, m.keys.Enter):
				return m, m.send()
			case msg.Type == tea.KeyUp:
				m.input.NavigateHistoryUp()
				return m, nil
			case msg.Type == tea.KeyDown:
				m.input.NavigateHistoryDown()
				return m, nil
			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleSendingMode()
				return m, nil
			case key.Matches(msg, m.keys.LineEnding):
				m.input.CycleLineEnding()
				return m, nil
			}
		} else {
			switch {
			case key.Matches(msg, m.keys.Quit):
				return m, tea.Quit

			case key.Matches(msg, m.keys.InsertMode):
				m.SetInputMode(models.InputModeInsert)
				m.input.Focus()
				return m, nil

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

			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleSendingMode()

			case key.Matches(msg, m.keys.LineEnding):
				m.input.CycleLineEnding()
			}
		}
	}

	// Update components (only update input in insert mode)
	var cmd tea.Cmd
	if m.IsInInsertMode() {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Update terminal viewport for window resize messages
	if _, ok := msg.(tea.WindowSizeMsg); ok {
		_, cmd = m.terminal.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *connectModel) View() string {
	var content string
	if m.IsReady() {
		content = m.terminal.View()
	} else {
		content = "Initializing..."
	}

	// Input area
	inputMode := m.GetInputMode().String()
	input := m.input.ViewWithMode(m.IsInInsertMode())

	timestamp := time.Now().Format("15:04:05")
	statusBar := m.statusBar.ComprehensiveStatusBar(inputMode, m.input.ModeLabel(), m.terminal.ViewMode().String(), timestamp)

	contentWithBorder := styles.ContentBorderStyle.Render(content)

	parts := []string{contentWithBorder}
	if m.help.ShowAll {
		parts = append(parts, helpBox(m.help.View(m.keys)))
	}
	parts = append(parts, input, statusBar)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
