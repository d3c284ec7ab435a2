/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	serial "github.com/allbin/serial-assistant"
	"github.com/allbin/serial-assistant/internal/tui/components"
	"github.com/allbin/serial-assistant/internal/tui/styles"
	"github.com/spf13/cobra"
	"golang.org/x/text/encoding"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data] <port>",
	Short: "Send data to a serial port",
	Long: `Send data to a serial port with configurable options.

This command sends data to the specified serial port. Data can be provided as:
- Command line argument: send "Hello World" /dev/ttyUSB0
- From stdin (pipe): echo "test data" | serial-assistant send /dev/ttyUSB0
- Interactive mode: serial-assistant send /dev/ttyUSB0 (prompts for input)

Features include:
- Multiple input methods (argument, stdin, interactive)
- Configurable line settings and flow control
- Automatic line endings (--newline flag)
- Hex input support (--hex flag)
- Printing the device's reply (--wait flag)

Example usage:
  serial-assistant send "Hello World" /dev/ttyUSB0
  serial-assistant send "AT+GMR" 0 --newline --wait 2s
  serial-assistant send --hex "02 06 00 03" /dev/ttyUSB0
  echo "test" | serial-assistant send /dev/ttyUSB0`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data, portArg string

		// Parse arguments: either "send data port" or "send port"
		if len(args) == 1 {
			portArg = args[0]
			input, err := readSendInput(os.Stdin)
			if err != nil {
				return err
			}
			data = input
		} else {
			data = args[0]
			portArg = args[1]
		}

		addNewline, _ := cmd.Flags().GetBool("newline")
		hexMode, _ := cmd.Flags().GetBool("hex")
		wait, _ := cmd.Flags().GetDuration("wait")

		logger, closeLog, err := newLogger()
		if err != nil {
			return err
		}
		defer closeLog()

		s, cfg, err := openSession(cmd, portArg, logger)
		if err != nil {
			return err
		}
		defer s.Shutdown()

		payload, err := buildPayload(data, hexMode, addNewline, s.Encoding())
		if err != nil {
			return err
		}
		return sendData(cmd, s, cfg, payload, wait)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	addPortFlags(sendCmd)
	sendCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
	sendCmd.Flags().DurationP("wait", "w", 0, "Print data received for this long after sending (0 = don't wait)")
}

// readSendInput reads piped stdin, or prompts when stdin is a terminal
func readSendInput(stdin *os.File) (string, error) {
	stat, err := stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return promptForData(stdin), nil
	}

	stdinData, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(stdinData), "\r\n"), nil
}

func promptForData(in io.Reader) string {
	fmt.Print(styles.InfoStyle.Render("Enter data to send: "))

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

// buildPayload turns the user's input into the bytes written to the port.
// Text is encoded with enc.
func buildPayload(data string, hexMode, addNewline bool, enc encoding.Encoding) ([]byte, error) {
	if hexMode {
		payload, err := components.ParseHex(data)
		if err != nil {
			return nil, fmt.Errorf("invalid hex data: %w", err)
		}
		return payload, nil
	}
	if addNewline {
		data += "\n"
	}
	return serial.EncodeText(enc, data)
}

func sendData(cmd *cobra.Command, s *serial.Session, cfg serial.PortConfig, payload []byte, wait time.Duration) error {
	replies := make(chan serial.Event, 64)
	if wait > 0 {
		cancel := s.Subscribe(serial.ObserverFunc(func(e serial.Event) {
			select {
			case replies <- e:
			default:
			}
		}))
		defer cancel()
	}

	fmt.Printf("%s Opening %s (%s)...\n", styles.InfoStyle.Render("⚡"), cfg.Name, cfg)
	if err := s.Open(cfg); err != nil {
		return fmt.Errorf("%s %w", styles.ErrorStyle.Render("✗"), err)
	}
	fmt.Printf("%s Connected successfully\n", styles.StatusConnectedStyle.Render("✓"))

	fmt.Printf("%s Sending %d bytes...\n", styles.InfoStyle.Render("📤"), len(payload))
	n, err := s.Write(payload)
	if err != nil {
		return fmt.Errorf("%s failed to send data: %w", styles.ErrorStyle.Render("✗"), err)
	}
	if err := s.Drain(); err != nil {
		return fmt.Errorf("%s failed to flush data: %w", styles.ErrorStyle.Render("✗"), err)
	}
	fmt.Printf("%s Successfully sent %d bytes\n", styles.StatusConnectedStyle.Render("✓"), n)
	fmt.Printf("%s Data: %s\n", styles.InfoStyle.Render("📋"), preview(payload))

	if wait <= 0 {
		return s.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case e := <-replies:
			switch e.Kind {
			case serial.EventDataReceived:
				fmt.Print(e.Text)
			case serial.EventTransportError:
				return fmt.Errorf("%s %w", styles.ErrorStyle.Render("✗"), e.Err)
			}
		case <-timer.C:
			return s.Close()
		case <-ctx.Done():
			return s.Close()
		}
	}
}

// preview returns the first 50 bytes with non-printable characters replaced
func preview(data []byte) string {
	p := string(data)
	if len(p) > 50 {
		p = p[:50] + "..."
	}
	return strings.Map(func(r rune) rune {
		if r < 32 || r > 126 {
			return '·'
		}
		return r
	}, p)
}
