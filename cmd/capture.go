/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	serial "github.com/allbin/serial-assistant"
	"github.com/spf13/cobra"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <port> <output-file>",
	Short: "Capture serial data to a file",
	Long: `Capture incoming serial data to a file for later parsing.

Decodes data from the specified serial port with the chosen --encoding and
appends it to the output file. Runs until interrupted (Ctrl+C) or until
the device goes away.

The output file is opened in append mode, allowing you to resume captures
without overwriting existing data.

Example usage:
  serial-assistant capture /dev/ttyUSB0 data.log
  serial-assistant capture 0 output.txt --baud 9600
  serial-assistant capture /dev/ttyUSB0 capture.log --console
  serial-assistant capture /dev/ttyUSB0 dump.bin --raw`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		showConsole, _ := cmd.Flags().GetBool("console")
		raw, _ := cmd.Flags().GetBool("raw")

		logger, closeLog, err := newLogger()
		if err != nil {
			return err
		}
		defer closeLog()

		s, cfg, err := openSession(cmd, args[0], logger)
		if err != nil {
			return err
		}
		defer s.Shutdown()

		var console io.Writer
		if showConsole {
			console = os.Stdout
		}
		c := newCapture(serial.NewTextSaver(nil), args[1], raw, console)
		unsubscribe := s.Subscribe(c)
		defer unsubscribe()

		if err := s.Open(cfg); err != nil {
			return fmt.Errorf("failed to open port: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Capturing data from %s to %s\n", cfg.Name, args[1])
		if showConsole {
			fmt.Fprintf(os.Stderr, "Console display enabled\n")
		}
		fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, shutting down...\n")
		case <-c.closed:
			fmt.Fprintf(os.Stderr, "\nPort closed\n")
		}
		bytesWritten, err := finishCapture(s, c)
		fmt.Fprintf(os.Stderr, "Capture complete: %d bytes written in %v\n", bytesWritten, c.elapsed().Round(time.Millisecond))
		return err
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	addPortFlags(captureCmd)
	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
	captureCmd.Flags().Bool("raw", false, "Write received bytes unchanged instead of decoded text")
}

// capture is a session observer appending every received chunk to a file
type capture struct {
	saver   *serial.TextSaver
	path    string
	raw     bool
	console io.Writer
	started time.Time

	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written int64
	err     error
}

func newCapture(saver *serial.TextSaver, path string, raw bool, console io.Writer) *capture {
	return &capture{
		saver:   saver,
		path:    path,
		raw:     raw,
		console: console,
		started: time.Now(),
		closed:  make(chan struct{}),
	}
}

func (c *capture) HandleEvent(e serial.Event) {
	switch e.Kind {
	case serial.EventDataReceived:
		content := e.Text
		if c.raw {
			content = string(e.Data)
		}
		n, err := c.saver.Append(c.path, content)

		c.mu.Lock()
		c.written += int64(n)
		if err != nil && c.err == nil {
			c.err = err
		}
		c.mu.Unlock()

		if err != nil {
			c.stop()
			return
		}
		if c.console != nil {
			io.WriteString(c.console, content)
		}
	case serial.EventStatusChanged:
		if !e.Open {
			c.stop()
		}
	}
}

// finishCapture closes the session and waits until every chunk it already
// received has reached the file before reporting the totals.
func finishCapture(s *serial.Session, c *capture) (int64, error) {
	// Close failures are logged by the session.
	_ = s.Shutdown()
	return c.result()
}

func (c *capture) stop() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *capture) result() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written, c.err
}

func (c *capture) elapsed() time.Duration {
	return time.Since(c.started)
}
