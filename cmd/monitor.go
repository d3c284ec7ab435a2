/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	serial "github.com/allbin/serial-assistant"
	"github.com/spf13/cobra"
)

var (
	monitorSignals []string
	monitorTimeout time.Duration
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <port>",
	Short: "Monitor modem signal changes",
	Long: `Monitor modem control signal changes in real-time.

Watches specified signals and reports when they change state. Press Ctrl+C to stop.

Examples:
  serial-assistant monitor /dev/ttyUSB0
  serial-assistant monitor /dev/ttyUSB0 --signals cts,dsr
  serial-assistant monitor 0 --signals dcd --timeout 30s

Available signals: cts, dsr, ri, dcd`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mask, err := parseSignalMask(monitorSignals)
		if err != nil {
			return err
		}

		port, portPath, err := openRawPort(args[0])
		if err != nil {
			return fmt.Errorf("open port: %w", err)
		}
		defer port.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Monitoring signals on %s (signals: %s)\n", portPath, strings.Join(monitorSignals, ", "))
		fmt.Println("Press Ctrl+C to stop")

		initialSignals, err := port.GetModemSignals()
		if err != nil {
			return fmt.Errorf("read initial signals: %w", err)
		}
		printSignals("Initial state", initialSignals, mask)

		for {
			waitCtx, cancel := ctx, context.CancelFunc(func() {})
			if monitorTimeout > 0 {
				waitCtx, cancel = context.WithTimeout(ctx, monitorTimeout)
			}
			signals, changed, err := port.WaitForSignalChange(waitCtx, mask)
			cancel()

			switch {
			case err == nil:
				printSignals("Signal change detected", signals, changed)
			case ctx.Err() != nil:
				fmt.Println("\nStopping monitor...")
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				fmt.Printf("[%s] Timeout - no signal changes\n", time.Now().Format("15:04:05"))
			default:
				return fmt.Errorf("wait for signal change: %w", err)
			}
		}
	},
}

func parseSignalMask(signalNames []string) (serial.SignalMask, error) {
	if len(signalNames) == 0 {
		return serial.SignalCTS | serial.SignalDSR | serial.SignalRI | serial.SignalDCD, nil
	}

	var mask serial.SignalMask
	for _, name := range signalNames {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cts":
			mask |= serial.SignalCTS
		case "dsr":
			mask |= serial.SignalDSR
		case "ri":
			mask |= serial.SignalRI
		case "dcd":
			mask |= serial.SignalDCD
		default:
			return 0, fmt.Errorf("unknown signal: %s (valid: cts, dsr, ri, dcd)", name)
		}
	}
	return mask, nil
}

// printSignals prints the signals selected by mask
func printSignals(title string, signals serial.ModemSignals, mask serial.SignalMask) {
	fmt.Printf("[%s] %s:\n", time.Now().Format("15:04:05"), title)
	if mask&serial.SignalCTS != 0 {
		fmt.Printf("  CTS: %s\n", formatSignalState(signals.CTS))
	}
	if mask&serial.SignalDSR != 0 {
		fmt.Printf("  DSR: %s\n", formatSignalState(signals.DSR))
	}
	if mask&serial.SignalRI != 0 {
		fmt.Printf("  RI:  %s\n", formatSignalState(signals.RI))
	}
	if mask&serial.SignalDCD != 0 {
		fmt.Printf("  DCD: %s\n", formatSignalState(signals.DCD))
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringSliceVarP(&monitorSignals, "signals", "s", []string{"cts", "dsr", "ri", "dcd"},
		"Signals to monitor (comma-separated: cts,dsr,ri,dcd)")
	monitorCmd.Flags().DurationVarP(&monitorTimeout, "timeout", "t", 0,
		"Timeout for each wait operation (0 = no timeout)")
}
