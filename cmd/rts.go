/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// rtsCmd represents the rts command
var rtsCmd = &cobra.Command{
	Use:   "rts <port> <state>",
	Short: "Control RTS (Request To Send) signal",
	Long: `Manually set the RTS (Request To Send) signal state.

The RTS signal can be used for software flow control or custom signaling.

Examples:
  serial-assistant rts /dev/ttyUSB0 high
  serial-assistant rts /dev/ttyUSB0 low
  serial-assistant rts 0 on

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := parseSignalState(args[1])
		if err != nil {
			return err
		}

		port, portPath, err := openRawPort(args[0])
		if err != nil {
			return fmt.Errorf("open port: %w", err)
		}
		defer port.Close()

		if err := port.SetRTS(state); err != nil {
			return fmt.Errorf("set RTS: %w", err)
		}

		currentState, err := port.GetRTS()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not verify RTS state: %v\n", err)
			currentState = state
		}

		fmt.Printf("RTS set to %s on %s\n", formatSignalState(currentState), portPath)
		return nil
	},
}

func parseSignalState(state string) (bool, error) {
	switch strings.ToLower(state) {
	case "high", "on", "true", "1":
		return true, nil
	case "low", "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state: %s (valid: high, low, on, off, true, false, 1, 0)", state)
	}
}

func init() {
	rootCmd.AddCommand(rtsCmd)
}
