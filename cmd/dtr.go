/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// dtrCmd represents the dtr command
var dtrCmd = &cobra.Command{
	Use:   "dtr <port> <state>",
	Short: "Control DTR (Data Terminal Ready) signal",
	Long: `Manually set the DTR (Data Terminal Ready) signal state.

The DTR signal indicates that the terminal is ready for communication.
Many boards wire DTR to their reset line.

Examples:
  serial-assistant dtr /dev/ttyUSB0 high
  serial-assistant dtr /dev/ttyUSB0 low
  serial-assistant dtr 0 off

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

		if err := port.SetDTR(state); err != nil {
			return fmt.Errorf("set DTR: %w", err)
		}

		// Verify the state was set
		currentState, err := port.GetDTR()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not verify DTR state: %v\n", err)
			currentState = state
		}

		fmt.Printf("DTR set to %s on %s\n", formatSignalState(currentState), portPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dtrCmd)
}
