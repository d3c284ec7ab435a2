/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"strings"

	serial "github.com/allbin/serial-assistant"
	"github.com/allbin/serial-assistant/internal/tui/colors"
	"github.com/allbin/serial-assistant/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system.

This command scans for communication-capable serial devices including:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- Standard serial ports (ttyS*)
- ARM/Raspberry Pi ports (ttyAMA*)
- Bluetooth RFCOMM ports (rfcomm*)
- And other platform-specific serial devices

Virtual terminals and pseudo-terminals are excluded from the listing.

The number in front of each port can be used in place of its path:
  serial-assistant list
  serial-assistant connect 0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, closeLog, err := newLogger()
		if err != nil {
			return err
		}
		defer closeLog()

		s := serial.NewSession(serial.WithLogger(logger))
		defer s.Shutdown()

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		ports, err := filterPorts(s.ListPorts(), filterType)
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			if filterType != "" && filterType != "all" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return nil
		}

		if tableFormat {
			renderTable(ports)
		} else {
			renderSimple(ports)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, bluetooth, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// indexedPort keeps the enumeration index so filtered output still shows
// the number accepted by the other commands.
type indexedPort struct {
	Index int
	serial.PortDescriptor
}

// filterPorts filters the port list based on the specified filter type
func filterPorts(ports []serial.PortDescriptor, filterType string) ([]indexedPort, error) {
	filterType = strings.ToLower(filterType)
	switch filterType {
	case "", "all", "usb", "standard", "arm", "bluetooth":
	default:
		return nil, fmt.Errorf("unknown filter %q (valid: usb, standard, arm, bluetooth, all)", filterType)
	}

	var filtered []indexedPort
	for i, port := range ports {
		if filterType == "" || filterType == "all" || getPortCategory(port.SystemName) == filterType {
			filtered = append(filtered, indexedPort{Index: i, PortDescriptor: port})
		}
	}
	return filtered, nil
}

func getPortCategory(path string) string {
	name := strings.ToLower(path[strings.LastIndex(path, "/")+1:])
	switch {
	case strings.HasPrefix(name, "ttyusb"), strings.HasPrefix(name, "ttyacm"):
		return "usb"
	case strings.HasPrefix(name, "ttyama"):
		return "arm"
	case strings.HasPrefix(name, "rfcomm"):
		return "bluetooth"
	case strings.HasPrefix(name, "ttys"):
		return "standard"
	default:
		return "other"
	}
}

const (
	columnKeyIndex       = "index"
	columnKeyPort        = "port"
	columnKeyType        = "type"
	columnKeyDescription = "description"
	columnKeyUSB         = "usb"
)

// renderTable renders the port list in a styled static table format
func renderTable(ports []indexedPort) {
	fmt.Println(styles.TitleStyle.Render(fmt.Sprintf("Found %d serial port(s)", len(ports))))
	fmt.Println()

	rows := make([]table.Row, 0, len(ports))
	for _, port := range ports {
		usb := ""
		if info, err := serial.GetPortInfo(port.SystemName); err == nil && info.IsUSB {
			usb = info.VendorID + ":" + info.ProductID
		}
		rows = append(rows, table.NewRow(table.RowData{
			columnKeyIndex:       port.Index,
			columnKeyPort:        port.SystemName,
			columnKeyType:        getPortType(port.SystemName),
			columnKeyDescription: port.Description,
			columnKeyUSB:         usb,
		}))
	}

	t := table.New([]table.Column{
		table.NewColumn(columnKeyIndex, "#", 4),
		table.NewColumn(columnKeyPort, "Port", 16),
		table.NewColumn(columnKeyType, "Type", 16),
		table.NewColumn(columnKeyDescription, "Description", 30),
		table.NewColumn(columnKeyUSB, "VID:PID", 10),
	}).
		WithRows(rows).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(colors.Mauve)).
		WithBaseStyle(lipgloss.NewStyle().Foreground(colors.Text).BorderForeground(colors.Surface2).Align(lipgloss.Left))

	fmt.Println(t.View())
}

// renderSimple renders the port list in simple text format
func renderSimple(ports []indexedPort) {
	for _, port := range ports {
		fmt.Printf("[%d] %s\n", port.Index, port.DisplayName())
	}
}

// getPortType returns a more specific type classification for the port
func getPortType(path string) string {
	name := strings.ToLower(path[strings.LastIndex(path, "/")+1:])
	switch {
	case strings.HasPrefix(name, "ttyusb"):
		return "USB Serial"
	case strings.HasPrefix(name, "ttyacm"):
		return "USB CDC/ACM"
	case strings.HasPrefix(name, "ttyama"):
		return "ARM Serial"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial"
	case strings.HasPrefix(name, "ttysac"):
		return "Samsung Serial"
	case strings.HasPrefix(name, "ttyths"):
		return "Tegra Serial"
	case strings.HasPrefix(name, "ttyo"):
		return "OMAP Serial"
	case strings.HasPrefix(name, "rfcomm"):
		return "Bluetooth RFCOMM"
	case strings.HasPrefix(name, "ttys"):
		return "Standard Serial"
	default:
		return "Serial Port"
	}
}
