package serial

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortDescriptor is one entry of an enumeration result.
type PortDescriptor struct {
	SystemName  string // device path passed to Open
	Description string // human-readable, may be empty
}

// DisplayName renders the descriptor the way port pickers show it.
func (d PortDescriptor) DisplayName() string {
	if d.Description == "" {
		return d.SystemName
	}
	return d.SystemName + " (" + d.Description + ")"
}

// PortInfo holds detailed information about a serial port
type PortInfo struct {
	Name         string
	Path         string
	Description  string
	IsUSB        bool
	VendorID     string
	ProductID    string
	SerialNumber string
	Product      string
}

var (
	// Device names that are serial ports
	serialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
		regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
		regexp.MustCompile(`^ttyS\d+$`),   // Standard serial ports
		regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
		regexp.MustCompile(`^ttymxc\d+$`), // i.MX serial ports
		regexp.MustCompile(`^ttyO\d+$`),   // OMAP serial ports
		regexp.MustCompile(`^ttySAC\d+$`), // Samsung serial ports
		regexp.MustCompile(`^ttyTHS\d+$`), // Tegra serial ports
		regexp.MustCompile(`^rfcomm\d+$`), // Bluetooth RFCOMM
	}

	// Virtual terminals and other non-serial devices
	excludePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^tty\d+$`),
		regexp.MustCompile(`^console$`),
		regexp.MustCompile(`^ptmx$`),
		regexp.MustCompile(`^pty.*$`),
		regexp.MustCompile(`^pts/.*$`),
	}
)

func matchesSerialPattern(name string) bool {
	for _, pattern := range serialPatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

func matchesExcludePattern(name string) bool {
	for _, pattern := range excludePatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// isSerialDeviceName reports whether a /dev entry name looks like a serial port
func isSerialDeviceName(name string) bool {
	return !matchesExcludePattern(name) && matchesSerialPattern(name)
}

// ListPorts returns the sorted paths of available serial ports on the system.
// Virtual terminals and pseudo-terminals are excluded.
func ListPorts() ([]string, error) {
	return listPortsIn("/dev")
}

func listPortsIn(devDir string) ([]string, error) {
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, entry := range entries {
		if !isSerialDeviceName(entry.Name()) {
			continue
		}
		fullPath := filepath.Join(devDir, entry.Name())
		if isCharacterDevice(fullPath) {
			ports = append(ports, fullPath)
		}
	}

	sort.Strings(ports)
	return ports, nil
}

// EnumeratePorts lists available ports with descriptions. USB adapters are
// described by their product string when the system exposes one.
func EnumeratePorts() ([]PortDescriptor, error) {
	paths, err := ListPorts()
	if err != nil {
		return nil, err
	}

	details := usbDetails()
	descriptors := make([]PortDescriptor, 0, len(paths))
	for _, path := range paths {
		info := describePort(path, details[path])
		descriptors = append(descriptors, PortDescriptor{
			SystemName:  info.Path,
			Description: info.Description,
		})
	}
	return descriptors, nil
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// GetPortInfo returns detailed information about a specific port
func GetPortInfo(portPath string) (*PortInfo, error) {
	if !isCharacterDevice(portPath) {
		return nil, ErrDeviceNotFound
	}
	info := describePort(portPath, usbDetails()[portPath])
	return &info, nil
}

func describePort(path string, usb *enumerator.PortDetails) PortInfo {
	name := filepath.Base(path)
	info := PortInfo{
		Name:        name,
		Path:        path,
		Description: getPortDescription(name),
	}
	if usb != nil && usb.IsUSB {
		info.IsUSB = true
		info.VendorID = strings.ToLower(usb.VID)
		info.ProductID = strings.ToLower(usb.PID)
		info.SerialNumber = usb.SerialNumber
		info.Product = usb.Product
		if usb.Product != "" {
			info.Description = usb.Product
		}
	}
	return info
}

// usbDetails indexes the enumerator's USB metadata by device path.
// Lookup failures just mean no USB enrichment.
func usbDetails() map[string]*enumerator.PortDetails {
	list, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil
	}
	byPath := make(map[string]*enumerator.PortDetails, len(list))
	for _, d := range list {
		if d == nil || d.Name == "" {
			continue
		}
		byPath[d.Name] = d
	}
	return byPath
}

// getPortDescription provides human-readable descriptions for different port types
func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	case strings.HasPrefix(name, "rfcomm"):
		return "Bluetooth Serial Port"
	default:
		return "Serial Port"
	}
}
