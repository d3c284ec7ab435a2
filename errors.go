package serial

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound      = errors.New("serial device not found")
	ErrPermissionDenied    = errors.New("permission denied accessing serial device")
	ErrDeviceInUse         = errors.New("serial device already in use")
	ErrInvalidBaudRate     = errors.New("invalid baud rate")
	ErrInvalidConfig       = errors.New("invalid serial configuration")
	ErrUnsupportedStopBits = errors.New("stop bits not supported by this platform")
	ErrPortClosed          = errors.New("serial port is closed")
	ErrUnknownEncoding     = errors.New("unknown text encoding")

	// Signal monitoring errors
	ErrInvalidSignalMask = errors.New("invalid signal mask")

	// Returned when the device hangs up or stops delivering data
	ErrDeviceHangup = errors.New("serial device hung up")
)

// classifyOpenError maps errno values from open(2) onto the sentinel errors
// above so callers can use errors.Is without inspecting syscall values.
func classifyOpenError(device string, err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENODEV):
		return fmt.Errorf("open %s: %w", device, ErrDeviceNotFound)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("open %s: %w", device, ErrPermissionDenied)
	case errors.Is(err, unix.EBUSY):
		return fmt.Errorf("open %s: %w", device, ErrDeviceInUse)
	default:
		return fmt.Errorf("open %s: %w", device, err)
	}
}
