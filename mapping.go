package serial

import (
	"fmt"
	"strings"
)

// MappingVersion identifies the index tables below. Front ends that persist
// or transmit option indices should compare against it; bump it whenever a
// table is reordered.
const MappingVersion = 1

// Index tables for front ends that present choices as ordered lists.
//
//	data bits:    0:5  1:6  2:7  3:8
//	stop bits:    0:1  1:1.5  2:2
//	parity:       0:none  1:even  2:odd  3:space  4:mark
//	flow control: 0:none  1:hardware  2:software
var (
	dataBitsTable    = []int{5, 6, 7, 8}
	stopBitsTable    = []StopBits{StopBitsOne, StopBitsOnePointFive, StopBitsTwo}
	parityTable      = []Parity{ParityNone, ParityEven, ParityOdd, ParitySpace, ParityMark}
	flowControlTable = []FlowControl{FlowControlNone, FlowControlHardware, FlowControlSoftware}
)

func lookup[T any](table []T, index int, what string) (T, error) {
	var zero T
	if index < 0 || index >= len(table) {
		return zero, fmt.Errorf("%w: %s index %d out of range [0,%d)", ErrInvalidConfig, what, index, len(table))
	}
	return table[index], nil
}

// DataBitsFromIndex maps a data bits choice index to a bit count.
func DataBitsFromIndex(index int) (int, error) {
	return lookup(dataBitsTable, index, "data bits")
}

// StopBitsFromIndex maps a stop bits choice index to StopBits.
func StopBitsFromIndex(index int) (StopBits, error) {
	return lookup(stopBitsTable, index, "stop bits")
}

// ParityFromIndex maps a parity choice index to Parity.
func ParityFromIndex(index int) (Parity, error) {
	return lookup(parityTable, index, "parity")
}

// FlowControlFromIndex maps a flow control choice index to FlowControl.
func FlowControlFromIndex(index int) (FlowControl, error) {
	return lookup(flowControlTable, index, "flow control")
}

// ConfigFromIndices builds a PortConfig from list-style option indices.
func ConfigFromIndices(name string, baudRate, dataBits, stopBits, parity, flowControl int) (PortConfig, error) {
	db, err := DataBitsFromIndex(dataBits)
	if err != nil {
		return PortConfig{}, err
	}
	sb, err := StopBitsFromIndex(stopBits)
	if err != nil {
		return PortConfig{}, err
	}
	p, err := ParityFromIndex(parity)
	if err != nil {
		return PortConfig{}, err
	}
	fc, err := FlowControlFromIndex(flowControl)
	if err != nil {
		return PortConfig{}, err
	}
	cfg := PortConfig{
		Name:        name,
		BaudRate:    baudRate,
		DataBits:    db,
		StopBits:    sb,
		Parity:      p,
		FlowControl: fc,
	}
	return cfg, cfg.Validate()
}

func (s StopBits) valid() bool { return s >= StopBitsOne && s <= StopBitsTwo }

func (s StopBits) String() string {
	switch s {
	case StopBitsOne:
		return "1"
	case StopBitsOnePointFive:
		return "1.5"
	case StopBitsTwo:
		return "2"
	default:
		return fmt.Sprintf("StopBits(%d)", int(s))
	}
}

// ParseStopBits accepts "1", "1.5" and "2".
func ParseStopBits(s string) (StopBits, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return StopBitsOne, nil
	case "1.5":
		return StopBitsOnePointFive, nil
	case "2":
		return StopBitsTwo, nil
	}
	return 0, fmt.Errorf("%w: stop bits %q (valid: 1, 1.5, 2)", ErrInvalidConfig, s)
}

func (p Parity) valid() bool { return p >= ParityNone && p <= ParityMark }

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	case ParitySpace:
		return "space"
	case ParityMark:
		return "mark"
	default:
		return fmt.Sprintf("Parity(%d)", int(p))
	}
}

// Letter returns the single-letter form used in "8N1" notation.
func (p Parity) Letter() string {
	switch p {
	case ParityEven:
		return "E"
	case ParityOdd:
		return "O"
	case ParitySpace:
		return "S"
	case ParityMark:
		return "M"
	default:
		return "N"
	}
}

// ParseParity accepts full names or single letters, case-insensitively.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "n":
		return ParityNone, nil
	case "even", "e":
		return ParityEven, nil
	case "odd", "o":
		return ParityOdd, nil
	case "space", "s":
		return ParitySpace, nil
	case "mark", "m":
		return ParityMark, nil
	}
	return 0, fmt.Errorf("%w: parity %q (valid: none, even, odd, space, mark)", ErrInvalidConfig, s)
}

func (f FlowControl) valid() bool { return f >= FlowControlNone && f <= FlowControlSoftware }

func (f FlowControl) String() string {
	switch f {
	case FlowControlNone:
		return "none"
	case FlowControlHardware:
		return "hardware"
	case FlowControlSoftware:
		return "software"
	default:
		return fmt.Sprintf("FlowControl(%d)", int(f))
	}
}

// ParseFlowControl accepts none, hardware (rtscts) and software (xonxoff).
func ParseFlowControl(s string) (FlowControl, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return FlowControlNone, nil
	case "hardware", "rtscts":
		return FlowControlHardware, nil
	case "software", "xonxoff":
		return FlowControlSoftware, nil
	}
	return 0, fmt.Errorf("%w: flow control %q (valid: none, hardware, software)", ErrInvalidConfig, s)
}
