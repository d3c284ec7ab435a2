package serial

import "fmt"

// Default line settings applied when a PortConfig leaves them unset.
const (
	DefaultBaudRate = 115200
	DefaultDataBits = 8
)

// ReadBufferSize caps how many bytes a single receive drain may return.
const ReadBufferSize = 65536

// StopBits represents the number of stop bits per character
type StopBits int

const (
	StopBitsOne StopBits = iota
	StopBitsOnePointFive
	StopBitsTwo
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
	ParitySpace
	ParityMark
)

// FlowControl represents the flow control mode
type FlowControl int

const (
	FlowControlNone     FlowControl = iota
	FlowControlHardware             // RTS/CTS
	FlowControlSoftware             // XON/XOFF
)

// PortConfig holds everything needed to open and configure a serial port.
// The zero values of StopBits, Parity and FlowControl are One, None and None;
// zero DataBits and BaudRate are replaced by the package defaults.
type PortConfig struct {
	Name        string
	BaudRate    int
	DataBits    int
	StopBits    StopBits
	Parity      Parity
	FlowControl FlowControl
}

// Option is a functional option for configuring a serial port
type Option func(*PortConfig) error

// DefaultConfig returns a configuration with sensible defaults (115200 8N1, no flow control)
func DefaultConfig(name string) PortConfig {
	return PortConfig{
		Name:        name,
		BaudRate:    DefaultBaudRate,
		DataBits:    DefaultDataBits,
		StopBits:    StopBitsOne,
		Parity:      ParityNone,
		FlowControl: FlowControlNone,
	}
}

// NewConfig builds a validated configuration for the named port.
func NewConfig(name string, opts ...Option) (PortConfig, error) {
	cfg := DefaultConfig(name)
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return PortConfig{}, err
		}
	}
	return cfg, cfg.Validate()
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *PortConfig) error {
		if _, err := getBaudRate(rate); err != nil {
			return err
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *PortConfig) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits
func WithStopBits(bits StopBits) Option {
	return func(c *PortConfig) error {
		if !bits.valid() {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *PortConfig) error {
		if !parity.valid() {
			return ErrInvalidConfig
		}
		c.Parity = parity
		return nil
	}
}

// WithFlowControl sets the flow control mode
func WithFlowControl(fc FlowControl) Option {
	return func(c *PortConfig) error {
		if !fc.valid() {
			return ErrInvalidConfig
		}
		c.FlowControl = fc
		return nil
	}
}

// withDefaults fills in the fields a caller may leave unset.
func (c PortConfig) withDefaults() PortConfig {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = DefaultDataBits
	}
	return c
}

// Validate reports whether every field holds a value this package can apply.
// Unset DataBits and BaudRate are accepted and defaulted.
func (c PortConfig) Validate() error {
	c = c.withDefaults()
	if c.Name == "" {
		return fmt.Errorf("%w: empty port name", ErrInvalidConfig)
	}
	if _, err := getBaudRate(c.BaudRate); err != nil {
		return fmt.Errorf("%w: %d", err, c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("%w: data bits %d", ErrInvalidConfig, c.DataBits)
	}
	if !c.StopBits.valid() {
		return fmt.Errorf("%w: stop bits %d", ErrInvalidConfig, c.StopBits)
	}
	if !c.Parity.valid() {
		return fmt.Errorf("%w: parity %d", ErrInvalidConfig, c.Parity)
	}
	if !c.FlowControl.valid() {
		return fmt.Errorf("%w: flow control %d", ErrInvalidConfig, c.FlowControl)
	}
	return nil
}

// String renders the line settings in the usual "115200 8N1" notation.
func (c PortConfig) String() string {
	c = c.withDefaults()
	return fmt.Sprintf("%d %d%s%s %s", c.BaudRate, c.DataBits, c.Parity.Letter(), c.StopBits, c.FlowControl)
}
