package serial

import (
	"errors"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("/dev/ttyUSB0")

	if config.Name != "/dev/ttyUSB0" {
		t.Errorf("Expected Name /dev/ttyUSB0, got %s", config.Name)
	}
	if config.BaudRate != 115200 {
		t.Errorf("Expected BaudRate 115200, got %d", config.BaudRate)
	}
	if config.DataBits != 8 {
		t.Errorf("Expected DataBits 8, got %d", config.DataBits)
	}
	if config.StopBits != StopBitsOne {
		t.Errorf("Expected StopBits 1, got %v", config.StopBits)
	}
	if config.Parity != ParityNone {
		t.Errorf("Expected Parity None, got %v", config.Parity)
	}
	if config.FlowControl != FlowControlNone {
		t.Errorf("Expected FlowControl None, got %v", config.FlowControl)
	}
}

func TestFunctionalOptions(t *testing.T) {
	config, err := NewConfig("/dev/ttyS0",
		WithBaudRate(9600),
		WithDataBits(7),
		WithStopBits(StopBitsTwo),
		WithParity(ParityEven),
		WithFlowControl(FlowControlHardware),
	)
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if config.BaudRate != 9600 {
		t.Errorf("Expected BaudRate 9600, got %d", config.BaudRate)
	}
	if config.DataBits != 7 {
		t.Errorf("Expected DataBits 7, got %d", config.DataBits)
	}
	if config.StopBits != StopBitsTwo {
		t.Errorf("Expected StopBits 2, got %v", config.StopBits)
	}
	if config.Parity != ParityEven {
		t.Errorf("Expected Parity Even, got %v", config.Parity)
	}
	if config.FlowControl != FlowControlHardware {
		t.Errorf("Expected FlowControl hardware, got %v", config.FlowControl)
	}
}

func TestInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want error
	}{
		{"baud rate", WithBaudRate(123456), ErrInvalidBaudRate},
		{"data bits high", WithDataBits(9), ErrInvalidConfig},
		{"data bits low", WithDataBits(4), ErrInvalidConfig},
		{"stop bits", WithStopBits(3), ErrInvalidConfig},
		{"parity", WithParity(Parity(7)), ErrInvalidConfig},
		{"flow control", WithFlowControl(FlowControl(-1)), ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig("/dev/ttyS0")
			before := config
			err := tt.opt(&config)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if config != before {
				t.Errorf("config modified by failing option: %+v", config)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  PortConfig
		wantErr error
	}{
		{"defaults", DefaultConfig("/dev/ttyS0"), nil},
		{"zero values defaulted", PortConfig{Name: "/dev/ttyS0"}, nil},
		{"empty name", DefaultConfig(""), ErrInvalidConfig},
		{"bad baud", PortConfig{Name: "/dev/ttyS0", BaudRate: 12345}, ErrInvalidBaudRate},
		{"bad data bits", PortConfig{Name: "/dev/ttyS0", DataBits: 9}, ErrInvalidConfig},
		{"bad stop bits", PortConfig{Name: "/dev/ttyS0", StopBits: 5}, ErrInvalidConfig},
		{"bad parity", PortConfig{Name: "/dev/ttyS0", Parity: -1}, ErrInvalidConfig},
		{"bad flow control", PortConfig{Name: "/dev/ttyS0", FlowControl: 3}, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	tests := []struct {
		config PortConfig
		want   string
	}{
		{DefaultConfig("/dev/ttyS0"), "115200 8N1 none"},
		{PortConfig{Name: "x", BaudRate: 9600, DataBits: 7, Parity: ParityEven, StopBits: StopBitsTwo, FlowControl: FlowControlHardware}, "9600 7E2 hardware"},
		{PortConfig{Name: "x", Parity: ParityMark, StopBits: StopBitsOnePointFive, FlowControl: FlowControlSoftware}, "115200 8M1.5 software"},
	}

	for _, tt := range tests {
		if got := tt.config.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
