// Package serial manages a single serial port session for interactive
// terminals: discovering ports, opening one with explicit line settings,
// writing to it, and reporting received text to observers.
//
// The package targets Linux (x86_64 and ARM) and talks to the tty driver
// directly through termios.
//
// # Sessions
//
// A Session owns at most one open port. Opening while a port is open closes
// the old one first:
//
//	s := serial.NewSession(serial.WithLogger(logger))
//	defer s.Shutdown()
//
//	s.Subscribe(serial.ObserverFunc(func(e serial.Event) {
//	    switch e.Kind {
//	    case serial.EventDataReceived:
//	        fmt.Print(e.Text)
//	    case serial.EventStatusChanged:
//	        fmt.Println("open:", e.Open)
//	    }
//	}))
//
//	s.ListPorts()
//	cfg, err := serial.ConfigFromIndices(s.ResolveName(0), 115200, 3, 0, 0, 0)
//	if err != nil {
//	    return err
//	}
//	if err := s.Open(cfg); err != nil {
//	    return err
//	}
//	s.WriteString("AT\r\n")
//
// Observers run on one dispatch goroutine, so events arrive in order and never
// concurrently with each other. An observer must not call Shutdown.
//
// Received bytes are decoded with the session's encoding (UTF-8 unless
// WithEncoding says otherwise). Invalid sequences become U+FFFD.
//
// # Configuration
//
// PortConfig is built either from functional options or from the index
// positions used by port pickers:
//
//	cfg, err := serial.NewConfig("/dev/ttyUSB0",
//	    serial.WithBaudRate(9600),
//	    serial.WithParity(serial.ParityEven),
//	    serial.WithFlowControl(serial.FlowControlHardware),
//	)
//
// # Low-level access
//
// Open returns a Port for callers that want direct control, including modem
// signals:
//
//	port, err := serial.Open(cfg)
//	signals, err := port.GetModemSignals()
//	err = port.SetDTR(false)
//
// # Errors
//
// Failures wrap sentinel errors such as ErrDeviceNotFound,
// ErrPermissionDenied, ErrDeviceInUse and ErrInvalidConfig; use errors.Is.
//
// # Default Configuration
//
//   - BaudRate: 115200
//   - DataBits: 8
//   - StopBits: 1
//   - Parity: None
//   - FlowControl: None
package serial
