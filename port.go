package serial

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// cmspar selects mark/space ("stick") parity together with PARENB.
const cmspar = 0x40000000

// drainPollInterval is how often Drain re-checks the output queue.
const drainPollInterval = 20 * time.Millisecond

// Port represents a serial port connection interface
type Port interface {
	Close() error
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)

	// WaitReadable blocks until input is available, the port is closed
	// (ErrPortClosed) or the device hangs up (ErrDeviceHangup).
	WaitReadable() error
	BytesAvailable() (int, error)
	// Drain blocks until queued output has been transmitted or the port is closed.
	Drain() error
	FlushInput() error
	FlushOutput() error

	// Modem signal control and monitoring
	GetModemSignals() (ModemSignals, error)
	SetRTS(state bool) error
	GetRTS() (bool, error)
	SetDTR(state bool) error
	GetDTR() (bool, error)
	WaitForSignalChange(ctx context.Context, mask SignalMask) (ModemSignals, SignalMask, error)
}

// port is the concrete implementation of the Port interface
type port struct {
	mu     sync.RWMutex
	fd     int
	wakeR  int // self-pipe, written on Close to release blocked callers
	wakeW  int
	config PortConfig
	closed bool
}

// Ensure port implements Port interface at compile time
var _ Port = (*port)(nil)

// ModemSignals represents modem control signal states
type ModemSignals struct {
	CTS bool // Clear To Send
	DSR bool // Data Set Ready
	RI  bool // Ring Indicator
	DCD bool // Data Carrier Detect
	RTS bool // Request To Send
	DTR bool // Data Terminal Ready
}

// SignalMask identifies which signals to monitor
type SignalMask int

const (
	SignalCTS SignalMask = 1 << iota
	SignalDSR
	SignalRI
	SignalDCD
)

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, ErrInvalidBaudRate
	}
}

// getModemStatus retrieves modem control signals using unix package
func getModemStatus(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCMGET)
}

// setModemBit raises or lowers a single TIOCM output line
func setModemBit(fd int, bit int, state bool) error {
	if state {
		return unix.IoctlSetPointerInt(fd, unix.TIOCMBIS, bit)
	}
	return unix.IoctlSetPointerInt(fd, unix.TIOCMBIC, bit)
}

// signalMaskToTIOCM converts SignalMask to unix TIOCM bits
func signalMaskToTIOCM(mask SignalMask) int {
	var bits int
	if mask&SignalCTS != 0 {
		bits |= unix.TIOCM_CTS
	}
	if mask&SignalDSR != 0 {
		bits |= unix.TIOCM_DSR
	}
	if mask&SignalRI != 0 {
		bits |= unix.TIOCM_RI
	}
	if mask&SignalDCD != 0 {
		bits |= unix.TIOCM_CAR
	}
	return bits
}

// detectSignalChanges compares old and new signal states to determine what changed
func detectSignalChanges(oldStatus, newStatus int) SignalMask {
	var changed SignalMask
	if (oldStatus&unix.TIOCM_CTS != 0) != (newStatus&unix.TIOCM_CTS != 0) {
		changed |= SignalCTS
	}
	if (oldStatus&unix.TIOCM_DSR != 0) != (newStatus&unix.TIOCM_DSR != 0) {
		changed |= SignalDSR
	}
	if (oldStatus&unix.TIOCM_RI != 0) != (newStatus&unix.TIOCM_RI != 0) {
		changed |= SignalRI
	}
	if (oldStatus&unix.TIOCM_CAR != 0) != (newStatus&unix.TIOCM_CAR != 0) {
		changed |= SignalDCD
	}
	return changed
}

func modemSignalsFromStatus(status int) ModemSignals {
	return ModemSignals{
		CTS: status&unix.TIOCM_CTS != 0,
		DSR: status&unix.TIOCM_DSR != 0,
		RI:  status&unix.TIOCM_RI != 0,
		DCD: status&unix.TIOCM_CAR != 0,
		RTS: status&unix.TIOCM_RTS != 0,
		DTR: status&unix.TIOCM_DTR != 0,
	}
}

// Open opens and configures the serial device named in cfg.
// The descriptor is closed again if any configuration step fails.
func Open(cfg PortConfig) (Port, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// O_NONBLOCK also keeps open(2) from waiting on carrier detect.
	// It stays set; blocking is done in poll where Close can interrupt it.
	fd, err := unix.Open(cfg.Name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, classifyOpenError(cfg.Name, err)
	}

	if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to lock %s: %w", cfg.Name, ErrDeviceInUse)
	}

	if err := configurePort(fd, cfg); err != nil {
		unlockAndClose(fd)
		return nil, err
	}

	wake := make([]int, 2)
	if err := unix.Pipe2(wake, unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unlockAndClose(fd)
		return nil, fmt.Errorf("failed to create wake pipe: %w", err)
	}

	return &port{
		fd:     fd,
		wakeR:  wake[0],
		wakeW:  wake[1],
		config: cfg,
	}, nil
}

func unlockAndClose(fd int) error {
	_ = unix.IoctlSetInt(fd, unix.TIOCNXCL, 0)
	return unix.Close(fd)
}

// configurePort reads the current termios, applies cfg and writes it back
func configurePort(fd int, cfg PortConfig) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	if err := applyConfig(termios, cfg); err != nil {
		return err
	}

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}
	return nil
}

// applyConfig puts termios into raw mode with the line settings from cfg.
func applyConfig(termios *unix.Termios, cfg PortConfig) error {
	cfg = cfg.withDefaults()

	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY | unix.INPCK
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.CSTOPB | unix.PARENB | unix.PARODD | cmspar | unix.CRTSCTS
	termios.Cflag |= unix.CREAD | unix.CLOCAL

	// Reads return whatever is queued, immediately. Readiness comes from poll.
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	baudRate, err := getBaudRate(cfg.BaudRate)
	if err != nil {
		return err
	}
	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baudRate
	termios.Ispeed = baudRate
	termios.Ospeed = baudRate

	switch cfg.DataBits {
	case 5:
		termios.Cflag |= unix.CS5
	case 6:
		termios.Cflag |= unix.CS6
	case 7:
		termios.Cflag |= unix.CS7
	case 8:
		termios.Cflag |= unix.CS8
	default:
		return fmt.Errorf("%w: data bits %d", ErrInvalidConfig, cfg.DataBits)
	}

	switch cfg.StopBits {
	case StopBitsOne:
	case StopBitsTwo:
		termios.Cflag |= unix.CSTOPB
	case StopBitsOnePointFive:
		return ErrUnsupportedStopBits
	default:
		return fmt.Errorf("%w: stop bits %d", ErrInvalidConfig, cfg.StopBits)
	}

	switch cfg.Parity {
	case ParityNone:
	case ParityEven:
		termios.Cflag |= unix.PARENB
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParitySpace:
		termios.Cflag |= unix.PARENB | cmspar
	case ParityMark:
		termios.Cflag |= unix.PARENB | cmspar | unix.PARODD
	default:
		return fmt.Errorf("%w: parity %d", ErrInvalidConfig, cfg.Parity)
	}
	if cfg.Parity != ParityNone {
		termios.Iflag |= unix.INPCK
	}

	switch cfg.FlowControl {
	case FlowControlNone:
	case FlowControlHardware:
		termios.Cflag |= unix.CRTSCTS
	case FlowControlSoftware:
		termios.Iflag |= unix.IXON | unix.IXOFF
	default:
		return fmt.Errorf("%w: flow control %d", ErrInvalidConfig, cfg.FlowControl)
	}

	return nil
}

// Close closes the serial port and releases any goroutine blocked in
// WaitReadable, Write or Drain
func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.closed = true

	_, _ = unix.Write(p.wakeW, []byte{1})
	err := unlockAndClose(p.fd)
	unix.Close(p.wakeW)
	unix.Close(p.wakeR)
	return err
}

// Read reads whatever input is queued, returning 0 when nothing is
func (p *port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	return unix.Read(p.fd, buf)
}

// Write writes all of data, waiting for room in the output queue as needed.
// A Close while waiting returns the count written so far and ErrPortClosed.
func (p *port) Write(data []byte) (int, error) {
	written := 0
	for written < len(data) {
		p.mu.RLock()
		if p.closed {
			p.mu.RUnlock()
			return written, ErrPortClosed
		}
		fd, wake := p.fd, p.wakeR
		n, err := unix.Write(fd, data[written:])
		p.mu.RUnlock()

		if n > 0 {
			written += n
		}
		switch err {
		case nil:
		case unix.EINTR:
		case unix.EAGAIN:
			if err := waitFor(fd, wake, unix.POLLOUT); err != nil {
				return written, err
			}
		default:
			return written, err
		}
	}
	return written, nil
}

// WaitReadable polls the device together with the wake pipe.
func (p *port) WaitReadable() error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPortClosed
	}
	fd, wake := p.fd, p.wakeR
	p.mu.RUnlock()

	err := waitFor(fd, wake, unix.POLLIN)
	if err == ErrDeviceHangup {
		// A hang-up may still leave queued bytes worth delivering.
		if n, ierr := unix.IoctlGetInt(fd, unix.TIOCINQ); ierr == nil && n > 0 {
			return nil
		}
	}
	return err
}

// waitFor blocks until fd reports events, the wake pipe is written
// (ErrPortClosed) or the device hangs up (ErrDeviceHangup).
func waitFor(fd, wake int, events int16) error {
	fds := []unix.PollFd{
		{Fd: int32(fd), Events: events},
		{Fd: int32(wake), Events: unix.POLLIN},
	}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		break
	}

	if fds[1].Revents != 0 || fds[0].Revents&unix.POLLNVAL != 0 {
		return ErrPortClosed
	}
	if fds[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
		return ErrDeviceHangup
	}
	return nil
}

// BytesAvailable reports how many bytes are queued for reading
func (p *port) BytesAvailable() (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	return unix.IoctlGetInt(p.fd, unix.TIOCINQ)
}

// Drain waits for the output queue to empty, then for the last character to
// leave the transmitter. Close interrupts the wait with ErrPortClosed.
func (p *port) Drain() error {
	for {
		p.mu.RLock()
		if p.closed {
			p.mu.RUnlock()
			return ErrPortClosed
		}
		queued, err := unix.IoctlGetInt(p.fd, unix.TIOCOUTQ)
		fd, wake := p.fd, p.wakeR
		p.mu.RUnlock()

		if err != nil {
			return fmt.Errorf("output queue: %w", err)
		}
		if queued == 0 {
			// Only the shift register is left, so this returns promptly.
			return unix.IoctlSetInt(fd, unix.TCSBRK, 1)
		}

		fds := []unix.PollFd{{Fd: int32(wake), Events: unix.POLLIN}}
		if _, err := unix.Poll(fds, int(drainPollInterval/time.Millisecond)); err != nil && err != unix.EINTR {
			return fmt.Errorf("poll: %w", err)
		}
		if fds[0].Revents != 0 {
			return ErrPortClosed
		}
	}
}

// FlushInput discards any unread input data
func (p *port) FlushInput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH)
}

// FlushOutput discards any unwritten output data
func (p *port) FlushOutput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCOFLUSH)
}

// GetModemSignals returns current state of all modem control signals
func (p *port) GetModemSignals() (ModemSignals, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ModemSignals{}, ErrPortClosed
	}

	status, err := getModemStatus(p.fd)
	if err != nil {
		return ModemSignals{}, err
	}

	return modemSignalsFromStatus(status), nil
}

// SetRTS asserts (true) or deasserts (false) Request To Send
func (p *port) SetRTS(state bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	return setModemBit(p.fd, unix.TIOCM_RTS, state)
}

// GetRTS returns current RTS signal state
func (p *port) GetRTS() (bool, error) {
	signals, err := p.GetModemSignals()
	return signals.RTS, err
}

// SetDTR asserts (true) or deasserts (false) Data Terminal Ready
func (p *port) SetDTR(state bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	return setModemBit(p.fd, unix.TIOCM_DTR, state)
}

// GetDTR returns current DTR signal state
func (p *port) GetDTR() (bool, error) {
	signals, err := p.GetModemSignals()
	return signals.DTR, err
}

// WaitForSignalChange blocks until any signal in mask changes state or ctx is done.
// Returns new signal states and which signal(s) changed
func (p *port) WaitForSignalChange(ctx context.Context, mask SignalMask) (ModemSignals, SignalMask, error) {
	if mask == 0 {
		return ModemSignals{}, 0, ErrInvalidSignalMask
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ModemSignals{}, 0, ErrPortClosed
	}
	fd := p.fd
	p.mu.RUnlock()

	select {
	case <-ctx.Done():
		return ModemSignals{}, 0, ctx.Err()
	default:
	}

	oldStatus, err := getModemStatus(fd)
	if err != nil {
		return ModemSignals{}, 0, err
	}

	tiocmBits := signalMaskToTIOCM(mask)

	type waitResult struct {
		newStatus int
		err       error
	}
	resultCh := make(chan waitResult, 1)

	// TIOCMIWAIT cannot be interrupted; the goroutine ends with the next change or Close.
	go func() {
		if err := unix.IoctlSetInt(fd, unix.TIOCMIWAIT, tiocmBits); err != nil {
			resultCh <- waitResult{err: err}
			return
		}
		newStatus, err := getModemStatus(fd)
		resultCh <- waitResult{newStatus: newStatus, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return ModemSignals{}, 0, result.err
		}
		return modemSignalsFromStatus(result.newStatus), detectSignalChanges(oldStatus, result.newStatus), nil
	case <-ctx.Done():
		return ModemSignals{}, 0, ctx.Err()
	}
}
