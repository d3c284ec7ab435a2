package serial

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// maxEmptyReads is how many consecutive zero-byte reads after a readiness
// report are tolerated before the device is treated as gone.
const maxEmptyReads = 8

// EventKind identifies what a session Event reports
type EventKind int

const (
	EventDataReceived EventKind = iota
	EventStatusChanged
	EventTransportError
)

func (k EventKind) String() string {
	switch k {
	case EventDataReceived:
		return "data"
	case EventStatusChanged:
		return "status"
	case EventTransportError:
		return "transport-error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a notification raised by a Session.
type Event struct {
	Kind EventKind
	Time time.Time

	Text string // EventDataReceived: decoded chunk
	Data []byte // EventDataReceived: raw chunk
	Open bool   // EventStatusChanged: open state after the change
	Err  error  // EventTransportError
}

// Observer receives session events. Events are delivered one at a time from
// the session's dispatch goroutine, in the order they were raised.
type Observer interface {
	HandleEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(Event)

func (f ObserverFunc) HandleEvent(e Event) { f(e) }

// device is the part of Port a Session relies on.
type device interface {
	io.ReadWriteCloser
	WaitReadable() error
	Drain() error
	FlushInput() error
	FlushOutput() error
	SetDTR(state bool) error
	SetRTS(state bool) error
}

type subscription struct {
	id       int
	observer Observer
}

// Session owns at most one open serial port, remembers the last port
// enumeration, and notifies observers about received data and open/close
// transitions. All methods are safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	dev        device
	cfg        PortConfig
	readerDone chan struct{}

	// writeMu keeps concurrent writes from interleaving. Close never takes it.
	writeMu sync.Mutex

	portsMu sync.Mutex
	ports   []PortDescriptor

	obsMu     sync.RWMutex
	observers []subscription
	nextID    int

	queueMu      sync.Mutex
	queue        []Event
	stopped      bool
	wake         chan struct{}
	stop         chan struct{}
	dispatchDone chan struct{}
	shutdownOnce sync.Once

	log                   zerolog.Logger
	enc                   encoding.Encoding
	readBufferSize        int
	closeOnTransportError bool
	open                  func(PortConfig) (device, error)
	enumerate             func() ([]PortDescriptor, error)
}

// SessionOption customises a Session
type SessionOption func(*Session)

// WithLogger sets the logger used for diagnostics. The default discards everything.
func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.log = logger
	}
}

// WithEncoding selects how received bytes are decoded into text. Default UTF-8.
func WithEncoding(enc encoding.Encoding) SessionOption {
	return func(s *Session) {
		if enc != nil {
			s.enc = enc
		}
	}
}

// WithReadBufferSize caps the size of a single received chunk.
func WithReadBufferSize(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.readBufferSize = n
		}
	}
}

// WithDisconnectDetection makes transport errors visible: the session raises
// an EventTransportError and closes itself. Without it such errors are only
// logged and IsOpen keeps reporting true.
func WithDisconnectDetection() SessionOption {
	return func(s *Session) {
		s.closeOnTransportError = true
	}
}

// WithEnumerator replaces the function ListPorts uses to discover ports.
func WithEnumerator(fn func() ([]PortDescriptor, error)) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.enumerate = fn
		}
	}
}

func withOpener(fn func(PortConfig) (device, error)) SessionOption {
	return func(s *Session) {
		s.open = fn
	}
}

// NewSession creates a closed session and starts its event dispatcher.
// Call Shutdown when the session is no longer needed.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		dispatchDone:   make(chan struct{}),
		log:            zerolog.Nop(),
		enc:            unicode.UTF8,
		readBufferSize: ReadBufferSize,
		open: func(cfg PortConfig) (device, error) {
			return Open(cfg)
		},
		enumerate: EnumeratePorts,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.dispatch()
	return s
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Session) Subscribe(o Observer) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, subscription{id: id, observer: o})
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		s.observers = slices.DeleteFunc(s.observers, func(sub subscription) bool {
			return sub.id == id
		})
	}
}

// ListPorts enumerates the currently attached ports and caches the result
// for ResolveName and DisplayNames. Enumeration failures yield an empty list.
func (s *Session) ListPorts() []PortDescriptor {
	ports, err := s.enumerate()
	if err != nil {
		s.log.Warn().Err(err).Msg("port enumeration failed")
		ports = nil
	}
	if ports == nil {
		ports = []PortDescriptor{}
	}

	s.portsMu.Lock()
	s.ports = ports
	s.portsMu.Unlock()

	s.log.Debug().Int("count", len(ports)).Msg("ports enumerated")
	return slices.Clone(ports)
}

// DisplayNames returns "name (description)" strings for the cached enumeration.
func (s *Session) DisplayNames() []string {
	s.portsMu.Lock()
	defer s.portsMu.Unlock()

	names := make([]string, len(s.ports))
	for i, p := range s.ports {
		names[i] = p.DisplayName()
	}
	return names
}

// ResolveName returns the system name at index in the most recent
// enumeration, or "" when index is out of range.
func (s *Session) ResolveName(index int) string {
	s.portsMu.Lock()
	defer s.portsMu.Unlock()

	if index < 0 || index >= len(s.ports) {
		return ""
	}
	return s.ports[index].SystemName
}

// IsOpen reports whether the session currently holds a configured port
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev != nil
}

// Config returns the configuration of the open port, or of the last one opened
func (s *Session) Config() PortConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Encoding returns the encoding received data is decoded with
func (s *Session) Encoding() encoding.Encoding {
	return s.enc
}

// Open closes any open port (raising StatusChanged(closed) for it), then
// opens and configures the one described by cfg. On success DTR and RTS are
// asserted, stale input is discarded, the receive loop starts and observers
// see a StatusChanged(open) event.
// A failed open, including one rejected for an invalid cfg, is not retried
// and leaves the session closed.
func (s *Session) Open(cfg PortConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		if err := s.closeLocked(); err != nil {
			s.log.Warn().Err(err).Str("port", s.cfg.Name).Msg("close before reopen failed")
		}
		s.emit(Event{Kind: EventStatusChanged, Open: false})
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		s.log.Warn().Err(err).Str("port", cfg.Name).Msg("open rejected")
		return err
	}

	dev, err := s.open(cfg)
	if err != nil {
		s.log.Warn().Err(err).Str("port", cfg.Name).Msg("open failed")
		return err
	}

	// Some adapters only transmit once the host raises these lines.
	if err := dev.SetDTR(true); err != nil {
		s.log.Debug().Err(err).Str("port", cfg.Name).Msg("could not assert DTR")
	}
	if err := dev.SetRTS(true); err != nil {
		s.log.Debug().Err(err).Str("port", cfg.Name).Msg("could not assert RTS")
	}
	if err := dev.FlushInput(); err != nil {
		s.log.Debug().Err(err).Str("port", cfg.Name).Msg("could not purge input")
	}

	done := make(chan struct{})
	s.dev = dev
	s.cfg = cfg
	s.readerDone = done

	s.log.Info().Str("port", cfg.Name).Stringer("config", cfg).Msg("serial port opened")
	// Queued before the reader starts so observers see the port open before any data.
	s.emit(Event{Kind: EventStatusChanged, Open: true})
	go s.receive(dev, cfg.Name, done)
	return nil
}

// Close releases the port if one is open and always raises StatusChanged(closed).
// It is safe to call on a closed session. Output still queued in the driver is
// discarded so Close does not wait on a stalled line; call Drain first to keep it.
// A Write blocked on a full output queue returns ErrPortClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.cfg.Name
	err := s.closeLocked()
	if err != nil {
		s.log.Warn().Err(err).Str("port", name).Msg("close failed")
	}
	s.emit(Event{Kind: EventStatusChanged, Open: false})
	return err
}

// closeLocked closes the device and waits for its receive loop. s.mu must be held.
func (s *Session) closeLocked() error {
	if s.dev == nil {
		return nil
	}
	dev, done := s.dev, s.readerDone
	s.dev, s.readerDone = nil, nil

	if err := dev.FlushOutput(); err != nil {
		s.log.Debug().Err(err).Str("port", s.cfg.Name).Msg("could not discard pending output")
	}
	err := dev.Close()
	<-done
	if errors.Is(err, ErrPortClosed) {
		err = nil
	}
	s.log.Info().Str("port", s.cfg.Name).Msg("serial port closed")
	return err
}

// Write sends data to the open port, waiting for room in the output queue.
// On a closed session it does nothing and returns (0, nil). The session lock
// is not held while writing, so Close can interrupt a stalled write.
func (s *Session) Write(data []byte) (int, error) {
	s.mu.Lock()
	dev, name := s.dev, s.cfg.Name
	s.mu.Unlock()

	if dev == nil || len(data) == 0 {
		return 0, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n, err := dev.Write(data)
	if err != nil {
		s.log.Warn().Err(err).Str("port", name).Int("written", n).Msg("write failed")
		return n, fmt.Errorf("write %s: %w", name, err)
	}
	return n, nil
}

// Drain waits until everything written so far has been transmitted. It does
// nothing on a closed session.
func (s *Session) Drain() error {
	s.mu.Lock()
	dev, name := s.dev, s.cfg.Name
	s.mu.Unlock()

	if dev == nil {
		return nil
	}
	if err := dev.Drain(); err != nil {
		return fmt.Errorf("drain %s: %w", name, err)
	}
	return nil
}

// WriteString is Write for text
func (s *Session) WriteString(text string) (int, error) {
	return s.Write([]byte(text))
}

// Shutdown closes the port, delivers any pending events and stops the
// dispatcher. Events raised afterwards are dropped. Must not be called from
// an observer.
func (s *Session) Shutdown() error {
	err := s.Close()
	s.shutdownOnce.Do(func() {
		close(s.stop)
		<-s.dispatchDone
		s.queueMu.Lock()
		s.stopped = true
		s.queue = nil
		s.queueMu.Unlock()
	})
	return err
}

// receive drains the device each time it reports readiness and raises one
// DataReceived event per non-empty chunk. It never takes s.mu.
func (s *Session) receive(dev device, name string, done chan struct{}) {
	defer close(done)

	buf := make([]byte, s.readBufferSize)
	empty := 0
	for {
		if err := dev.WaitReadable(); err != nil {
			if !errors.Is(err, ErrPortClosed) {
				s.transportError(dev, name, err)
			}
			return
		}

		n, err := dev.Read(buf)
		if err != nil {
			switch {
			case errors.Is(err, ErrPortClosed):
				return
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
				continue
			}
			s.transportError(dev, name, err)
			return
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				s.transportError(dev, name, ErrDeviceHangup)
				return
			}
			continue
		}
		empty = 0

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		s.emit(Event{
			Kind: EventDataReceived,
			Data: chunk,
			Text: decodeText(s.enc, chunk),
		})
	}
}

func (s *Session) transportError(dev device, name string, err error) {
	s.log.Error().Err(err).Str("port", name).Msg("serial transport error")
	if !s.closeOnTransportError {
		return
	}
	s.emit(Event{Kind: EventTransportError, Err: err})
	// Closing waits for this receive loop, so it has to happen elsewhere.
	go s.dropDevice(dev)
}

// dropDevice closes dev if it is still the session's current device.
func (s *Session) dropDevice(dev device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != dev {
		return
	}
	if err := s.closeLocked(); err != nil {
		s.log.Debug().Err(err).Str("port", s.cfg.Name).Msg("close after transport error")
	}
	s.emit(Event{Kind: EventStatusChanged, Open: false})
}

// emit queues an event for the dispatcher without blocking.
func (s *Session) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	s.queueMu.Lock()
	if s.stopped {
		s.queueMu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.queueMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) dispatch() {
	defer close(s.dispatchDone)
	for {
		select {
		case <-s.wake:
			s.deliverPending()
		case <-s.stop:
			s.deliverPending()
			return
		}
	}
}

func (s *Session) deliverPending() {
	for {
		s.queueMu.Lock()
		batch := s.queue
		s.queue = nil
		s.queueMu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			s.deliver(e)
		}
	}
}

func (s *Session) deliver(e Event) {
	s.obsMu.RLock()
	subs := slices.Clone(s.observers)
	s.obsMu.RUnlock()

	for _, sub := range subs {
		s.notify(sub.observer, e)
	}
}

func (s *Session) notify(o Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Stringer("event", e.Kind).Msg("observer panicked")
		}
	}()
	o.HandleEvent(e)
}
