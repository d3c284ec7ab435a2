package serial

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const eventTimeout = 2 * time.Second

// fakePort is a scripted device: every chunk pushed with feed is returned by
// exactly one Read, and fail makes the next WaitReadable return an error.
type fakePort struct {
	mu      sync.Mutex
	pending []byte
	written bytes.Buffer
	dtr     bool
	rts     bool
	flushed bool
	dtrErr  error
	drained int
	// outputFlushed records whether output was discarded before Close
	outputFlushed bool

	chunks    chan []byte
	failures  chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		chunks:   make(chan []byte, 64),
		failures: make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (f *fakePort) feed(chunk string) { f.chunks <- []byte(chunk) }
func (f *fakePort) fail(err error)    { f.failures <- err }

func (f *fakePort) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakePort) WaitReadable() error {
	f.mu.Lock()
	if len(f.pending) > 0 {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	select {
	case <-f.closed:
		return ErrPortClosed
	case err := <-f.failures:
		return err
	case chunk := <-f.chunks:
		f.mu.Lock()
		f.pending = append(f.pending, chunk...)
		f.mu.Unlock()
		return nil
	}
}

func (f *fakePort) Read(buf []byte) (int, error) {
	if f.isClosed() {
		return 0, ErrPortClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(buf, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakePort) Write(data []byte) (int, error) {
	if f.isClosed() {
		return 0, ErrPortClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.Write(data)
}

func (f *fakePort) Close() error {
	err := ErrPortClosed
	f.closeOnce.Do(func() {
		close(f.closed)
		err = nil
	})
	return err
}

func (f *fakePort) FlushInput() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed = true
	return nil
}

func (f *fakePort) FlushOutput() error {
	if f.isClosed() {
		return ErrPortClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputFlushed = true
	return nil
}

func (f *fakePort) Drain() error {
	if f.isClosed() {
		return ErrPortClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drained++
	return nil
}

func (f *fakePort) SetDTR(state bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dtrErr != nil {
		return f.dtrErr
	}
	f.dtr = state
	return nil
}

func (f *fakePort) SetRTS(state bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rts = state
	return nil
}

func (f *fakePort) writtenString() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

// fakeOpener hands out pre-registered fake ports by name.
type fakeOpener struct {
	mu    sync.Mutex
	ports map[string]*fakePort
	calls int
}

func newFakeOpener(names ...string) *fakeOpener {
	o := &fakeOpener{ports: make(map[string]*fakePort)}
	for _, name := range names {
		o.ports[name] = newFakePort()
	}
	return o
}

func (o *fakeOpener) open(cfg PortConfig) (device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	p, ok := o.ports[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", cfg.Name, ErrDeviceNotFound)
	}
	return p, nil
}

// recorder collects the events a session delivers.
type recorder struct {
	events chan Event
}

func record(t *testing.T, s *Session) *recorder {
	t.Helper()
	r := &recorder{events: make(chan Event, 1024)}
	cancel := s.Subscribe(ObserverFunc(func(e Event) {
		r.events <- e
	}))
	t.Cleanup(cancel)
	return r
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func (r *recorder) expectStatus(t *testing.T, open bool) {
	t.Helper()
	e := r.next(t)
	require.Equal(t, EventStatusChanged, e.Kind, "unexpected event %+v", e)
	require.Equal(t, open, e.Open)
}

func (r *recorder) expectData(t *testing.T) Event {
	t.Helper()
	e := r.next(t)
	require.Equal(t, EventDataReceived, e.Kind, "unexpected event %+v", e)
	return e
}

// collectText gathers DataReceived text until it reaches want's length.
func (r *recorder) collectText(t *testing.T, want string) string {
	t.Helper()
	var got strings.Builder
	for got.Len() < len(want) {
		got.WriteString(r.expectData(t).Text)
	}
	return got.String()
}

func (r *recorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestSession(t *testing.T, opts ...SessionOption) *Session {
	t.Helper()
	s := NewSession(opts...)
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func TestSessionStartsClosed(t *testing.T) {
	s := newTestSession(t)

	require.False(t, s.IsOpen())
	require.Equal(t, PortConfig{}, s.Config())
}

func TestSessionOpenWriteReceive(t *testing.T) {
	master, name := openPTY(t)
	s := newTestSession(t)
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig(name)))
	require.True(t, s.IsOpen())
	events.expectStatus(t, true)

	_, err := master.Write([]byte("hello\r\n"))
	require.NoError(t, err)
	require.Equal(t, "hello\r\n", events.collectText(t, "hello\r\n"))

	n, err := s.WriteString("AT\r\n")
	require.NoError(t, err)
	require.Equal(t, 4, n)

	buf := make([]byte, 4)
	_, err = io.ReadFull(master, buf)
	require.NoError(t, err)
	require.Equal(t, "AT\r\n", string(buf))

	require.NoError(t, s.Close())
	events.expectStatus(t, false)
	require.False(t, s.IsOpen())
}

func TestSessionWriteWhileClosed(t *testing.T) {
	s := newTestSession(t)
	events := record(t, s)

	n, err := s.Write([]byte("data"))
	require.NoError(t, err)
	require.Zero(t, n)
	events.expectNone(t)
}

func TestSessionOpenMissingDevice(t *testing.T) {
	s := newTestSession(t)
	events := record(t, s)

	err := s.Open(DefaultConfig("/dev/does-not-exist"))
	require.ErrorIs(t, err, ErrDeviceNotFound)
	require.False(t, s.IsOpen())
	events.expectNone(t)
}

func TestSessionOpenInvalidConfig(t *testing.T) {
	opener := newFakeOpener("/dev/fake0")
	s := newTestSession(t, withOpener(opener.open))

	err := s.Open(PortConfig{Name: "/dev/fake0", DataBits: 9})
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Zero(t, opener.calls)
	require.False(t, s.IsOpen())
}

func TestSessionOpenReplacesOpenPort(t *testing.T) {
	opener := newFakeOpener("/dev/fakeA", "/dev/fakeB")
	s := newTestSession(t, withOpener(opener.open))
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig("/dev/fakeA")))
	events.expectStatus(t, true)

	require.NoError(t, s.Open(DefaultConfig("/dev/fakeB")))
	events.expectStatus(t, false)
	events.expectStatus(t, true)

	require.True(t, opener.ports["/dev/fakeA"].isClosed())
	require.False(t, opener.ports["/dev/fakeB"].isClosed())
	require.Equal(t, "/dev/fakeB", s.Config().Name)

	_, err := s.WriteString("x")
	require.NoError(t, err)
	require.Equal(t, "x", opener.ports["/dev/fakeB"].writtenString())
	require.Empty(t, opener.ports["/dev/fakeA"].writtenString())
}

func TestSessionFailedReopenReportsClosed(t *testing.T) {
	opener := newFakeOpener("/dev/fakeA")
	s := newTestSession(t, withOpener(opener.open))
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig("/dev/fakeA")))
	events.expectStatus(t, true)

	err := s.Open(DefaultConfig("/dev/gone"))
	require.ErrorIs(t, err, ErrDeviceNotFound)
	events.expectStatus(t, false)
	require.False(t, s.IsOpen())
	require.True(t, opener.ports["/dev/fakeA"].isClosed())

	// A rejected configuration still closes the open port first.
	opener.ports["/dev/fakeB"] = newFakePort()
	require.NoError(t, s.Open(DefaultConfig("/dev/fakeB")))
	events.expectStatus(t, true)

	err = s.Open(PortConfig{Name: "/dev/fakeB", DataBits: 9})
	require.ErrorIs(t, err, ErrInvalidConfig)
	events.expectStatus(t, false)
	events.expectNone(t)
	require.False(t, s.IsOpen())
	require.True(t, opener.ports["/dev/fakeB"].isClosed())
	require.Equal(t, 3, opener.calls, "an invalid configuration never reaches the device")
}

func TestSessionDrain(t *testing.T) {
	opener := newFakeOpener("/dev/fake0")
	s := newTestSession(t, withOpener(opener.open))

	require.NoError(t, s.Drain())

	require.NoError(t, s.Open(DefaultConfig("/dev/fake0")))
	_, err := s.WriteString("ATZ\r")
	require.NoError(t, err)
	require.NoError(t, s.Drain())

	p := opener.ports["/dev/fake0"]
	p.mu.Lock()
	require.Equal(t, 1, p.drained)
	require.False(t, p.outputFlushed)
	p.mu.Unlock()

	require.NoError(t, s.Close())
	p.mu.Lock()
	require.True(t, p.outputFlushed)
	p.mu.Unlock()
	require.True(t, p.isClosed())
}

func TestSessionCloseInterruptsStalledWrite(t *testing.T) {
	// The master end never reads, so a large write cannot complete.
	_, name := openPTY(t)
	s := newTestSession(t)
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig(name)))
	events.expectStatus(t, true)

	writeErr := make(chan error, 1)
	go func() {
		_, err := s.Write(make([]byte, 1<<20))
		writeErr <- err
	}()
	time.Sleep(200 * time.Millisecond)

	// Other callers must not queue up behind the writer.
	require.True(t, s.IsOpen())
	require.Equal(t, name, s.Config().Name)

	closed := make(chan error, 1)
	go func() {
		closed <- s.Close()
	}()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return while a write was pending")
	}
	events.expectStatus(t, false)

	select {
	case err := <-writeErr:
		require.ErrorIs(t, err, ErrPortClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending write was not released by Close")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	opener := newFakeOpener("/dev/fake0")
	s := newTestSession(t, withOpener(opener.open))
	events := record(t, s)

	require.NoError(t, s.Close())
	events.expectStatus(t, false)

	require.NoError(t, s.Open(DefaultConfig("/dev/fake0")))
	events.expectStatus(t, true)

	require.NoError(t, s.Close())
	events.expectStatus(t, false)
	require.NoError(t, s.Close())
	events.expectStatus(t, false)
	require.False(t, s.IsOpen())
}

func TestSessionOpenPreparesLines(t *testing.T) {
	opener := newFakeOpener("/dev/fake0")
	s := newTestSession(t, withOpener(opener.open))

	require.NoError(t, s.Open(DefaultConfig("/dev/fake0")))

	p := opener.ports["/dev/fake0"]
	p.mu.Lock()
	defer p.mu.Unlock()
	require.True(t, p.dtr)
	require.True(t, p.rts)
	require.True(t, p.flushed)
}

func TestSessionSignalFailureIsNotFatal(t *testing.T) {
	opener := newFakeOpener("/dev/fake0")
	opener.ports["/dev/fake0"].dtrErr = errors.New("inappropriate ioctl for device")
	s := newTestSession(t, withOpener(opener.open))

	require.NoError(t, s.Open(DefaultConfig("/dev/fake0")))
	require.True(t, s.IsOpen())
}

func TestSessionDeliversChunksInOrder(t *testing.T) {
	opener := newFakeOpener("/dev/fake0")
	s := newTestSession(t, withOpener(opener.open))
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig("/dev/fake0")))
	events.expectStatus(t, true)

	p := opener.ports["/dev/fake0"]
	p.feed("abc")
	require.Equal(t, []byte("abc"), events.expectData(t).Data)
	p.feed("def")
	require.Equal(t, "def", events.expectData(t).Text)
}

func TestSessionReadBufferSizeSplitsChunks(t *testing.T) {
	opener := newFakeOpener("/dev/fake0")
	s := newTestSession(t, withOpener(opener.open), WithReadBufferSize(4))
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig("/dev/fake0")))
	events.expectStatus(t, true)

	opener.ports["/dev/fake0"].feed("0123456789")
	require.Equal(t, "0123", events.expectData(t).Text)
	require.Equal(t, "4567", events.expectData(t).Text)
	require.Equal(t, "89", events.expectData(t).Text)
}

func TestSessionDecodesLossily(t *testing.T) {
	opener := newFakeOpener("/dev/fake0")
	s := newTestSession(t, withOpener(opener.open))
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig("/dev/fake0")))
	events.expectStatus(t, true)

	opener.ports["/dev/fake0"].feed("ok\xff\xfe!")
	e := events.expectData(t)
	require.Equal(t, "ok\uFFFD\uFFFD!", e.Text)
	require.Equal(t, []byte("ok\xff\xfe!"), e.Data)
}

func TestSessionCustomEncoding(t *testing.T) {
	opener := newFakeOpener("/dev/fake0")
	s := newTestSession(t, withOpener(opener.open), WithEncoding(charmap.ISO8859_1))
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig("/dev/fake0")))
	events.expectStatus(t, true)

	opener.ports["/dev/fake0"].feed("caf\xe9")
	require.Equal(t, "café", events.expectData(t).Text)
}

func TestSessionTransportErrorIsLogged(t *testing.T) {
	var logs syncBuffer
	opener := newFakeOpener("/dev/fake0")
	s := newTestSession(t, withOpener(opener.open), WithLogger(zerolog.New(&logs)))
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig("/dev/fake0")))
	events.expectStatus(t, true)

	opener.ports["/dev/fake0"].fail(ErrDeviceHangup)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "serial transport error")
	}, eventTimeout, 10*time.Millisecond)

	events.expectNone(t)
	require.True(t, s.IsOpen())

	require.NoError(t, s.Close())
	events.expectStatus(t, false)
}

func TestSessionDisconnectDetection(t *testing.T) {
	opener := newFakeOpener("/dev/fake0")
	s := newTestSession(t, withOpener(opener.open), WithDisconnectDetection())
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig("/dev/fake0")))
	events.expectStatus(t, true)

	opener.ports["/dev/fake0"].fail(ErrDeviceHangup)

	e := events.next(t)
	require.Equal(t, EventTransportError, e.Kind)
	require.ErrorIs(t, e.Err, ErrDeviceHangup)
	events.expectStatus(t, false)
	require.False(t, s.IsOpen())
	require.True(t, opener.ports["/dev/fake0"].isClosed())
}

func TestSessionDisconnectDetectionOnHangup(t *testing.T) {
	master, name := openPTY(t)
	s := newTestSession(t, WithDisconnectDetection())
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig(name)))
	events.expectStatus(t, true)

	require.NoError(t, master.Close())

	e := events.next(t)
	require.Equal(t, EventTransportError, e.Kind)
	events.expectStatus(t, false)
	require.False(t, s.IsOpen())
}

func TestSessionPortNames(t *testing.T) {
	ports := []PortDescriptor{
		{SystemName: "/dev/ttyUSB0", Description: "FT232R USB UART"},
		{SystemName: "/dev/ttyS0"},
	}
	s := newTestSession(t, WithEnumerator(func() ([]PortDescriptor, error) {
		return ports, nil
	}))

	require.Empty(t, s.ResolveName(0))
	require.Empty(t, s.DisplayNames())

	got := s.ListPorts()
	require.Equal(t, ports, got)
	require.Equal(t, []string{"/dev/ttyUSB0 (FT232R USB UART)", "/dev/ttyS0"}, s.DisplayNames())
	require.Equal(t, "/dev/ttyUSB0", s.ResolveName(0))
	require.Equal(t, "/dev/ttyS0", s.ResolveName(1))
	require.Empty(t, s.ResolveName(2))
	require.Empty(t, s.ResolveName(-1))

	got[0].SystemName = "mutated"
	require.Equal(t, "/dev/ttyUSB0", s.ResolveName(0))
}

func TestSessionResolveUsesLastEnumeration(t *testing.T) {
	var mu sync.Mutex
	attached := []PortDescriptor{{SystemName: "/dev/ttyUSB0"}}
	s := newTestSession(t, WithEnumerator(func() ([]PortDescriptor, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]PortDescriptor(nil), attached...), nil
	}))

	s.ListPorts()

	mu.Lock()
	attached = append([]PortDescriptor{{SystemName: "/dev/ttyACM0"}}, attached...)
	mu.Unlock()

	// Hot-plugged device is invisible until the next enumeration
	require.Equal(t, "/dev/ttyUSB0", s.ResolveName(0))
	require.Empty(t, s.ResolveName(1))

	s.ListPorts()
	require.Equal(t, "/dev/ttyACM0", s.ResolveName(0))
	require.Equal(t, "/dev/ttyUSB0", s.ResolveName(1))
}

func TestSessionEnumerationFailure(t *testing.T) {
	s := newTestSession(t, WithEnumerator(func() ([]PortDescriptor, error) {
		return nil, errors.New("no /dev")
	}))

	ports := s.ListPorts()
	require.NotNil(t, ports)
	require.Empty(t, ports)
	require.Empty(t, s.ResolveName(0))
}

func TestSessionUnsubscribe(t *testing.T) {
	s := newTestSession(t)
	stayed := record(t, s)

	var mu sync.Mutex
	count := 0
	cancel := s.Subscribe(ObserverFunc(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	require.NoError(t, s.Close())
	stayed.expectStatus(t, false)

	cancel()
	require.NoError(t, s.Close())
	stayed.expectStatus(t, false)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, count)
}

func TestSessionSurvivesPanickingObserver(t *testing.T) {
	s := newTestSession(t)
	s.Subscribe(ObserverFunc(func(Event) {
		panic("boom")
	}))
	events := record(t, s)

	require.NoError(t, s.Close())
	events.expectStatus(t, false)
	require.NoError(t, s.Close())
	events.expectStatus(t, false)
}

func TestSessionShutdown(t *testing.T) {
	opener := newFakeOpener("/dev/fake0")
	s := NewSession(withOpener(opener.open))
	events := record(t, s)

	require.NoError(t, s.Open(DefaultConfig("/dev/fake0")))
	require.NoError(t, s.Shutdown())

	events.expectStatus(t, true)
	events.expectStatus(t, false)
	require.True(t, opener.ports["/dev/fake0"].isClosed())

	require.NoError(t, s.Shutdown())
	events.expectNone(t)
}

func TestEventKindString(t *testing.T) {
	require.Equal(t, "data", EventDataReceived.String())
	require.Equal(t, "status", EventStatusChanged.String())
	require.Equal(t, "transport-error", EventTransportError.String())
	require.Equal(t, "EventKind(9)", EventKind(9).String())
}

// syncBuffer is a bytes.Buffer safe for a logger writing from another goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
