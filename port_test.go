package serial

import (
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// openPTY returns the master side of a fresh pseudo-terminal and the path of
// its slave, which stands in for a serial device.
func openPTY(t *testing.T) (*os.File, string) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})
	return master, slave.Name()
}

func TestGetBaudRate(t *testing.T) {
	tests := []struct {
		input    int
		hasError bool
	}{
		{115200, false},
		{9600, false},
		{57600, false},
		{4000000, false},
		{123456, true}, // Invalid baud rate
		{0, true},
	}

	for _, test := range tests {
		result, err := getBaudRate(test.input)
		if test.hasError {
			if !errors.Is(err, ErrInvalidBaudRate) {
				t.Errorf("Expected ErrInvalidBaudRate for %d, got %v", test.input, err)
			}
		} else {
			if err != nil {
				t.Errorf("Unexpected error for baud rate %d: %v", test.input, err)
			}
			if result == 0 {
				t.Errorf("Got zero result for valid baud rate %d", test.input)
			}
		}
	}
}

func TestApplyConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    PortConfig
		cflagSet  uint32
		cflagZero uint32
		iflagSet  uint32
		iflagZero uint32
	}{
		{
			name:      "8N1",
			config:    DefaultConfig("x"),
			cflagSet:  unix.CS8 | unix.CREAD | unix.CLOCAL,
			cflagZero: unix.PARENB | unix.CSTOPB | unix.CRTSCTS | cmspar,
			iflagZero: unix.IXON | unix.IXOFF | unix.INPCK,
		},
		{
			name:      "7E2",
			config:    PortConfig{Name: "x", DataBits: 7, Parity: ParityEven, StopBits: StopBitsTwo},
			cflagSet:  unix.CS7 | unix.PARENB | unix.CSTOPB,
			cflagZero: unix.PARODD | cmspar,
			iflagSet:  unix.INPCK,
		},
		{
			name:     "odd",
			config:   PortConfig{Name: "x", Parity: ParityOdd},
			cflagSet: unix.PARENB | unix.PARODD,
		},
		{
			name:      "space",
			config:    PortConfig{Name: "x", Parity: ParitySpace},
			cflagSet:  unix.PARENB | cmspar,
			cflagZero: unix.PARODD,
		},
		{
			name:     "mark",
			config:   PortConfig{Name: "x", Parity: ParityMark},
			cflagSet: unix.PARENB | cmspar | unix.PARODD,
		},
		{
			name:     "hardware flow control",
			config:   PortConfig{Name: "x", FlowControl: FlowControlHardware},
			cflagSet: unix.CRTSCTS,
		},
		{
			name:      "software flow control",
			config:    PortConfig{Name: "x", FlowControl: FlowControlSoftware},
			iflagSet:  unix.IXON | unix.IXOFF,
			cflagZero: unix.CRTSCTS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Start from a cooked-looking termios so clearing is exercised too.
			termios := &unix.Termios{
				Iflag: unix.ICRNL | unix.IXON | unix.INPCK,
				Oflag: unix.OPOST,
				Lflag: unix.ECHO | unix.ICANON | unix.ISIG,
				Cflag: unix.PARENB | unix.CRTSCTS | unix.CS7,
			}
			if err := applyConfig(termios, tt.config); err != nil {
				t.Fatalf("applyConfig failed: %v", err)
			}

			if termios.Cflag&tt.cflagSet != tt.cflagSet {
				t.Errorf("Cflag %#x missing bits %#x", termios.Cflag, tt.cflagSet&^termios.Cflag)
			}
			if termios.Cflag&tt.cflagZero != 0 {
				t.Errorf("Cflag %#x has unexpected bits %#x", termios.Cflag, termios.Cflag&tt.cflagZero)
			}
			if termios.Iflag&tt.iflagSet != tt.iflagSet {
				t.Errorf("Iflag %#x missing bits %#x", termios.Iflag, tt.iflagSet&^termios.Iflag)
			}
			if termios.Iflag&tt.iflagZero != 0 {
				t.Errorf("Iflag %#x has unexpected bits %#x", termios.Iflag, termios.Iflag&tt.iflagZero)
			}
			if termios.Lflag&(unix.ECHO|unix.ICANON|unix.ISIG) != 0 {
				t.Errorf("Lflag %#x not raw", termios.Lflag)
			}
			if termios.Oflag&unix.OPOST != 0 {
				t.Errorf("Oflag %#x not raw", termios.Oflag)
			}
			if termios.Cc[unix.VMIN] != 0 || termios.Cc[unix.VTIME] != 0 {
				t.Errorf("VMIN/VTIME = %d/%d, want 0/0", termios.Cc[unix.VMIN], termios.Cc[unix.VTIME])
			}
		})
	}
}

func TestApplyConfigRejectsOnePointFiveStopBits(t *testing.T) {
	err := applyConfig(&unix.Termios{}, PortConfig{Name: "x", StopBits: StopBitsOnePointFive})
	if !errors.Is(err, ErrUnsupportedStopBits) {
		t.Errorf("Expected ErrUnsupportedStopBits, got %v", err)
	}
}

func TestOpenNonExistentDevice(t *testing.T) {
	_, err := Open(DefaultConfig("/dev/nonexistent"))
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

func TestOpenInvalidConfig(t *testing.T) {
	_, err := Open(PortConfig{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestPortLoopback(t *testing.T) {
	master, name := openPTY(t)

	p, err := Open(DefaultConfig(name))
	require.NoError(t, err)
	defer p.Close()

	n, err := p.Write([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	buf := make([]byte, 4)
	_, err = io.ReadFull(master, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))

	_, err = master.Write([]byte("pong"))
	require.NoError(t, err)

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 4 && time.Now().Before(deadline) {
		require.NoError(t, p.WaitReadable())
		n, err := p.Read(buf)
		if errors.Is(err, unix.EAGAIN) {
			continue
		}
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, "pong", string(got))

	avail, err := p.BytesAvailable()
	require.NoError(t, err)
	require.Zero(t, avail)
}

func TestCloseReleasesWaitReadable(t *testing.T) {
	_, name := openPTY(t)

	p, err := Open(DefaultConfig(name))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.WaitReadable()
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrPortClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitReadable did not return after Close")
	}

	require.ErrorIs(t, p.Close(), ErrPortClosed)
}

func TestCloseReleasesBlockedWrite(t *testing.T) {
	// Nobody reads the master, so the output queue fills up.
	_, name := openPTY(t)

	p, err := Open(DefaultConfig(name))
	require.NoError(t, err)

	type result struct {
		n   int
		err error
	}
	payload := make([]byte, 1<<20)
	done := make(chan result, 1)
	go func() {
		n, err := p.Write(payload)
		done <- result{n, err}
	}()

	select {
	case r := <-done:
		t.Fatalf("write of %d bytes finished without a reader: %d, %v", len(payload), r.n, r.err)
	case <-time.After(200 * time.Millisecond):
	}

	closed := make(chan error, 1)
	go func() {
		closed <- p.Close()
	}()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked behind a pending write")
	}

	select {
	case r := <-done:
		require.ErrorIs(t, r.err, ErrPortClosed)
		require.Less(t, r.n, len(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("Write did not return after Close")
	}
}

func TestDrain(t *testing.T) {
	master, name := openPTY(t)

	p, err := Open(DefaultConfig(name))
	require.NoError(t, err)

	_, err = p.Write([]byte("flush me"))
	require.NoError(t, err)
	buf := make([]byte, 8)
	_, err = io.ReadFull(master, buf)
	require.NoError(t, err)

	require.NoError(t, p.Drain())
	require.NoError(t, p.FlushOutput())

	require.NoError(t, p.Close())
	require.ErrorIs(t, p.Drain(), ErrPortClosed)
	require.ErrorIs(t, p.FlushOutput(), ErrPortClosed)
}

func TestWaitReadableReportsHangup(t *testing.T) {
	master, name := openPTY(t)

	p, err := Open(DefaultConfig(name))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, master.Close())

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.WaitReadable()
	}()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrDeviceHangup)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitReadable did not report the hang-up")
	}
}

func TestReopenAfterClose(t *testing.T) {
	_, name := openPTY(t)

	p, err := Open(DefaultConfig(name))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	p, err = Open(DefaultConfig(name))
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
