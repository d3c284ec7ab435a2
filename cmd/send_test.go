package cmd

import (
	"io"
	"testing"

	serial "github.com/allbin/serial-assistant"
	"github.com/creack/pty"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

func TestBuildPayload(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		hex        bool
		newline    bool
		enc        encoding.Encoding
		want       []byte
		wantErrMsg string
	}{
		{name: "text", data: "AT", want: []byte("AT")},
		{name: "text with newline", data: "AT", newline: true, want: []byte("AT\n")},
		{name: "hex", data: "41 54", hex: true, want: []byte("AT")},
		{name: "hex ignores newline", data: "4154", hex: true, newline: true, want: []byte("AT")},
		{name: "bad hex", data: "zz", hex: true, wantErrMsg: "invalid hex data"},
		{name: "latin1 text", data: "Grüße", enc: charmap.ISO8859_1, want: []byte("Gr\xfc\xdfe")},
		{name: "unencodable text", data: "日本", enc: charmap.ISO8859_1, wantErrMsg: "encode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildPayload(tt.data, tt.hex, tt.newline, tt.enc)
			if tt.wantErrMsg != "" {
				require.ErrorContains(t, err, tt.wantErrMsg)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPreview(t *testing.T) {
	require.Equal(t, "OK··", preview([]byte("OK\r\n")))

	long := make([]byte, 60)
	for i := range long {
		long[i] = 'a'
	}
	got := preview(long)
	require.Len(t, got, 53)
	require.Equal(t, "...", got[50:])
}

func TestSendDataWritesAndCloses(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})

	s := serial.NewSession()
	t.Cleanup(func() { s.Shutdown() })

	err = sendData(&cobra.Command{}, s, serial.DefaultConfig(slave.Name()), []byte("AT\r"), 0)
	require.NoError(t, err)
	require.False(t, s.IsOpen())

	buf := make([]byte, 3)
	_, err = io.ReadFull(master, buf)
	require.NoError(t, err)
	require.Equal(t, "AT\r", string(buf))
}
