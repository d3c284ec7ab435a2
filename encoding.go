package serial

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// LookupEncoding resolves a WHATWG encoding label ("utf-8", "gbk", "latin1", ...).
// An empty name selects UTF-8.
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return enc, nil
}

// decodeText converts one received chunk to a string. Invalid sequences
// become U+FFFD; bytes are never dropped silently.
func decodeText(enc encoding.Encoding, data []byte) string {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return string(out)
}

// EncodeText converts text typed by the user into bytes for the wire.
// Characters enc cannot represent are reported rather than replaced.
func EncodeText(enc encoding.Encoding, text string) ([]byte, error) {
	if enc == nil {
		enc = unicode.UTF8
	}
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", text, err)
	}
	return out, nil
}
