package harlog

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// Request bodies in a transaction log are arbitrary binary (audio chunk
// payloads), stored as JSON text. The capture tooling maps each byte to
// the code point of the same value, which is exactly ISO 8859-1, so the
// text/bytes conversion must go through latin-1 rather than UTF-8.

// DecodeBodyText converts log text back into the raw body bytes.
// It fails if the text contains code points above U+00FF, which cannot
// have come from a byte-preserving capture.
func DecodeBodyText(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("body is not latin-1 representable: %w", err)
	}
	return b, nil
}

// EncodeBodyText converts raw body bytes into log text. Every byte value
// maps to a latin-1 code point, so this conversion is total.
func EncodeBodyText(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// The latin-1 decoder accepts every byte value, so this branch
		// cannot be reached with current charmap behavior.
		return string(b)
	}
	return string(s)
}
