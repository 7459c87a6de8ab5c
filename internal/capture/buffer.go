// Package capture implements pass-through proxies over HTTP request and
// response bodies. Every proxy forwards each read or write to the real
// stream first and keeps an independent copy of the bytes or characters
// that actually moved, so the application observes the exchange exactly
// as it would without capture.
package capture

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/text/encoding/htmlindex"
)

// ErrModeConflict is returned when an exchange that already uses one body
// access mode (bytes or text) is asked for the other. Both views share a
// single buffer and mixing them on one exchange is not supported.
var ErrModeConflict = errors.New("capture: byte and text access modes cannot be mixed on one exchange")

type bufferMode int

const (
	modeUnset bufferMode = iota
	modeBytes
	modeRunes
)

// Buffer accumulates one copy of the data that passed through a stream
// proxy. The mode (bytes or runes) is fixed by the first append. Appends
// past the configured limit are dropped; the application stream is never
// affected by the buffer state.
type Buffer struct {
	mu    sync.Mutex
	mode  bufferMode
	data  []byte
	runes []rune
	limit int64

	charset     string
	charsetFn   func() string
	charsetOnce sync.Once
}

// NewBuffer creates a buffer that captures at most limit bytes or runes.
// A zero or negative limit means unlimited. charsetFn reports the charset
// declared by the exchange; it is consulted once, on the first decode.
func NewBuffer(limit int64, charsetFn func() string) *Buffer {
	return &Buffer{limit: limit, charsetFn: charsetFn}
}

func (b *Buffer) appendBytes(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == modeRunes {
		return ErrModeConflict
	}
	b.mode = modeBytes
	if b.limit > 0 {
		remaining := b.limit - int64(len(b.data))
		if remaining <= 0 {
			return nil
		}
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}
	b.data = append(b.data, p...)
	return nil
}

func (b *Buffer) appendString(s string) error {
	if len(s) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == modeBytes {
		return ErrModeConflict
	}
	b.mode = modeRunes
	for _, r := range s {
		if b.limit > 0 && int64(len(b.runes)) >= b.limit {
			return nil
		}
		b.runes = append(b.runes, r)
	}
	return nil
}

func (b *Buffer) appendRune(r rune) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == modeBytes {
		return ErrModeConflict
	}
	b.mode = modeRunes
	if b.limit > 0 && int64(len(b.runes)) >= b.limit {
		return nil
	}
	b.runes = append(b.runes, r)
	return nil
}

// Len returns the number of captured bytes or runes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == modeRunes {
		return len(b.runes)
	}
	return len(b.data)
}

// Bytes returns the captured content as raw bytes. In rune mode the text
// is encoded as UTF-8.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == modeRunes {
		return []byte(string(b.runes))
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// String returns the captured content as text. Byte-mode content is
// decoded with the charset the exchange declared; if the charset is
// unknown or the decode fails, the raw bytes are rendered as-is so that
// capture never propagates a decode error.
func (b *Buffer) String() string {
	b.charsetOnce.Do(func() {
		if b.charsetFn != nil {
			b.charset = b.charsetFn()
		}
	})
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == modeRunes {
		return string(b.runes)
	}
	return decode(b.data, b.charset)
}

func decode(data []byte, charset string) string {
	if len(data) == 0 {
		return ""
	}
	cs := strings.ToLower(strings.TrimSpace(charset))
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return string(data)
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return string(data)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}
