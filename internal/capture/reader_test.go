package capture

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// onebyte returns at most one byte per Read to exercise partial reads.
type onebyte struct {
	r io.Reader
}

func (o onebyte) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

func TestBodyReader_CapturesWhatWasRead(t *testing.T) {
	buf := NewBuffer(0, nil)
	r := NewBodyReader(io.NopCloser(strings.NewReader("xyz")), buf)

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "xyz" {
		t.Errorf("pass-through broken: got %q", string(data))
	}
	if buf.String() != "xyz" {
		t.Errorf("expected captured %q, got %q", "xyz", buf.String())
	}
}

func TestBodyReader_PartialReads(t *testing.T) {
	buf := NewBuffer(0, nil)
	r := NewBodyReader(io.NopCloser(onebyte{strings.NewReader("xyz")}), buf)

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "xyz" {
		t.Errorf("pass-through broken: got %q", string(data))
	}
	if buf.String() != "xyz" {
		t.Errorf("expected captured %q byte-at-a-time, got %q", "xyz", buf.String())
	}
}

func TestBodyReader_EOFIsNotCaptured(t *testing.T) {
	buf := NewBuffer(0, nil)
	r := NewBodyReader(io.NopCloser(strings.NewReader("")), buf)

	n, err := r.Read(make([]byte, 8))
	if n != 0 || err != io.EOF {
		t.Fatalf("expected EOF, got n=%d err=%v", n, err)
	}
	if buf.Len() != 0 {
		t.Errorf("EOF must capture nothing, got %d bytes", buf.Len())
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }
func (failingReader) Close() error             { return nil }

func TestBodyReader_DelegateErrorPropagates(t *testing.T) {
	buf := NewBuffer(0, nil)
	r := NewBodyReader(failingReader{}, buf)

	_, err := r.Read(make([]byte, 8))
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected delegate error unchanged, got %v", err)
	}
}

type closeCounter struct {
	io.Reader
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestBodyReader_CloseForwards(t *testing.T) {
	cc := &closeCounter{Reader: strings.NewReader("")}
	r := NewBodyReader(cc, NewBuffer(0, nil))
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cc.closed != 1 {
		t.Errorf("expected delegate closed once, got %d", cc.closed)
	}
}

func TestRuneReader_ReadRune(t *testing.T) {
	buf := NewBuffer(0, nil)
	r := NewRuneReader(strings.NewReader("héllo"), buf)

	var out []rune
	for {
		ch, _, err := r.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, ch)
	}
	if string(out) != "héllo" {
		t.Errorf("pass-through broken: got %q", string(out))
	}
	if buf.String() != "héllo" {
		t.Errorf("expected captured %q, got %q", "héllo", buf.String())
	}
}

func TestRuneReader_ReadString(t *testing.T) {
	buf := NewBuffer(0, nil)
	r := NewRuneReader(strings.NewReader("line one\nline two"), buf)

	first, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != "line one\n" {
		t.Errorf("expected first line, got %q", first)
	}

	second, err := r.ReadString('\n')
	if err != io.EOF {
		t.Fatalf("expected EOF on last line, got %v", err)
	}
	if second != "line two" {
		t.Errorf("expected remainder, got %q", second)
	}
	if buf.String() != "line one\nline two" {
		t.Errorf("expected full capture, got %q", buf.String())
	}
}
