package capture

import (
	"bufio"
	"io"
)

// BodyReader is the byte view of a request body. Every Read forwards to
// the delegate first and then appends exactly the bytes the delegate
// returned, so the caller sees the stream unchanged, including EOF and
// partial reads.
type BodyReader struct {
	delegate io.ReadCloser
	buf      *Buffer
}

// NewBodyReader wraps rc so that everything read through it is also
// appended to buf.
func NewBodyReader(rc io.ReadCloser, buf *Buffer) *BodyReader {
	return &BodyReader{delegate: rc, buf: buf}
}

// Read reads from the underlying body and captures the bytes actually
// returned. The delegate's result, including any error, is returned
// unchanged.
func (r *BodyReader) Read(p []byte) (int, error) {
	n, err := r.delegate.Read(p)
	if n > 0 {
		_ = r.buf.appendBytes(p[:n])
	}
	return n, err
}

// Close closes the underlying body.
func (r *BodyReader) Close() error {
	return r.delegate.Close()
}

// RuneReader is the text view of a request body. It buffers the
// underlying stream for rune decoding but captures only what the caller
// actually consumed.
type RuneReader struct {
	br  *bufio.Reader
	buf *Buffer
}

// NewRuneReader wraps rd as a rune-oriented reader that appends every
// consumed rune to buf.
func NewRuneReader(rd io.Reader, buf *Buffer) *RuneReader {
	return &RuneReader{br: bufio.NewReader(rd), buf: buf}
}

// ReadRune reads a single rune and captures it on success.
func (r *RuneReader) ReadRune() (rune, int, error) {
	ch, size, err := r.br.ReadRune()
	if err == nil {
		_ = r.buf.appendRune(ch)
	}
	return ch, size, err
}

// ReadString reads until the first occurrence of delim, capturing the
// data returned. As with bufio, the returned string includes the
// delimiter; on EOF the data read so far is returned with the error.
func (r *RuneReader) ReadString(delim byte) (string, error) {
	s, err := r.br.ReadString(delim)
	if len(s) > 0 {
		_ = r.buf.appendString(s)
	}
	return s, err
}
