package capture

import (
	"io"
	"net/http"
)

// ResponseWriter is the byte view of a response. Writes are forwarded to
// the delegate first, preserving ordering and backpressure, and the bytes
// the delegate accepted are then appended to the capture buffer. Delegate
// errors propagate untouched.
type ResponseWriter struct {
	delegate    http.ResponseWriter
	buf         *Buffer
	status      int
	wroteHeader bool
}

// NewResponseWriter wraps w so that everything written through it is also
// appended to buf.
func NewResponseWriter(w http.ResponseWriter, buf *Buffer) *ResponseWriter {
	return &ResponseWriter{delegate: w, buf: buf}
}

// Header returns the delegate's header map.
func (w *ResponseWriter) Header() http.Header {
	return w.delegate.Header()
}

// Write forwards p to the delegate and captures the prefix it accepted.
func (w *ResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.delegate.Write(p)
	if n > 0 {
		_ = w.buf.appendBytes(p[:n])
	}
	return n, err
}

// WriteHeader records the status code and forwards it.
func (w *ResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = status
	w.delegate.WriteHeader(status)
}

// Flush forwards to the delegate if it supports flushing. Flushing never
// finalizes capture; a response may be flushed many times before the
// exchange completes.
func (w *ResponseWriter) Flush() {
	if f, ok := w.delegate.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the delegate for http.ResponseController.
func (w *ResponseWriter) Unwrap() http.ResponseWriter {
	return w.delegate
}

// Status returns the status code sent so far, or zero if no header has
// been written yet.
func (w *ResponseWriter) Status() int {
	return w.status
}

// TextWriter is the character view of a response. It shares the response
// capture buffer in rune mode and forwards through the same delegate as
// the byte view.
type TextWriter struct {
	delegate io.Writer
	buf      *Buffer
}

// WriteString forwards s to the delegate and captures the prefix it
// accepted.
func (w *TextWriter) WriteString(s string) (int, error) {
	n, err := io.WriteString(w.delegate, s)
	if n > 0 {
		_ = w.buf.appendString(s[:n])
	}
	return n, err
}

// WriteRune forwards a single rune.
func (w *TextWriter) WriteRune(r rune) (int, error) {
	n, err := io.WriteString(w.delegate, string(r))
	if err == nil {
		_ = w.buf.appendRune(r)
	}
	return n, err
}
