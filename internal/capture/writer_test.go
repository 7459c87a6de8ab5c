package capture

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseWriter_PassThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	buf := NewBuffer(0, nil)
	w := NewResponseWriter(rec, buf)

	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("abc")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := w.Write([]byte("def")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Body.String() != "abcdef" {
		t.Errorf("delegate saw %q, want %q", rec.Body.String(), "abcdef")
	}
	if buf.String() != "abcdef" {
		t.Errorf("captured %q, want %q", buf.String(), "abcdef")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected implicit 200, got %d", rec.Code)
	}
	if w.Status() != http.StatusOK {
		t.Errorf("expected recorded 200, got %d", w.Status())
	}
}

func TestResponseWriter_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewResponseWriter(rec, NewBuffer(0, nil))

	w.WriteHeader(http.StatusCreated)
	w.WriteHeader(http.StatusTeapot) // second call ignored, matching net/http

	if rec.Code != http.StatusCreated {
		t.Errorf("delegate saw %d, want %d", rec.Code, http.StatusCreated)
	}
	if w.Status() != http.StatusCreated {
		t.Errorf("recorded %d, want %d", w.Status(), http.StatusCreated)
	}
}

// shortWriter accepts only the first two bytes of every write, then fails.
type shortWriter struct {
	header http.Header
	wrote  []byte
}

func (s *shortWriter) Header() http.Header { return s.header }
func (s *shortWriter) WriteHeader(int)     {}
func (s *shortWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n > 2 {
		n = 2
	}
	s.wrote = append(s.wrote, p[:n]...)
	if n < len(p) {
		return n, errors.New("wire broke")
	}
	return n, nil
}

func TestResponseWriter_CapturesOnlyAcceptedBytes(t *testing.T) {
	sw := &shortWriter{header: make(http.Header)}
	buf := NewBuffer(0, nil)
	w := NewResponseWriter(sw, buf)

	n, err := w.Write([]byte("abcdef"))
	if err == nil {
		t.Fatal("expected delegate error to propagate")
	}
	if n != 2 {
		t.Fatalf("expected short write of 2, got %d", n)
	}
	if buf.String() != "ab" {
		t.Errorf("captured %q, want only the accepted prefix %q", buf.String(), "ab")
	}
}

func TestResponseWriter_FlushForwards(t *testing.T) {
	rec := httptest.NewRecorder()
	buf := NewBuffer(0, nil)
	w := NewResponseWriter(rec, buf)

	if _, err := w.Write([]byte("partial")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Flush()
	w.Flush()

	if !rec.Flushed {
		t.Error("expected flush to reach the delegate")
	}
	// Flushing must not finalize or clear the capture.
	if buf.String() != "partial" {
		t.Errorf("captured %q after flush, want %q", buf.String(), "partial")
	}
}

func TestResponseWriter_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewResponseWriter(rec, NewBuffer(0, nil))
	if w.Unwrap() != http.ResponseWriter(rec) {
		t.Error("Unwrap must expose the delegate")
	}
}
