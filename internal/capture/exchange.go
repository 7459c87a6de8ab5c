package capture

import (
	"mime"
	"net/http"
	"sort"
	"sync"
)

// Options configures capture for one exchange.
type Options struct {
	// MaxBodyBytes caps how much of each body is captured. Zero means
	// unlimited. A request whose declared Content-Length exceeds the cap
	// is not body-captured at all; headers are still captured.
	MaxBodyBytes int64
}

// Exchange wraps one request/response pair with capturing stream proxies.
// It borrows the native request and response writer, delegates every
// operation to them, and never closes them. The application must be
// handed Request and ResponseWriter in place of the native objects; the
// captured bodies become available once the exchange completes.
type Exchange struct {
	req      *http.Request
	origBody *BodyReader
	writer   *ResponseWriter
	reqBuf   *Buffer
	respBuf  *Buffer

	reqSkipped bool

	mu           sync.Mutex
	continuation *Continuation
}

// NewExchange installs capturing proxies around w and r. The request
// charset is snapshotted from the Content-Type header now; the response
// charset is read when the response body is first decoded.
func NewExchange(w http.ResponseWriter, r *http.Request, opts Options) *Exchange {
	reqCharset := charsetOf(r.Header.Get("Content-Type"))
	respHeader := w.Header()

	e := &Exchange{
		reqBuf: NewBuffer(opts.MaxBodyBytes, func() string { return reqCharset }),
		respBuf: NewBuffer(opts.MaxBodyBytes, func() string {
			return charsetOf(respHeader.Get("Content-Type"))
		}),
	}
	e.writer = NewResponseWriter(w, e.respBuf)

	req := r.Clone(r.Context())
	if opts.MaxBodyBytes > 0 && r.ContentLength > opts.MaxBodyBytes {
		e.reqSkipped = true
	} else if r.Body != nil {
		e.origBody = NewBodyReader(r.Body, e.reqBuf)
		req.Body = e.origBody
	}
	e.req = req
	return e
}

// Request returns the wrapped request the application should process.
func (e *Exchange) Request() *http.Request {
	return e.req
}

// SetRequest replaces the wrapped request, preserving the capturing body.
// Used to thread a derived context through the request.
func (e *Exchange) SetRequest(r *http.Request) {
	e.req = r
}

// ResponseWriter returns the wrapped writer the application should write
// to.
func (e *Exchange) ResponseWriter() *ResponseWriter {
	return e.writer
}

// TextReader returns the character view of the request body. It fails if
// the byte view has already been read from.
func (e *Exchange) TextReader() (*RuneReader, error) {
	if e.reqSkipped || e.origBody == nil {
		return nil, ErrModeConflict
	}
	e.reqBuf.mu.Lock()
	conflict := e.reqBuf.mode == modeBytes
	e.reqBuf.mu.Unlock()
	if conflict {
		return nil, ErrModeConflict
	}
	return NewRuneReader(e.origBody.delegate, e.reqBuf), nil
}

// TextWriter returns the character view of the response body. It fails
// if the byte view has already been written to.
func (e *Exchange) TextWriter() (*TextWriter, error) {
	e.respBuf.mu.Lock()
	conflict := e.respBuf.mode == modeBytes
	e.respBuf.mu.Unlock()
	if conflict {
		return nil, ErrModeConflict
	}
	return &TextWriter{delegate: rawWriter{e.writer}, buf: e.respBuf}, nil
}

// RequestBody returns the captured request body as text.
func (e *Exchange) RequestBody() string {
	return e.reqBuf.String()
}

// ResponseBody returns the captured response body as text.
func (e *Exchange) ResponseBody() string {
	return e.respBuf.String()
}

// RequestBuffer returns the request capture buffer.
func (e *Exchange) RequestBuffer() *Buffer {
	return e.reqBuf
}

// ResponseBuffer returns the response capture buffer.
func (e *Exchange) ResponseBuffer() *Buffer {
	return e.respBuf
}

// ResponseHeaderNames returns the response header names in sorted order.
func (e *Exchange) ResponseHeaderNames() []string {
	names := make([]string, 0, len(e.writer.Header()))
	for name := range e.writer.Header() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResponseHeaderValue returns the first value of the named response
// header.
func (e *Exchange) ResponseHeaderValue(name string) string {
	return e.writer.Header().Get(name)
}

// StatusCode returns the response status, defaulting to 200 when the
// handler never wrote one explicitly.
func (e *Exchange) StatusCode() int {
	if s := e.writer.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// StartAsync marks the exchange as completing asynchronously and returns
// its continuation. Repeated calls return the same continuation.
func (e *Exchange) StartAsync() *Continuation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.continuation == nil {
		e.continuation = &Continuation{}
	}
	return e.continuation
}

// AsyncStarted reports whether StartAsync has been called.
func (e *Exchange) AsyncStarted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.continuation != nil
}

// Continuation returns the async continuation, or nil if the exchange is
// synchronous.
func (e *Exchange) Continuation() *Continuation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.continuation
}

// rawWriter forwards to the response delegate without byte capture, so
// the text view does not double-capture through the byte view.
type rawWriter struct {
	w *ResponseWriter
}

func (r rawWriter) Write(p []byte) (int, error) {
	if !r.w.wroteHeader {
		r.w.WriteHeader(http.StatusOK)
	}
	return r.w.delegate.Write(p)
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
