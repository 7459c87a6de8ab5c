// Package intercept runs the capture protocol once per inbound request:
// it deduplicates nested interception points, installs the capturing
// wrappers, drives header capture and the blocking policy check on entry,
// and emits the captured data to the current span exactly once on
// completion, whether the exchange finishes synchronously or on an async
// continuation.
package intercept

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/obtrace/httptap/internal/capture"
	"github.com/obtrace/httptap/internal/correlation"
	"github.com/obtrace/httptap/internal/observability"
	"github.com/obtrace/httptap/internal/policy"
	"github.com/obtrace/httptap/internal/tracing"
)

// Config holds the capture switches, read once per exchange at entry.
type Config struct {
	// Enabled turns interception on. When false every request passes
	// through untouched.
	Enabled bool

	CaptureRequestHeaders  bool
	CaptureResponseHeaders bool
	CaptureRequestBody     bool
	CaptureResponseBody    bool

	// MaxBodyBytes caps per-body capture. Zero means unlimited.
	MaxBodyBytes int64

	// SessionCookie names the cookie whose value is attached to the span
	// as the session ID. Empty disables session capture.
	SessionCookie string
}

// Result reports what OnEntry did with a request.
type Result int

const (
	// NotHandled means no wrapper was installed; the caller must run the
	// application against the native request and response.
	NotHandled Result = iota
	// Handled means the wrappers are installed and the caller must use
	// the Entry's request and response writer.
	Handled
	// Blocked means policy stopped the exchange; the status code is
	// already written and the application must not run.
	Blocked
)

// Entry is the handled token returned by OnEntry and threaded to OnExit.
// It owns the per-exchange state: the wrappers, the config snapshot, the
// span, and the single-emission guard shared by the synchronous and
// asynchronous completion paths.
type Entry struct {
	exchange *capture.Exchange
	span     trace.Span
	cfg      Config
	id       correlation.ID
	emitted  atomic.Bool
}

// Exchange returns the wrapped exchange.
func (e *Entry) Exchange() *capture.Exchange {
	return e.exchange
}

// Request returns the wrapped request the application must process.
func (e *Entry) Request() *http.Request {
	return e.exchange.Request()
}

// ResponseWriter returns the wrapped writer the application must write to.
func (e *Entry) ResponseWriter() http.ResponseWriter {
	return e.exchange.ResponseWriter()
}

// ID returns the exchange correlation ID.
func (e *Entry) ID() string {
	return e.id.Value
}

type entryKey struct{}

func withEntry(ctx context.Context, e *Entry) context.Context {
	return context.WithValue(ctx, entryKey{}, e)
}

// EntryFromContext returns the Entry installed by the outermost
// interception point, or nil.
func EntryFromContext(ctx context.Context) *Entry {
	e, _ := ctx.Value(entryKey{}).(*Entry)
	return e
}

// ExchangeFromContext returns the capturing exchange for the current
// request, or nil when the request is not intercepted. Handlers use this
// to start an async continuation or to obtain the text stream views.
func ExchangeFromContext(ctx context.Context) *capture.Exchange {
	if e := EntryFromContext(ctx); e != nil {
		return e.exchange
	}
	return nil
}

// Controller coordinates interception for all exchanges. Config and
// evaluator may be swapped between requests (hot reload); each exchange
// works from the snapshot taken at its entry.
type Controller struct {
	mu        sync.RWMutex
	cfg       Config
	evaluator policy.Evaluator

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewController creates a controller. A nil evaluator allows everything;
// nil metrics disables instrumentation counters.
func NewController(cfg Config, evaluator policy.Evaluator, logger *slog.Logger, metrics *observability.Metrics) *Controller {
	if evaluator == nil {
		evaluator = policy.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:       cfg,
		evaluator: evaluator,
		logger:    logger,
		metrics:   metrics,
	}
}

// SetConfig replaces the capture config for future exchanges.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// SetEvaluator replaces the policy evaluator for future exchanges.
func (c *Controller) SetEvaluator(e policy.Evaluator) {
	if e == nil {
		e = policy.Noop{}
	}
	c.mu.Lock()
	c.evaluator = e
	c.mu.Unlock()
}

func (c *Controller) snapshot() (Config, policy.Evaluator) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg, c.evaluator
}

// OnEntry runs the entry protocol for one request. It returns NotHandled
// when interception is disabled or this is a nested invocation, Blocked
// when policy stopped the request (status already written), or Handled
// with the Entry token the caller must thread to OnExit.
func (c *Controller) OnEntry(w http.ResponseWriter, r *http.Request) (*Entry, Result) {
	cfg, evaluator := c.snapshot()

	if !cfg.Enabled {
		c.countExchange("skipped")
		return nil, NotHandled
	}
	if EntryFromContext(r.Context()) != nil {
		c.countExchange("reentrant")
		return nil, NotHandled
	}

	span := trace.SpanFromContext(r.Context())
	headers := headerSnapshot(r.Header)

	id := correlation.ExtractOrGenerate(headers)
	span.SetAttributes(tracing.ExchangeIDAttr(id.Value))

	if cfg.SessionCookie != "" {
		if ck, err := r.Cookie(cfg.SessionCookie); err == nil && ck.Value != "" {
			span.SetAttributes(tracing.SessionIDAttr(ck.Value))
		}
	}

	if cfg.CaptureRequestHeaders {
		for _, name := range sortedKeys(headers) {
			span.SetAttributes(tracing.RequestHeaderAttr(name, headers[name]))
		}
	}

	decision := evaluator.EvaluateRequestHeaders(r.Context(), span, headers)
	if decision.Block {
		status := decision.StatusCode
		if status == 0 {
			status = http.StatusForbidden
		}
		span.SetAttributes(
			tracing.BlockRuleAttr(decision.Rule),
			tracing.HTTPStatusAttr(status),
		)
		c.countExchange("blocked")
		if c.metrics != nil {
			c.metrics.BlockedTotal.WithLabelValues(decision.Rule).Inc()
		}
		c.logger.InfoContext(r.Context(), "request blocked by policy",
			"exchange_id", id.Value, "rule", decision.Rule, "status", status)
		w.WriteHeader(status)
		return nil, Blocked
	}

	exchange := capture.NewExchange(w, r, capture.Options{MaxBodyBytes: cfg.MaxBodyBytes})
	entry := &Entry{
		exchange: exchange,
		span:     span,
		cfg:      cfg,
		id:       id,
	}
	req := exchange.Request()
	exchange.SetRequest(req.WithContext(withEntry(req.Context(), entry)))

	c.countExchange("handled")
	return entry, Handled
}

// OnExit completes the exchange. For a synchronous exchange the captured
// data is emitted immediately. For an exchange with a started async
// continuation, emission is deferred to the continuation's completion;
// if registration loses the race against completion, OnExit falls back
// to emitting here. Both paths share the Entry's single-emission guard.
func (c *Controller) OnExit(entry *Entry) {
	if entry == nil {
		return
	}

	exchange := entry.exchange
	if exchange.AsyncStarted() {
		err := exchange.Continuation().OnComplete(func(cerr error) {
			if cerr != nil {
				c.logger.Debug("async exchange completed with error",
					"exchange_id", entry.id.Value, "error", cerr)
			}
			c.emit(entry, "async")
		})
		if err == nil {
			return
		}
		// The continuation finished between the async check and the
		// registration; the emission guard below keeps this single.
		c.logger.Debug("async listener registration lost race to completion",
			"exchange_id", entry.id.Value)
	}

	c.emit(entry, "sync")
}

// emit copies response headers and both bodies to the span, honoring the
// config snapshot taken at entry. It runs at most once per exchange, and
// any internal failure is suppressed so the application's exchange is
// never disturbed.
func (c *Controller) emit(entry *Entry, path string) {
	if !entry.emitted.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("capture emission failed",
				"exchange_id", entry.id.Value, "panic", r)
		}
	}()

	span := entry.span
	exchange := entry.exchange
	cfg := entry.cfg

	if cfg.CaptureResponseHeaders {
		for _, name := range exchange.ResponseHeaderNames() {
			span.SetAttributes(tracing.ResponseHeaderAttr(name, exchange.ResponseHeaderValue(name)))
		}
	}
	if cfg.CaptureRequestBody {
		span.SetAttributes(tracing.RequestBodyAttr(exchange.RequestBody()))
		c.observeBody("request", exchange.RequestBuffer().Len())
	}
	if cfg.CaptureResponseBody {
		span.SetAttributes(tracing.ResponseBodyAttr(exchange.ResponseBody()))
		c.observeBody("response", exchange.ResponseBuffer().Len())
	}

	if c.metrics != nil {
		c.metrics.EmissionsTotal.WithLabelValues(path).Inc()
	}
}

func (c *Controller) countExchange(outcome string) {
	if c.metrics != nil {
		c.metrics.ExchangesTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Controller) observeBody(direction string, n int) {
	if c.metrics != nil {
		c.metrics.CapturedBytes.WithLabelValues(direction).Observe(float64(n))
	}
}

func headerSnapshot(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	return headers
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
