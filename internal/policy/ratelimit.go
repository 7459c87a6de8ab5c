package policy

import (
	"context"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// RateLimitEvaluator blocks requests with 429 when a client exceeds its
// token bucket. Clients are keyed by a configurable header; requests
// without that header share one bucket.
type RateLimitEvaluator struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
	header   string
}

// NewRateLimitEvaluator creates a per-client rate limiter keyed by the
// given header name. A zero or negative rps disables limiting.
func NewRateLimitEvaluator(rps float64, burst int, header string) *RateLimitEvaluator {
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimitEvaluator{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
		header:   http.CanonicalHeaderKey(header),
	}
}

// EvaluateRequestHeaders blocks with 429 when the client's bucket is
// empty.
func (e *RateLimitEvaluator) EvaluateRequestHeaders(_ context.Context, _ trace.Span, headers map[string]string) Decision {
	if e.rps <= 0 {
		return Allow
	}
	key := headers[e.header]

	e.mu.Lock()
	lim, ok := e.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(e.rps), e.burst)
		e.limiters[key] = lim
	}
	e.mu.Unlock()

	if lim.Allow() {
		return Allow
	}
	return BlockWith("rate-limit", http.StatusTooManyRequests)
}
