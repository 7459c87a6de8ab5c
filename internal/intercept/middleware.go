package intercept

import (
	"net/http"
)

// Middleware wraps next as the root interception point. Spans are
// expected to be created by an outer layer (otelhttp or equivalent); the
// middleware only attaches captured data to whatever span is current.
// Failures inside the interception logic are suppressed: the application
// always runs and its exchange is never altered.
func (c *Controller) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry, result := c.safeOnEntry(w, r)
		switch result {
		case Blocked:
			return
		case NotHandled:
			next.ServeHTTP(w, r)
			return
		}

		// Deferred so that emission also happens when the handler
		// panics; partial capture is still emitted.
		defer c.safeOnExit(entry)
		next.ServeHTTP(entry.ResponseWriter(), entry.Request())
	})
}

func (c *Controller) safeOnEntry(w http.ResponseWriter, r *http.Request) (entry *Entry, result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("interception entry failed", "panic", rec)
			entry, result = nil, NotHandled
		}
	}()
	return c.OnEntry(w, r)
}

func (c *Controller) safeOnExit(entry *Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("interception exit failed", "panic", rec)
		}
	}()
	c.OnExit(entry)
}
