// Package correlation assigns a stable ID to every intercepted exchange
// so logs, metrics and span attributes can be joined.
package correlation

import (
	"strings"

	"github.com/google/uuid"
)

const (
	HeaderXRequestID     = "X-Request-Id"
	HeaderXCorrelationID = "X-Correlation-Id"
	HeaderTraceparent    = "Traceparent"
)

// ID identifies one exchange and records where the value came from.
type ID struct {
	Value  string
	Source string
}

// ExtractOrGenerate extracts an exchange ID from the header snapshot or
// generates a new UUID.
// Priority: x-request-id > x-correlation-id > traceparent > new UUID.
func ExtractOrGenerate(headers map[string]string) ID {
	if id := headers[HeaderXRequestID]; id != "" {
		return ID{Value: id, Source: HeaderXRequestID}
	}
	if id := headers[HeaderXCorrelationID]; id != "" {
		return ID{Value: id, Source: HeaderXCorrelationID}
	}
	if tp := headers[HeaderTraceparent]; tp != "" {
		if traceID := extractTraceID(tp); traceID != "" {
			return ID{Value: traceID, Source: HeaderTraceparent}
		}
	}
	return ID{Value: uuid.New().String(), Source: "generated"}
}

// extractTraceID parses W3C traceparent format: version-traceid-parentid-flags
func extractTraceID(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) >= 2 && len(parts[1]) == 32 {
		return parts[1]
	}
	return ""
}
