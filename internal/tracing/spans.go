package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute key constants for consistent span attributes. The
// request.header.<name> and response.header.<name> prefixes are a wire
// convention shared with other capture agents and must not change.
const (
	AttrHTTPRequestBody  = "http.request.body"
	AttrHTTPResponseBody = "http.response.body"
	AttrHTTPStatus       = "http.status_code"
	AttrSessionID        = "session.id"
	AttrExchangeID       = "httptap.exchange.id"
	AttrBlockRule        = "httptap.block.rule"

	requestHeaderPrefix  = "request.header."
	responseHeaderPrefix = "response.header."
)

// RequestHeaderAttr returns a span attribute for one inbound request header.
func RequestHeaderAttr(name, value string) attribute.KeyValue {
	return attribute.String(requestHeaderPrefix+name, value)
}

// ResponseHeaderAttr returns a span attribute for one outbound response header.
func ResponseHeaderAttr(name, value string) attribute.KeyValue {
	return attribute.String(responseHeaderPrefix+name, value)
}

// RequestBodyAttr returns the span attribute carrying the captured request body.
func RequestBodyAttr(body string) attribute.KeyValue {
	return attribute.String(AttrHTTPRequestBody, body)
}

// ResponseBodyAttr returns the span attribute carrying the captured response body.
func ResponseBodyAttr(body string) attribute.KeyValue {
	return attribute.String(AttrHTTPResponseBody, body)
}

// HTTPStatusAttr returns an attribute for the HTTP status code.
func HTTPStatusAttr(status int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, status)
}

// SessionIDAttr returns an attribute for the application session ID.
func SessionIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// ExchangeIDAttr returns an attribute for the exchange correlation ID.
func ExchangeIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrExchangeID, id)
}

// BlockRuleAttr returns an attribute naming the policy rule that blocked
// the request.
func BlockRuleAttr(rule string) attribute.KeyValue {
	return attribute.String(AttrBlockRule, rule)
}

// SetSpanError records an error on the span and sets the status to Error.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// IsTraced returns true if there is a valid recording span in the context.
func IsTraced(ctx context.Context) bool {
	span := trace.SpanFromContext(ctx)
	return span.SpanContext().IsValid() && span.IsRecording()
}
