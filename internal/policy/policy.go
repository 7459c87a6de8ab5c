// Package policy decides whether an intercepted request may proceed to
// the application, based only on the inbound header snapshot.
package policy

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Decision is the outcome of evaluating one request's headers.
type Decision struct {
	// Block stops the exchange before the application handler runs.
	Block bool
	// StatusCode is written to the response when Block is set.
	StatusCode int
	// Rule names the rule that produced a blocking decision.
	Rule string
}

// Allow is the decision that lets the request proceed.
var Allow = Decision{}

// BlockWith returns a blocking decision with the given status code,
// defaulting to 403 when the code is zero.
func BlockWith(rule string, statusCode int) Decision {
	if statusCode == 0 {
		statusCode = http.StatusForbidden
	}
	return Decision{Block: true, StatusCode: statusCode, Rule: rule}
}

// Evaluator inspects the inbound header snapshot and decides whether the
// exchange may proceed. Implementations must never fail closed: an
// internal evaluation error yields Allow.
type Evaluator interface {
	EvaluateRequestHeaders(ctx context.Context, span trace.Span, headers map[string]string) Decision
}

// Noop allows every request.
type Noop struct{}

// EvaluateRequestHeaders always returns Allow.
func (Noop) EvaluateRequestHeaders(context.Context, trace.Span, map[string]string) Decision {
	return Allow
}

// Chain evaluates a sequence of evaluators in order; the first blocking
// decision wins.
type Chain struct {
	evaluators []Evaluator
}

// NewChain creates an evaluator chain.
func NewChain(evaluators ...Evaluator) *Chain {
	return &Chain{evaluators: evaluators}
}

// EvaluateRequestHeaders runs the chained evaluators in order and returns
// the first blocking decision, or Allow.
func (c *Chain) EvaluateRequestHeaders(ctx context.Context, span trace.Span, headers map[string]string) Decision {
	for _, e := range c.evaluators {
		if d := e.EvaluateRequestHeaders(ctx, span, headers); d.Block {
			return d
		}
	}
	return Allow
}

// Len returns the number of evaluators in the chain.
func (c *Chain) Len() int {
	return len(c.evaluators)
}
