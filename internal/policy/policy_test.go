package policy

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

type fixedEvaluator struct {
	decision Decision
	calls    int
}

func (f *fixedEvaluator) EvaluateRequestHeaders(context.Context, trace.Span, map[string]string) Decision {
	f.calls++
	return f.decision
}

func TestBlockWith_DefaultsTo403(t *testing.T) {
	d := BlockWith("r", 0)
	if d.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 default, got %d", d.StatusCode)
	}
	if !d.Block || d.Rule != "r" {
		t.Errorf("unexpected decision %+v", d)
	}

	d = BlockWith("r", 429)
	if d.StatusCode != 429 {
		t.Errorf("expected explicit status kept, got %d", d.StatusCode)
	}
}

func TestNoop_Allows(t *testing.T) {
	d := Noop{}.EvaluateRequestHeaders(context.Background(), nil, map[string]string{"X": "y"})
	if d.Block {
		t.Error("noop must allow")
	}
}

func TestChain_FirstBlockWins(t *testing.T) {
	allow := &fixedEvaluator{decision: Allow}
	block := &fixedEvaluator{decision: BlockWith("first", 403)}
	after := &fixedEvaluator{decision: BlockWith("second", 500)}

	chain := NewChain(allow, block, after)
	d := chain.EvaluateRequestHeaders(context.Background(), nil, nil)

	if d.Rule != "first" {
		t.Errorf("expected first blocking rule, got %q", d.Rule)
	}
	if after.calls != 0 {
		t.Error("evaluators after the blocking one must not run")
	}
}

func TestChain_AllAllow(t *testing.T) {
	chain := NewChain(&fixedEvaluator{}, &fixedEvaluator{})
	d := chain.EvaluateRequestHeaders(context.Background(), nil, nil)
	if d.Block {
		t.Error("expected allow when no evaluator blocks")
	}
	if chain.Len() != 2 {
		t.Errorf("expected len 2, got %d", chain.Len())
	}
}

func TestChain_Empty(t *testing.T) {
	d := NewChain().EvaluateRequestHeaders(context.Background(), nil, map[string]string{})
	if d.Block {
		t.Error("empty chain must allow")
	}
}
