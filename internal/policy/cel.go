package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/ext"
	"go.opentelemetry.io/otel/trace"
)

// Rule is one header-matching expression. The expression receives a
// `headers` map (canonical header name to first value) and must evaluate
// to a boolean; true blocks the request with StatusCode.
type Rule struct {
	Name       string
	Expression string
	StatusCode int
}

type compiledRule struct {
	name       string
	program    cel.Program
	statusCode int
}

// CELEvaluator blocks requests whose headers match a compiled CEL rule.
// Evaluation errors fail open: a broken rule logs and allows.
type CELEvaluator struct {
	rules  []compiledRule
	logger *slog.Logger
}

// NewCELEvaluator compiles the given rules. A rule that does not compile
// is a configuration error and fails construction.
func NewCELEvaluator(rules []Rule, logger *slog.Logger) (*CELEvaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env, err := cel.NewEnv(
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: compile: %w", r.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %q: expression must yield a bool, got %v", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: program: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{
			name:       r.Name,
			program:    prg,
			statusCode: r.StatusCode,
		})
	}
	return &CELEvaluator{rules: compiled, logger: logger}, nil
}

// EvaluateRequestHeaders runs each rule against the header snapshot and
// blocks on the first match.
func (e *CELEvaluator) EvaluateRequestHeaders(ctx context.Context, _ trace.Span, headers map[string]string) Decision {
	if err := ctx.Err(); err != nil {
		return Allow
	}
	activation := map[string]interface{}{"headers": headers}
	for _, r := range e.rules {
		out, _, err := r.program.Eval(activation)
		if err != nil {
			e.logger.Warn("policy rule evaluation failed", "rule", r.name, "error", err)
			continue
		}
		if out == types.True {
			return BlockWith(r.name, r.statusCode)
		}
	}
	return Allow
}
