// Package condition implements the sandboxed boolean expression dialect
// used to guard edges (spec.md §4.3). It is a hand-rolled recursive
// descent interpreter, not a general-purpose scripting embed: the name
// environment is exactly {state, true, false, null} plus a small set of
// total, pure helpers (len, str, int, float, bool, list, dict). There is
// no way to reach I/O, reflection, imports, or loops from an expression.
//
// Any parse or runtime failure evaluates to false — the edge is simply
// not taken — and is never surfaced to the caller as an error. This is
// deliberate (spec.md §4.3, §7): a malformed condition is a workflow
// authoring mistake, not an engine fault.
package condition

import (
	"fmt"
	"log/slog"
)

// Evaluate parses and evaluates expr against state, returning its
// truthiness. Any failure is logged and reported as false.
func Evaluate(expr string, state map[string]any) bool {
	result, err := eval(expr, state)
	if err != nil {
		slog.Debug("condition evaluation failed; edge not taken", "expr", expr, "error", err)
		return false
	}
	return truthy(result)
}

func eval(expr string, state map[string]any) (any, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}
	p := &parser{toks: toks, state: state}
	v, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("condition: unexpected token %q", p.peek().text)
	}
	return v, nil
}

// truthy follows standard sequence/number/mapping truthiness: non-empty,
// non-zero, not null.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
