package condition

import "fmt"

// toNumber coerces a JSON-shaped value to float64.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func arith(op string, a, b any) (any, error) {
	af, aok := toNumber(a)
	bf, bok := toNumber(b)
	if !aok || !bok {
		return nil, fmt.Errorf("arithmetic operator %q requires numeric operands", op)
	}
	switch op {
	case "+":
		return af + bf, nil
	case "-":
		return af - bf, nil
	case "*":
		return af * bf, nil
	case "/":
		if bf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return af / bf, nil
	default:
		return nil, fmt.Errorf("unknown arithmetic operator %q", op)
	}
}

func compare(op string, a, b any) (any, error) {
	switch op {
	case "==":
		return valuesEqual(a, b), nil
	case "!=":
		return !valuesEqual(a, b), nil
	}

	af, aok := toNumber(a)
	bf, bok := toNumber(b)
	if aok && bok {
		switch op {
		case "<":
			return af < bf, nil
		case "<=":
			return af <= bf, nil
		case ">":
			return af > bf, nil
		case ">=":
			return af >= bf, nil
		}
	}

	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		switch op {
		case "<":
			return as < bs, nil
		case "<=":
			return as <= bs, nil
		case ">":
			return as > bs, nil
		case ">=":
			return as >= bs, nil
		}
	}

	return nil, fmt.Errorf("cannot compare %T and %T with %q", a, b, op)
}

func valuesEqual(a, b any) bool {
	af, aok := toNumber(a)
	bf, bok := toNumber(b)
	if aok && bok {
		return af == bf
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return as == bs
	}
	// Slices and maps are not comparable with ==; treat them as unequal
	// rather than panicking, consistent with the evaluator's fail-closed
	// contract.
	switch a.(type) {
	case []any, map[string]any:
		return false
	}
	switch b.(type) {
	case []any, map[string]any:
		return false
	}
	return a == b
}

// index resolves v[idx] for maps (string key) and slices (numeric key).
func index(v any, idx any) (any, error) {
	switch container := v.(type) {
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("map index must be a string, got %T", idx)
		}
		val, ok := container[key]
		if !ok {
			return nil, fmt.Errorf("key %q not found", key)
		}
		return val, nil
	case []any:
		f, ok := toNumber(idx)
		if !ok {
			return nil, fmt.Errorf("list index must be numeric, got %T", idx)
		}
		i := int(f)
		if i < 0 || i >= len(container) {
			return nil, fmt.Errorf("list index %d out of range", i)
		}
		return container[i], nil
	case nil:
		return nil, fmt.Errorf("cannot index nil value")
	default:
		return nil, fmt.Errorf("cannot index value of type %T", v)
	}
}

// callBuiltin dispatches the whitelisted helper functions: len, str,
// int, float, bool, list, dict. These are the only names reachable from
// an expression besides state and the boolean literals.
func callBuiltin(name string, args []any) (any, error) {
	switch name {
	case "len":
		if len(args) != 1 {
			return nil, fmt.Errorf("len() takes exactly one argument")
		}
		switch v := args[0].(type) {
		case string:
			return float64(len(v)), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		default:
			return nil, fmt.Errorf("len() unsupported for type %T", v)
		}

	case "str":
		if len(args) != 1 {
			return nil, fmt.Errorf("str() takes exactly one argument")
		}
		return fmt.Sprintf("%v", args[0]), nil

	case "int":
		if len(args) != 1 {
			return nil, fmt.Errorf("int() takes exactly one argument")
		}
		switch v := args[0].(type) {
		case float64:
			return float64(int(v)), nil
		case string:
			var f float64
			if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
				return nil, fmt.Errorf("int(): cannot convert %q", v)
			}
			return float64(int(f)), nil
		case bool:
			if v {
				return float64(1), nil
			}
			return float64(0), nil
		default:
			return nil, fmt.Errorf("int() unsupported for type %T", v)
		}

	case "float":
		if len(args) != 1 {
			return nil, fmt.Errorf("float() takes exactly one argument")
		}
		f, ok := toNumber(args[0])
		if ok {
			return f, nil
		}
		if s, ok := args[0].(string); ok {
			var parsed float64
			if _, err := fmt.Sscanf(s, "%g", &parsed); err != nil {
				return nil, fmt.Errorf("float(): cannot convert %q", s)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("float() unsupported for type %T", args[0])

	case "bool":
		if len(args) != 1 {
			return nil, fmt.Errorf("bool() takes exactly one argument")
		}
		return truthy(args[0]), nil

	case "list":
		return append([]any{}, args...), nil

	case "dict":
		if len(args)%2 != 0 {
			return nil, fmt.Errorf("dict() requires an even number of key/value arguments")
		}
		m := map[string]any{}
		for i := 0; i < len(args); i += 2 {
			key, ok := args[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict() keys must be strings")
			}
			m[key] = args[i+1]
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unknown function %q", name)
	}
}
