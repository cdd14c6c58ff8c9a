package template

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
)

// Evaluator executes template placeholder expressions in Starlark.
// Expressions see the site bindings as globals and nothing else: no
// filesystem, no network, no print.
type Evaluator struct {
	timeout time.Duration
}

// NewEvaluator creates an evaluator with the given per-expression
// timeout.
func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Evaluator{timeout: timeout}
}

// Eval evaluates a single expression against the bindings and returns
// its Go value.
func (e *Evaluator) Eval(ctx context.Context, expr string, bindings map[string]any) (any, error) {
	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)

	go func() {
		v, err := e.evalSync(expr, bindings)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- v
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("expression %q timed out after %v", expr, e.timeout)
	case err := <-errCh:
		return nil, err
	case v := <-resultCh:
		return v, nil
	}
}

func (e *Evaluator) evalSync(expr string, bindings map[string]any) (any, error) {
	thread := &starlark.Thread{
		Name:  "sitesync-template",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	predeclared := make(starlark.StringDict, len(bindings))
	for key, val := range bindings {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert binding %s: %w", key, err)
		}
		predeclared[key] = sv
	}

	val, err := starlark.Eval(thread, "expr.star", expr, predeclared)
	if err != nil {
		return nil, fmt.Errorf("expression %q failed: %w", expr, err)
	}
	return fromStarlarkValue(val)
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
