// Package expr implements the workflow engine's sandboxed template and
// expression language: `{{expr}}` interpolation in string leaves, and a
// restricted navigation expression evaluated over {input, steps, env}.
//
// Every evaluation runs in a fresh goja.New() VM with no console and no
// network or filesystem access — apart from the standard ECMAScript globals,
// the VM only ever sees the JSON-shaped StepContext handed to it.
// Evaluation failures never propagate: per the node execution contract they
// resolve to the empty string (template interpolation) or false (CONDITION).
package expr

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// StepContext is the read-only {input, steps, env} view passed to every
// node executor and exposed to the sandboxed VM during interpolation.
type StepContext struct {
	Input json.RawMessage          `json:"input"`
	Steps map[string]StepResult    `json:"steps"`
	Env   map[string]string        `json:"env"`
}

// StepResult is the subset of a completed predecessor's state visible to
// downstream expressions.
type StepResult struct {
	Output json.RawMessage `json:"output"`
	Status string          `json:"status"`
}

var interpolationPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// InterpolateString replaces every `{{expr}}` occurrence in s. The reserved
// form `{{now}}` resolves to the current UTC instant in RFC 3339; any other
// expression is evaluated against stepCtx. A failed evaluation yields the
// empty string for that occurrence, never an error.
func InterpolateString(ctx context.Context, s string, stepCtx StepContext, now time.Time) string {
	return interpolationPattern.ReplaceAllStringFunc(s, func(match string) string {
		inner := strings.TrimSpace(interpolationPattern.FindStringSubmatch(match)[1])
		if inner == "now" {
			return now.UTC().Format(time.RFC3339)
		}
		val, err := Evaluate(ctx, inner, stepCtx)
		if err != nil {
			return ""
		}
		return stringify(val)
	})
}

// InterpolateValue walks an arbitrary JSON-shaped value (map, slice,
// string, or scalar) and interpolates every string leaf, returning a new
// value of the same shape. This backs the TRANSFORM node's template config.
func InterpolateValue(ctx context.Context, v interface{}, stepCtx StepContext, now time.Time) interface{} {
	switch t := v.(type) {
	case string:
		return InterpolateString(ctx, t, stepCtx, now)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, child := range t {
			out[k] = InterpolateValue(ctx, child, stepCtx, now)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, child := range t {
			out[i] = InterpolateValue(ctx, child, stepCtx, now)
		}
		return out
	default:
		return v
	}
}

// Evaluate runs expression against a fresh sandboxed VM bound to stepCtx and
// returns the resulting value. Supported expressions are property
// navigations of the form `input.a.b`, `steps["k"].output.x`, `env.NAME`,
// plus the small set of JS operators needed for CONDITION predicates
// (comparisons, boolean/arithmetic operators, bracket/dot indexing). No
// other host state is reachable from inside the VM.
func Evaluate(ctx context.Context, expression string, stepCtx StepContext) (goja.Value, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(64)

	bound, err := bindContext(stepCtx)
	if err != nil {
		return nil, err
	}
	if err := vm.Set("input", bound.input); err != nil {
		return nil, err
	}
	if err := vm.Set("steps", bound.steps); err != nil {
		return nil, err
	}
	if err := vm.Set("env", bound.env); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	var (
		result goja.Value
		runErr error
	)
	go func() {
		defer close(done)
		result, runErr = vm.RunString(expression)
	}()

	select {
	case <-done:
		return result, runErr
	case <-ctx.Done():
		vm.Interrupt("expression evaluation cancelled")
		<-done
		return nil, ctx.Err()
	case <-time.After(2 * time.Second):
		vm.Interrupt("expression evaluation timed out")
		<-done
		return nil, fmt.Errorf("expression evaluation timed out")
	}
}

// EvaluateBool evaluates expression and coerces the result to bool. Any
// evaluation failure yields false, matching the CONDITION node contract.
func EvaluateBool(ctx context.Context, expression string, stepCtx StepContext) bool {
	val, err := Evaluate(ctx, expression, stepCtx)
	if err != nil || val == nil {
		return false
	}
	return val.ToBoolean()
}

type boundContext struct {
	input interface{}
	steps map[string]interface{}
	env   map[string]string
}

func bindContext(stepCtx StepContext) (boundContext, error) {
	var input interface{}
	if len(stepCtx.Input) > 0 {
		if err := json.Unmarshal(stepCtx.Input, &input); err != nil {
			return boundContext{}, fmt.Errorf("decode step input: %w", err)
		}
	}

	steps := make(map[string]interface{}, len(stepCtx.Steps))
	for key, result := range stepCtx.Steps {
		var output interface{}
		if len(result.Output) > 0 {
			_ = json.Unmarshal(result.Output, &output)
		}
		steps[key] = map[string]interface{}{
			"output": output,
			"status": result.Status,
		}
	}

	env := stepCtx.Env
	if env == nil {
		env = map[string]string{}
	}

	return boundContext{input: input, steps: steps, env: env}, nil
}

func stringify(val goja.Value) string {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return ""
	}
	exported := val.Export()
	if s, ok := exported.(string); ok {
		return s
	}
	b, err := json.Marshal(exported)
	if err != nil {
		return fmt.Sprintf("%v", exported)
	}
	return string(b)
}
