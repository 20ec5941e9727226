// Package workflow executes a blueprint's declarative call sequence against
// the instance table, piping step outputs into later step inputs.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/davidthor/pypes/pkg/errors"
	"github.com/davidthor/pypes/pkg/runtime"
	"github.com/davidthor/pypes/pkg/schema/blueprint"
	"github.com/davidthor/pypes/pkg/values"
	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

// Engine runs workflows.
type Engine struct {
	logger *zap.Logger
}

// New creates a workflow engine.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Execute runs the workflow steps strictly in declaration order. The first
// error aborts the sequence. The returned map holds every completed step's
// output under its step id.
func (e *Engine) Execute(ctx context.Context, wf *blueprint.Workflow, instances map[string]runtime.Instance) (map[string]cty.Value, error) {
	logger := e.logger.With(zap.String("run_id", uuid.NewString()))
	outputs := make(map[string]cty.Value)

	for _, step := range wf.Steps {
		logger.Info("workflow step",
			zap.String("step", step.ID),
			zap.String("component", step.Component),
			zap.String("function", step.Function))

		if err := e.runStep(ctx, logger, step, instances, outputs); err != nil {
			return outputs, err
		}
	}

	return outputs, nil
}

func (e *Engine) runStep(ctx context.Context, logger *zap.Logger, step blueprint.Step, instances map[string]runtime.Instance, outputs map[string]cty.Value) error {
	inst, ok := instances[step.Component]
	if !ok {
		return errors.New(errors.ErrCodeFunctionNotFound,
			fmt.Sprintf("step %q: component %q not instantiated", step.ID, step.Component))
	}

	fn, err := resolveFunction(inst, step)
	if err != nil {
		return err
	}

	args, err := buildArgs(step, fn.Signature(), outputs)
	if err != nil {
		return err
	}

	results, err := fn.Call(ctx, args)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCallFailed,
			fmt.Sprintf("step %q failed", step.ID), err)
	}

	if len(results) > 0 {
		outputs[step.ID] = results[0]
		if data, jsonErr := values.ToJSON(results[0]); jsonErr == nil {
			logger.Info("step output", zap.String("step", step.ID), zap.String("output", string(data)))
		}
	} else {
		logger.Info("step output", zap.String("step", step.ID), zap.String("output", "(none)"))
	}

	return nil
}

// resolveFunction looks the step's function up as interface.func when the
// name is dotted, otherwise as a root export.
func resolveFunction(inst runtime.Instance, step blueprint.Step) (runtime.Function, error) {
	iface, name := "", step.Function
	if i := strings.Index(step.Function, "."); i >= 0 {
		iface, name = step.Function[:i], step.Function[i+1:]
	}

	if fn, ok := inst.Func(iface, name); ok {
		return fn, nil
	}
	// A dotted name may still be a root export with a dot in it.
	if iface != "" {
		if fn, ok := inst.Func("", step.Function); ok {
			return fn, nil
		}
	}

	return nil, errors.New(errors.ErrCodeFunctionNotFound,
		fmt.Sprintf("function %q not found in component %q", step.Function, step.Component))
}

// buildArgs applies the arity contract: zero parameters ignore the input
// template; one parameter takes the interpolated input (string slots take
// it literally, anything else parses it as JSON into the declared type);
// two or more parameters are rejected.
func buildArgs(step blueprint.Step, sig runtime.Signature, outputs map[string]cty.Value) ([]cty.Value, error) {
	paramTypes := sig.ParamTypes()
	if !sig.Known {
		// No descriptor coverage: assume the single-string contract when
		// an input is present, a nullary call otherwise.
		if step.Input != nil {
			paramTypes = []cty.Type{cty.String}
		} else {
			paramTypes = nil
		}
	}

	switch len(paramTypes) {
	case 0:
		return nil, nil

	case 1:
		if step.Input == nil {
			return nil, errors.New(errors.ErrCodeArgTypeMismatch,
				fmt.Sprintf("step %q: function expects an argument but no input is provided", step.ID))
		}
		rendered := interpolate(*step.Input, outputs)

		if paramTypes[0] == cty.String {
			return []cty.Value{cty.StringVal(rendered)}, nil
		}

		val, err := values.FromJSON([]byte(rendered), paramTypes[0])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeArgTypeMismatch,
				fmt.Sprintf("step %q: input does not fit parameter type", step.ID), err)
		}
		return []cty.Value{val}, nil

	default:
		return nil, errors.New(errors.ErrCodeUnsupportedArity,
			fmt.Sprintf("step %q: functions with %d parameters are not supported", step.ID, len(paramTypes)))
	}
}
