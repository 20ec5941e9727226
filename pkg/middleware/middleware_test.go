package middleware

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

// recorder notes when it runs relative to the terminal call.
type recorder struct {
	name  string
	trace *[]string
}

func (r *recorder) Handle(ctx context.Context, call CallContext, args []cty.Value, next Next) ([]cty.Value, error) {
	*r.trace = append(*r.trace, r.name+":pre")
	results, err := next(ctx, args)
	*r.trace = append(*r.trace, r.name+":post")
	return results, err
}

func TestChain_RightFoldOrder(t *testing.T) {
	var trace []string
	handlers := []Handler{
		&recorder{name: "outer", trace: &trace},
		&recorder{name: "inner", trace: &trace},
	}

	terminal := func(ctx context.Context, args []cty.Value) ([]cty.Value, error) {
		trace = append(trace, "call")
		return []cty.Value{cty.StringVal("done")}, nil
	}

	next := Chain(handlers, CallContext{Provider: "p", Function: "f"}, terminal)
	results, err := next(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "done", results[0].AsString())

	// The first configured handler is outermost.
	assert.Equal(t, []string{"outer:pre", "inner:pre", "call", "inner:post", "outer:post"}, trace)
}

func TestChain_EmptyIsTerminal(t *testing.T) {
	called := false
	terminal := func(ctx context.Context, args []cty.Value) ([]cty.Value, error) {
		called = true
		return nil, nil
	}

	next := Chain(nil, CallContext{}, terminal)
	_, err := next(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestChain_ErrorPropagates(t *testing.T) {
	var trace []string
	handlers := []Handler{&recorder{name: "mw", trace: &trace}}

	terminal := func(ctx context.Context, args []cty.Value) ([]cty.Value, error) {
		return nil, fmt.Errorf("boom")
	}

	next := Chain(handlers, CallContext{}, terminal)
	_, err := next(context.Background(), nil)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"mw:pre", "mw:post"}, trace)
}

func TestByName(t *testing.T) {
	logger := zap.NewNop()

	h, ok := ByName("logging", logger)
	require.True(t, ok)
	assert.IsType(t, &Logging{}, h)

	h, ok = ByName("no-op", logger)
	require.True(t, ok)
	assert.IsType(t, NoOp{}, h)

	_, ok = ByName("telemetry", logger)
	assert.False(t, ok)
}

func TestLogging_PassesThrough(t *testing.T) {
	handler := &Logging{Logger: zap.NewNop()}
	args := []cty.Value{cty.StringVal("in")}

	results, err := handler.Handle(context.Background(), CallContext{Provider: "p", Function: "f"}, args,
		func(ctx context.Context, got []cty.Value) ([]cty.Value, error) {
			assert.Equal(t, args, got)
			return []cty.Value{cty.StringVal("out")}, nil
		})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "out", results[0].AsString())
}

func TestNoOp_PassesThrough(t *testing.T) {
	results, err := NoOp{}.Handle(context.Background(), CallContext{}, nil,
		func(ctx context.Context, args []cty.Value) ([]cty.Value, error) {
			return []cty.Value{cty.True}, nil
		})
	require.NoError(t, err)
	assert.True(t, results[0].True())
}
