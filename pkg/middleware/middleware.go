// Package middleware provides composable pre/post hooks around proxied
// inter-component calls.
package middleware

import (
	"context"
	"time"

	"github.com/davidthor/pypes/pkg/values"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

// CallContext identifies the call a middleware observes.
type CallContext struct {
	// Provider is the component the call lands on.
	Provider string

	// Interface is the export interface the function nests in; empty for
	// root exports.
	Interface string

	// Function is the function name.
	Function string

	// Caller is the consuming component, when known.
	Caller string
}

// Next advances the chain; the terminal Next invokes the real provider
// function.
type Next func(ctx context.Context, args []cty.Value) ([]cty.Value, error)

// Handler is a single middleware. It may observe or transform arguments and
// results, and decides whether to call next.
type Handler interface {
	Handle(ctx context.Context, call CallContext, args []cty.Value, next Next) ([]cty.Value, error)
}

// Chain composes handlers around a terminal call. Handlers compose
// right-fold: the first handler in the list is outermost.
func Chain(handlers []Handler, call CallContext, terminal Next) Next {
	next := terminal
	for i := len(handlers) - 1; i >= 0; i-- {
		handler := handlers[i]
		inner := next
		next = func(ctx context.Context, args []cty.Value) ([]cty.Value, error) {
			return handler.Handle(ctx, call, args, inner)
		}
	}
	return next
}

// ByName resolves a middleware by its blueprint name. Unknown names return
// false; the wirer warns and skips them.
func ByName(name string, logger *zap.Logger) (Handler, bool) {
	switch name {
	case "logging":
		return &Logging{Logger: logger}, true
	case "no-op":
		return NoOp{}, true
	default:
		return nil, false
	}
}

// Logging prints call, return, and error lines with elapsed milliseconds.
type Logging struct {
	Logger *zap.Logger
}

func (l *Logging) Handle(ctx context.Context, call CallContext, args []cty.Value, next Next) ([]cty.Value, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("call",
		zap.String("provider", call.Provider),
		zap.String("interface", call.Interface),
		zap.String("function", call.Function),
		zap.String("caller", call.Caller),
		zap.String("args", renderValues(args)),
	)

	start := time.Now()
	results, err := next(ctx, args)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		logger.Warn("error",
			zap.String("provider", call.Provider),
			zap.String("function", call.Function),
			zap.Int64("elapsed_ms", elapsed),
			zap.Error(err),
		)
		return results, err
	}

	logger.Info("return",
		zap.String("provider", call.Provider),
		zap.String("function", call.Function),
		zap.Int64("elapsed_ms", elapsed),
		zap.String("results", renderValues(results)),
	)
	return results, nil
}

// NoOp passes calls through untouched.
type NoOp struct{}

func (NoOp) Handle(ctx context.Context, call CallContext, args []cty.Value, next Next) ([]cty.Value, error) {
	return next(ctx, args)
}

func renderValues(vals []cty.Value) string {
	data, err := values.EncodeArgs(vals)
	if err != nil {
		return "<unrenderable>"
	}
	return string(data)
}
