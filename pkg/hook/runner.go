package hook

import (
	"context"
	stderrors "errors"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/abort"
)

// ObserveFunc is called after every hook invocation. err is nil for hooks
// that succeeded or aborted.
type ObserveFunc func(hook, filePath string, d time.Duration, aborted bool, err error)

// Runner invokes hooks. The zero value is ready to use.
type Runner struct {
	// Tracer, when set, records a span per hook.
	Tracer trace.Tracer

	// Observe, when set, is called after every hook.
	Observe ObserveFunc
}

// call invokes fn and sorts the outcome: an abort signal, a fault, or a
// result. Faults that are not already structured are wrapped in *Error.
func call[T any](ctx context.Context, r *Runner, name, filePath string, fn func(context.Context) (T, error)) (res T, sig *abort.Signal, err error) {
	var span trace.Span
	if r != nil && r.Tracer != nil {
		ctx, span = r.Tracer.Start(ctx, "hook."+name,
			trace.WithAttributes(
				attribute.String("pagerender.hook", name),
				attribute.String("pagerender.file", filePath),
			))
		defer span.End()
	}

	start := time.Now()
	res, err = protect(ctx, name, filePath, fn)
	if err != nil {
		if s, ok := abort.As(err); ok {
			sig, err = s, nil
			var zero T
			res = zero
		} else {
			err = classify(name, filePath, err)
		}
	}

	if span != nil {
		switch {
		case sig != nil:
			span.SetAttributes(attribute.String("pagerender.abort", sig.Kind.String()))
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	if r != nil && r.Observe != nil {
		r.Observe(name, filePath, time.Since(start), sig != nil, err)
	}
	return res, sig, err
}

func protect[T any](ctx context.Context, name, filePath string, fn func(context.Context) (T, error)) (res T, err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok && abort.Is(e) {
				err = e
				return
			}
			err = &Error{Hook: name, FilePath: filePath, Panic: p, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

func classify(name, filePath string, err error) error {
	var he *Error
	if stderrors.As(err, &he) {
		return err
	}
	if errors.IsUsage(err) || errors.IsInternal(err) {
		return err
	}
	return &Error{Hook: name, FilePath: filePath, Err: err}
}

// split turns an error that may carry a signal back into the two outcomes.
func split(err error) (*abort.Signal, error) {
	if err == nil {
		return nil, nil
	}
	if s, ok := abort.As(err); ok {
		return s, nil
	}
	return nil, err
}
