// Package tracing sets up an opentracing.Tracer and propagates trace context
// across the request/response boundary via HTTP headers: it does not ship
// spans anywhere itself, span transport is the tracer implementation's job.
package tracing

import (
	"context"
	"fmt"
	"strings"

	ot "github.com/opentracing/opentracing-go"

	"github.com/latticeproxy/rds-router/tracing/tracers/basic"
)

// InitTracer builds the opentracing.Tracer named by impl. impl is either a
// bare implementation name ("noop", "basic") or, for implementations that
// take options, "name:opt1,opt2=value". The returned close func releases any
// background resources the tracer holds; it is always safe to call, even
// for "noop".
func InitTracer(impl string) (ot.Tracer, func(), error) {
	name, optstr, _ := strings.Cut(impl, ":")

	switch name {
	case "", "noop":
		return &ot.NoopTracer{}, func() {}, nil

	case "basic":
		var opts []string
		if optstr != "" {
			opts = strings.Split(optstr, ",")
		}
		t, err := basic.InitTracer(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("tracing: basic: %w", err)
		}
		return t, t.Close, nil

	default:
		return nil, nil, fmt.Errorf("tracing: unsupported implementation %q", name)
	}
}

// CreateSpan starts a span for operation, continuing from any span found in
// ctx, and never returns nil even when tracer is nil.
func CreateSpan(operation string, ctx context.Context, tracer ot.Tracer) ot.Span {
	if tracer == nil {
		tracer = &ot.NoopTracer{}
	}

	if parent := ot.SpanFromContext(ctx); parent != nil {
		return tracer.StartSpan(operation, ot.ChildOf(parent.Context()))
	}

	return tracer.StartSpan(operation)
}
