package store

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/trace"

	"github.com/mango/reabilita/internal/platform/tracing"
)

// Traced decorates a Store with one span per call.
type Traced struct {
	next Store
}

func NewTraced(next Store) *Traced {
	return &Traced{next: next}
}

func (t *Traced) start(ctx context.Context, op, path string) (context.Context, trace.Span) {
	return tracing.StartSpan(ctx, "store."+op,
		trace.WithAttributes(tracing.StringAttr("store.path", path)))
}

func (t *Traced) Get(ctx context.Context, path string) (json.RawMessage, error) {
	ctx, span := t.start(ctx, "get", path)
	raw, err := t.next.Get(ctx, path)
	tracing.End(span, err)
	return raw, err
}

func (t *Traced) Set(ctx context.Context, path string, value any) error {
	ctx, span := t.start(ctx, "set", path)
	err := t.next.Set(ctx, path, value)
	tracing.End(span, err)
	return err
}

func (t *Traced) Push(ctx context.Context, path string, value any) (string, error) {
	ctx, span := t.start(ctx, "push", path)
	key, err := t.next.Push(ctx, path, value)
	tracing.End(span, err)
	return key, err
}

func (t *Traced) Delete(ctx context.Context, path string) error {
	ctx, span := t.start(ctx, "delete", path)
	err := t.next.Delete(ctx, path)
	tracing.End(span, err)
	return err
}

// Ping forwards to the wrapped store when it supports it.
func (t *Traced) Ping(ctx context.Context) error {
	if p, ok := t.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
