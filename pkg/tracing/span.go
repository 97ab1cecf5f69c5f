// Package tracing is a minimal in-process tracer. Spans form parent-child
// trees carried through contexts and are emitted as structured slog output
// when the root span ends.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is a timed operation inside a trace.
type Span struct {
	Name    string
	TraceID string
	Started time.Time
	Elapsed time.Duration

	mu       sync.Mutex
	attrs    map[string]any
	children []*Span
}

// Start opens a root span identified by traceID and stores it in the
// returned context.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{
		Name:    name,
		TraceID: traceID,
		Started: time.Now(),
		attrs:   make(map[string]any),
	}
	return context.WithValue(ctx, contextKey{}, s), s
}

// StartChild opens a span nested under the one in ctx. Without a parent it
// behaves like a root span with an empty trace ID.
func StartChild(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{
		Name:    name,
		Started: time.Now(),
		attrs:   make(map[string]any),
	}
	if parent := FromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// FromContext returns the current span, or nil if ctx carries none.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

// SetAttr attaches an attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// End records the span's elapsed time.
func (s *Span) End() {
	s.Elapsed = time.Since(s.Started)
}

// Log emits the span and its descendants via slog, one record per span.
func (s *Span) Log() {
	s.log(0)
}

func (s *Span) log(depth int) {
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Elapsed.Milliseconds(),
		"depth", depth,
	}
	s.mu.Lock()
	for k, v := range s.attrs {
		attrs = append(attrs, k, v)
	}
	children := s.children
	s.mu.Unlock()

	slog.Info("span", attrs...)
	for _, c := range children {
		c.log(depth + 1)
	}
}
