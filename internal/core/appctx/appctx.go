// Package appctx provides request-scoped values carried through context:
// trace identifiers for log correlation and the acting user reference
// attributed to ledger movements. The engine never authenticates; the
// actor is an opaque identity resolved by the excluded request layer.
package appctx

import (
	"context"

	"github.com/google/uuid"

	"larder/internal/core/id"
)

// TraceContext contains request tracing information.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context, or nil.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// NewTraceContext creates a new TraceContext with generated IDs.
func NewTraceContext() *TraceContext {
	return &TraceContext{
		TraceID:   uuid.New().String(),
		RequestID: uuid.New().String(),
	}
}

// Actor identifies the user a movement is attributed to.
type Actor struct {
	UserID id.ID
	Name   string
}

type actorContextKey struct{}

// WithActor adds the acting user to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns the acting user from context, or nil when the
// operation is unattributed (system jobs, seeds).
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetActorID returns the acting user id from context, or nil.
func GetActorID(ctx context.Context) *id.ID {
	if a := GetActor(ctx); a != nil && !id.IsNil(a.UserID) {
		uid := a.UserID
		return &uid
	}
	return nil
}
