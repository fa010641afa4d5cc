package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
)

type contextKey string

const ctxActorKey contextKey = "actor"

// WithActor returns a context carrying the authenticated agent ID.
func WithActor(ctx context.Context, agentID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxActorKey, agentID)
}

// ActorFromCtx returns the authenticated agent ID, if any.
func ActorFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxActorKey).(uuid.UUID)
	return id, ok
}

// RequireActor fails with Forbidden when an actor is authenticated and is not want.
// Unauthenticated calls pass; whether they are allowed at all is decided by the
// HTTP middleware.
func RequireActor(ctx context.Context, want uuid.UUID, code, message string) error {
	actor, ok := ActorFromCtx(ctx)
	if !ok || actor == want {
		return nil
	}
	return apperr.Forbidden(code, message)
}

// RequireAnyActor is RequireActor for operations open to several agents.
func RequireAnyActor(ctx context.Context, allowed []uuid.UUID, code, message string) error {
	actor, ok := ActorFromCtx(ctx)
	if !ok {
		return nil
	}
	for _, id := range allowed {
		if id == actor {
			return nil
		}
	}
	return apperr.Forbidden(code, message)
}
