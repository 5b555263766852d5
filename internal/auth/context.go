package auth

import (
	"context"

	"github.com/dukerupert/choreflow/internal/model"
)

type contextKey struct{}

// Actor is the verified participant making a request.
type Actor struct {
	ParticipantID string
	Role          model.Role
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}

func ActorID(ctx context.Context) string {
	a, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return a.ParticipantID
}

func IsApprover(ctx context.Context) bool {
	a, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return a.Role == model.RoleApprover
}
