package shared

import "context"

type contextKey string

const actorKey contextKey = "actor"

// ContextWithActor stores the acting user's identifier on the context.
func ContextWithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFromContext returns the acting user's identifier, if any.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey).(string); ok {
		return v
	}
	return ""
}
