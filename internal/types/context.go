package types

import "context"

// ActorType identifies who is making a request.
type ActorType string

const (
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
)

// Actor is the authenticated caller. Source records the entry point, such
// as "admin_console" or "scheduler".
type Actor struct {
	ID     string
	Type   ActorType
	Source string
}

// SystemActor attributes work no admin asked for, such as scheduled runs.
var SystemActor = Actor{ID: "system", Type: ActorTypeSystem, Source: "scheduler"}

type (
	actorKey     struct{}
	requestIDKey struct{}
)

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor returns the Actor stored by WithActor.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// ActorID is the ID used in audit logs: the request's actor, or
// SystemActor when there is none.
func ActorID(ctx context.Context) string {
	if actor, ok := GetActor(ctx); ok && actor.ID != "" {
		return actor.ID
	}
	return SystemActor.ID
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns "" outside an HTTP request.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
