package shared

import "context"

// Roles recognised by the ledger.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
	RoleAccountant = "accountant"
	RoleOperator   = "operator"
)

// Actor is the authenticated caller stamped on writes.
type Actor struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}

// Privileged reports whether the actor may approve payments and see every record.
func (a Actor) Privileged() bool {
	switch a.Role {
	case RoleAdmin, RoleSuperAdmin, RoleAccountant:
		return true
	default:
		return false
	}
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor set by the session middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.ID != 0
}
