package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextActorKey ctxKey = "actor"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// ActorContext is the authenticated caller as seen by the services: who they
// are, what role they hold and which tenant they act in.
type ActorContext struct {
	UserID    int64
	Role      Role
	CompanyID int64
}

func (a ActorContext) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a ActorContext) IsManager() bool {
	return a.Role == RoleManager
}

func (a ActorContext) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

func ActorFromContext(ctx context.Context) (ActorContext, bool) {
	if ctx == nil {
		return ActorContext{}, false
	}
	actor, ok := ctx.Value(ContextActorKey).(ActorContext)
	return actor, ok
}

func ContextWithActor(ctx context.Context, actor ActorContext) context.Context {
	return context.WithValue(ctx, ContextActorKey, actor)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
