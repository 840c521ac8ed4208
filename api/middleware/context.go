package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
)

type ctxKey int

const (
	callerKey ctxKey = iota
	requestIDKey
)

// caller is what Auth learned about the request's sender.
type caller struct {
	userID string
	role   string
}

func callerFrom(ctx context.Context) caller {
	if ctx == nil {
		return caller{}
	}
	c, _ := ctx.Value(callerKey).(caller)
	return c
}

// WithIdentity attaches a verified token identity to ctx.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, callerKey, caller{userID: id.UserID.String(), role: string(id.Role)})
}

// WithUserID sets only the user id, keeping any role already present.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := callerFrom(ctx)
	c.userID = userID
	return context.WithValue(ctx, callerKey, c)
}

// WithRole sets only the role, keeping any user id already present.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := callerFrom(ctx)
	c.role = role
	return context.WithValue(ctx, callerKey, c)
}

func UserIDFromContext(ctx context.Context) string { return callerFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return callerFrom(ctx).role }

// UserUUIDFromContext parses the authenticated user id. ok is false when the
// request carries no valid identity.
func UserUUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
