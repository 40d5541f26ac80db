package auth

import "context"

type ctxKey string

const identityKey ctxKey = "clinic.identity"

// Identity is the immutable request-scoped caller context. When a Super Admin
// impersonates another user, Identity describes the impersonated user and
// ImpersonatedBy records who is really at the keyboard.
type Identity struct {
	UserID         string
	Name           string
	Email          string
	Role           Role
	ImpersonatedBy string
}

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the caller identity if present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	val := ctx.Value(identityKey)
	if val == nil {
		return Identity{}, false
	}
	id, ok := val.(Identity)
	return id, ok && id.UserID != ""
}

// Impersonate returns a copy of id acting as target, preserving the original
// actor for audit purposes.
func Impersonate(actor Identity, target Identity) Identity {
	target.ImpersonatedBy = actor.UserID
	return target
}
