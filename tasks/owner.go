package tasks

import "context"

type contextKey string

const ownerContextKey contextKey = "owner"

// WithOwner returns a context carrying the authenticated owner id.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerContextKey, ownerID)
}

// OwnerFrom extracts the authenticated owner id, if any.
func OwnerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerContextKey).(string)
	return id, ok && id != ""
}

// RequireOwner is OwnerFrom that fails with Unauthorized.
func RequireOwner(ctx context.Context, op string) (string, error) {
	id, ok := OwnerFrom(ctx)
	if !ok {
		return "", Errorf(Unauthorized, op, "missing owner identity")
	}
	return id, nil
}
