package auth

import "context"

type contextKey int

const (
	accessTokenKey contextKey = iota
	userIDKey
)

// ContextWithAccessToken attaches a bearer token so gateway calls act on behalf of
// that caller instead of the gateway's cached session.
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessTokenFromContext returns the token set by ContextWithAccessToken.
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey).(string)
	return token, ok && token != ""
}

// ContextWithUserID records the authenticated user id for events raised on behalf
// of a request.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the id set by ContextWithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}
