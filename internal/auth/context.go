package auth

import (
	"context"
	"net/http"

	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/tenant"
)

type contextKey string

const (
	clientKey   contextKey = "authClient"
	operatorKey contextKey = "authOperator"
)

// AuthClient is the resolved identity for an authenticated request: the key
// that matched, its owning client, and the tenant project from the path.
type AuthClient struct {
	Key     *tenant.Key
	Client  *tenant.Client
	Project *tenant.Project
}

// HasScope reports whether the authenticated key carries a scope.
func (c *AuthClient) HasScope(scope string) bool {
	return c.Key.HasScope(scope)
}

// WithClient stores an authenticated client in the context.
func WithClient(ctx context.Context, client *AuthClient) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// ClientFromContext returns the authenticated client, if present.
func ClientFromContext(ctx context.Context) (*AuthClient, bool) {
	if ctx == nil {
		return nil, false
	}
	value := ctx.Value(clientKey)
	if value == nil {
		return nil, false
	}
	client, ok := value.(*AuthClient)
	return client, ok
}

// RequireScope resolves the authenticated client and checks one scope.
// Handlers call this before touching any state.
func RequireScope(r *http.Request, scope string) (*AuthClient, error) {
	client, ok := ClientFromContext(r.Context())
	if !ok {
		return nil, apperrors.NewUnauthorizedError("Missing authentication")
	}
	if !client.HasScope(scope) {
		return nil, apperrors.NewAppError(apperrors.ErrorCodeMissingScope,
			"Missing required scope: "+scope, http.StatusForbidden,
			map[string]any{"scope": scope})
	}
	return client, nil
}

// WithOperator marks the context as carrying a verified operator identity.
func WithOperator(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, operatorKey, subject)
}

// OperatorFromContext returns the operator subject, if present.
func OperatorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value := ctx.Value(operatorKey)
	if value == nil {
		return "", false
	}
	subject, ok := value.(string)
	return subject, ok
}
