package auth

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/openlux/lumen-hub/internal/api"
	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/config"
	"github.com/openlux/lumen-hub/internal/tenant"
)

var publicPrefixes = []string{
	"/v1/health",
}

const opsPrefix = "/v1/ops"

// Middleware authenticates every request: operator JWTs for the ops surface,
// project-scoped bearer API keys for everything else.
func Middleware(cfg config.Config, repo *tenant.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				api.WriteError(w, r, err)
				return
			}

			if strings.HasPrefix(r.URL.Path, opsPrefix) {
				subject, err := VerifyOperatorToken(cfg, token)
				if err != nil {
					api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid operator token"))
					return
				}
				next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), subject)))
				return
			}

			projectCode := projectCodeFromPath(r.URL.Path)
			if projectCode == "" {
				api.WriteError(w, r, apperrors.NewNotFoundError("project not found", nil))
				return
			}

			project, err := repo.GetProjectByCode(projectCode)
			if err != nil {
				api.WriteError(w, r, apperrors.NewInternalError("Authentication failed"))
				return
			}
			if project == nil {
				api.WriteError(w, r, apperrors.NewAppError(apperrors.ErrorCodeProjectNotFound,
					"project not found", http.StatusNotFound, map[string]any{"project_code": projectCode}))
				return
			}

			authClient, err := resolveKey(repo, project, token)
			if err != nil {
				api.WriteError(w, r, err)
				return
			}

			if cfg.RequireHMAC {
				if err := verifyRequestSignature(r, token); err != nil {
					api.WriteError(w, r, err)
					return
				}
			}

			_ = repo.TouchKey(authClient.Key.APIKeyID)

			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), authClient)))
		})
	}
}

// resolveKey walks the project's keys with a cheap prefix match before the
// key derivation, matching the stored salt||digest hash.
func resolveKey(repo *tenant.Repository, project *tenant.Project, rawKey string) (*AuthClient, error) {
	keys, clients, err := repo.KeysForProject(project.ProjectID)
	if err != nil {
		return nil, apperrors.NewInternalError("Authentication failed")
	}

	for i := range keys {
		key := &keys[i]
		if !KeyMatchesPrefix(rawKey, key.APIKeyID) {
			continue
		}
		if VerifyKey(rawKey, key.Hash) {
			return &AuthClient{
				Key:     key,
				Client:  clients[key.APIClientID],
				Project: project,
			}, nil
		}
	}

	return nil, apperrors.NewUnauthorizedError("Invalid API key", apperrors.ErrorCodeInvalidAPIKey)
}

func verifyRequestSignature(r *http.Request, secret string) error {
	timestamp := r.Header.Get("X-Timestamp")
	signature := r.Header.Get("X-Signature")
	if timestamp == "" || signature == "" {
		return apperrors.NewUnauthorizedError("Request signature required", apperrors.ErrorCodeInvalidSig)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apperrors.NewValidationError("unreadable request body", nil)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if !VerifySignature(body, timestamp, signature, secret) {
		return apperrors.NewUnauthorizedError("Invalid request signature", apperrors.ErrorCodeInvalidSig)
	}
	return nil
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", apperrors.NewUnauthorizedError("Missing Authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", apperrors.NewUnauthorizedError("Invalid Authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", apperrors.NewUnauthorizedError("Invalid Authorization header format")
	}
	return token, nil
}

func projectCodeFromPath(path string) string {
	// Routes are /v1/{project_code}/{resource}.
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return ""
	}
	return parts[1]
}

func isPublicRoute(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
