package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openlux/lumen-hub/internal/api"
	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/audit"
	"github.com/openlux/lumen-hub/internal/auth"
	"github.com/openlux/lumen-hub/internal/tenant"
)

// RegisterRoutes wires the project-scoped admin routes.
func RegisterRoutes(router chi.Router, service *Service, auditor *audit.Service) {
	router.Method(http.MethodPost, "/v1/{project_code}/admin/policy", api.Handler(writePolicy(service)))
	router.Method(http.MethodGet, "/v1/{project_code}/admin/policy", api.Handler(readPolicy(service)))

	router.Method(http.MethodPost, "/v1/{project_code}/admin/kill-switch", api.Handler(toggleKillSwitch(auditor)))
	router.Method(http.MethodGet, "/v1/{project_code}/admin/kill-switch", api.Handler(killSwitchStatus(auditor)))

	router.Method(http.MethodGet, "/v1/{project_code}/admin/audit-logs", api.Handler(listAuditLogs(auditor)))

	router.Method(http.MethodPost, "/v1/{project_code}/admin/credentials/exedra", api.Handler(storeExedraCredentials(service)))

	router.Method(http.MethodPost, "/v1/{project_code}/admin/api-keys", api.Handler(issueKey(service)))
	router.Method(http.MethodPost, "/v1/{project_code}/admin/api-keys/{key_id}/rotate", api.Handler(rotateKey(service)))
	router.Method(http.MethodDelete, "/v1/{project_code}/admin/api-keys/{key_id}", api.Handler(revokeKey(service)))

	router.Method(http.MethodGet, "/v1/{project_code}/admin/scopes", api.Handler(listScopes(service)))
	router.Method(http.MethodPut, "/v1/{project_code}/admin/project-mode", api.Handler(setProjectMode(service)))
}

func writePolicy(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "admin:policy:write")
		if err != nil {
			return err
		}

		var input struct {
			Version string         `json:"version"`
			Body    map[string]any `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		created, err := service.WritePolicy(client.Project.ProjectID, input.Version, input.Body, client.Client.Name)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusCreated, created)
	}
}

func readPolicy(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "admin:policy:read")
		if err != nil {
			return err
		}

		if r.URL.Query().Get("history") == "true" {
			limit := 50
			if l := r.URL.Query().Get("limit"); l != "" {
				if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
					limit = parsed
				}
			}
			history, err := service.PolicyHistory(client.Project.ProjectID, limit)
			if err != nil {
				return apperrors.NewInternalError("Failed to list policies")
			}
			return api.WriteList(w, r.URL.Path, history, false)
		}

		current, err := service.CurrentPolicy(client.Project.ProjectID)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, current)
	}
}

func toggleKillSwitch(auditor *audit.Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "admin:killswitch")
		if err != nil {
			return err
		}

		var input struct {
			Enabled bool    `json:"enabled"`
			Reason  *string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		if _, err := auditor.ToggleKillSwitch(client.Project.ProjectID, input.Enabled, input.Reason, client.Client.Name); err != nil {
			return apperrors.NewInternalError("Failed to toggle kill switch")
		}
		state, err := auditor.KillSwitch(client.Project.ProjectID)
		if err != nil {
			return apperrors.NewInternalError("Failed to read kill switch state")
		}
		return api.WriteResource(w, http.StatusOK, state)
	}
}

func killSwitchStatus(auditor *audit.Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "admin:killswitch")
		if err != nil {
			return err
		}

		state, err := auditor.KillSwitch(client.Project.ProjectID)
		if err != nil {
			return apperrors.NewInternalError("Failed to read kill switch state")
		}
		return api.WriteResource(w, http.StatusOK, state)
	}
}

func listAuditLogs(auditor *audit.Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "admin:audit:read")
		if err != nil {
			return err
		}

		filters := audit.QueryFilters{
			Entity: r.URL.Query().Get("entity"),
			Action: audit.Action(r.URL.Query().Get("action")),
		}
		if l := r.URL.Query().Get("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
				filters.Limit = parsed
			}
		}
		if o := r.URL.Query().Get("offset"); o != "" {
			if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
				filters.Offset = parsed
			}
		}

		entries, err := auditor.Query(client.Project.ProjectID, filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query audit logs")
		}
		if entries == nil {
			entries = []audit.Entry{}
		}
		return api.WriteList(w, r.URL.Path, entries, false)
	}
}

func storeExedraCredentials(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "admin:credentials:write")
		if err != nil {
			return err
		}

		var input struct {
			Token       string `json:"token"`
			BaseURL     string `json:"base_url"`
			Environment string `json:"environment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		err = service.StoreExedraCredentials(client.Project.ProjectID, client.Client.APIClientID,
			input.Token, input.BaseURL, input.Environment, client.Client.Name)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusCreated, map[string]any{"stored": true})
	}
}

func issueKey(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "admin:apikeys:write")
		if err != nil {
			return err
		}

		var input struct {
			APIClientID string   `json:"api_client_id"`
			Scopes      []string `json:"scopes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if input.APIClientID == "" {
			input.APIClientID = client.Client.APIClientID
		}

		key, rawKey, err := service.IssueKey(client.Project.ProjectID, input.APIClientID, input.Scopes, client.Client.Name)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusCreated, map[string]any{
			"api_key_id": key.APIKeyID,
			"api_key":    rawKey,
			"scopes":     key.Scopes,
		})
	}
}

func rotateKey(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "admin:apikeys:write")
		if err != nil {
			return err
		}

		key, rawKey, err := service.RotateKey(client.Project.ProjectID, chi.URLParam(r, "key_id"), client.Client.Name)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"api_key_id": key.APIKeyID,
			"api_key":    rawKey,
			"scopes":     key.Scopes,
		})
	}
}

func revokeKey(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "admin:apikeys:write")
		if err != nil {
			return err
		}

		if err := service.RevokeKey(client.Project.ProjectID, chi.URLParam(r, "key_id"), client.Client.Name); err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{"revoked": true})
	}
}

func listScopes(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if _, err := auth.RequireScope(r, "metadata:read"); err != nil {
			return err
		}

		defs, err := service.Scopes()
		if err != nil {
			return apperrors.NewInternalError("Failed to list scopes")
		}
		return api.WriteList(w, r.URL.Path, defs, false)
	}
}

func setProjectMode(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "config:write")
		if err != nil {
			return err
		}

		var input struct {
			Mode tenant.ProjectMode `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		project, err := service.SetProjectMode(client.Project, input.Mode, client.Client.Name)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, project)
	}
}
