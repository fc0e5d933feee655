package asset

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openlux/lumen-hub/internal/api"
	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/auth"
)

// RegisterRoutes wires the project-scoped asset routes.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/{project_code}/assets", api.Handler(listAssets(service)))
	router.Method(http.MethodGet, "/v1/{project_code}/assets/{external_id}", api.Handler(getAsset(service)))
	router.Method(http.MethodGet, "/v1/{project_code}/assets/{external_id}/state", api.Handler(getAssetState(service)))
	router.Method(http.MethodGet, "/v1/{project_code}/assets/{external_id}/schedule", api.Handler(getAssetSchedule(service)))
	router.Method(http.MethodPut, "/v1/{project_code}/assets/{external_id}/control-mode", api.Handler(updateControlMode(service)))
}

// RegisterOpsRoutes wires operator-only provisioning routes.
func RegisterOpsRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodPost, "/v1/ops/projects/{project_id}/assets", api.Handler(createAsset(service)))
}

func listAssets(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "asset:read")
		if err != nil {
			return err
		}

		limit := 100
		offset := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
				limit = parsed
			}
		}
		if o := r.URL.Query().Get("offset"); o != "" {
			if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
				offset = parsed
			}
		}

		assets, total, err := service.List(client.Project.ProjectID, limit, offset)
		if err != nil {
			return apperrors.NewInternalError("Failed to list assets")
		}

		if assets == nil {
			assets = []Asset{}
		}
		hasMore := offset+len(assets) < total
		return api.WriteList(w, r.URL.Path, assets, hasMore)
	}
}

func getAsset(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "asset:read")
		if err != nil {
			return err
		}

		asset, err := service.Resolve(client.Project.ProjectID, chi.URLParam(r, "external_id"))
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, asset)
	}
}

func getAssetState(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "asset:read")
		if err != nil {
			return err
		}

		asset, err := service.Resolve(client.Project.ProjectID, chi.URLParam(r, "external_id"))
		if err != nil {
			return err
		}
		state, err := service.State(r.Context(), client.Project, asset)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, state)
	}
}

func getAssetSchedule(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "asset:read")
		if err != nil {
			return err
		}

		asset, err := service.Resolve(client.Project.ProjectID, chi.URLParam(r, "external_id"))
		if err != nil {
			return err
		}
		summary, err := service.CurrentSchedule(asset)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, summary)
	}
}

func updateControlMode(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "asset:write")
		if err != nil {
			return err
		}

		var input struct {
			ControlMode ControlMode `json:"control_mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		asset, err := service.Resolve(client.Project.ProjectID, chi.URLParam(r, "external_id"))
		if err != nil {
			return err
		}
		updated, err := service.UpdateControlMode(asset, input.ControlMode, client.Client.Name)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, updated)
	}
}

func createAsset(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if _, ok := auth.OperatorFromContext(r.Context()); !ok {
			return apperrors.NewUnauthorizedError("Operator token required")
		}

		var input CreateInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		input.ProjectID = chi.URLParam(r, "project_id")

		asset, err := service.Create(input)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusCreated, asset)
	}
}
