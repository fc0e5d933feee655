package command

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openlux/lumen-hub/internal/api"
	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/auth"
)

// RegisterRoutes wires the realtime command routes.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodPost, "/v1/{project_code}/command/realtime", api.Handler(submitRealtime(service)))
	router.Method(http.MethodGet, "/v1/{project_code}/command/realtime/{command_id}", api.Handler(getCommand(service)))
}

func submitRealtime(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "command:realtime.write")
		if err != nil {
			return err
		}

		var input RealtimeRequest
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if input.AssetExternalID == "" {
			return apperrors.NewValidationError("asset_external_id is required", nil)
		}

		var idempotencyKey *string
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			idempotencyKey = &key
		}

		result, err := service.SubmitRealtime(r.Context(), client, input, idempotencyKey)
		if err != nil {
			return err
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		return api.WriteResource(w, status, result)
	}
}

func getCommand(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "asset:read")
		if err != nil {
			return err
		}

		cmd, err := service.GetCommand(client.Project.ProjectID, chi.URLParam(r, "command_id"))
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, cmd)
	}
}
