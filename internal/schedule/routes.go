package schedule

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openlux/lumen-hub/internal/api"
	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/auth"
)

// RegisterRoutes wires the schedule command route and the manual
// commissioning trigger.
func RegisterRoutes(router chi.Router, service *Service, commissioner *Commissioner) {
	router.Method(http.MethodPost, "/v1/{project_code}/command/schedule", api.Handler(submitSchedule(service)))
	router.Method(http.MethodPost, "/v1/{project_code}/admin/commissions/process", api.Handler(processCommissions(commissioner)))
}

func submitSchedule(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "command:schedule.write")
		if err != nil {
			return err
		}

		var input UpdateRequest
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

		result, err := service.UpdateSchedule(r.Context(), client, input, idempotencyKey)
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

func processCommissions(commissioner *Commissioner) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "config:write")
		if err != nil {
			return err
		}

		// The manual trigger sweeps the caller's project only; the
		// fleet-wide sweep belongs to the cron runner.
		report, err := commissioner.ProcessPending(r.Context(), client.Project.ProjectID)
		if err != nil {
			return apperrors.NewInternalError("Commissioning sweep failed")
		}
		return api.WriteResource(w, http.StatusOK, report)
	}
}
