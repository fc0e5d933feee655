package sensor

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openlux/lumen-hub/internal/api"
	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/auth"
)

// RegisterRoutes wires the project-scoped sensor routes.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodPost, "/v1/{project_code}/sensors/ingest", api.Handler(ingest(service)))
	router.Method(http.MethodGet, "/v1/{project_code}/sensors/{external_id}", api.Handler(getSensor(service)))
}

// RegisterOpsRoutes wires operator-only provisioning routes.
func RegisterOpsRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodPost, "/v1/ops/sensor-types", api.Handler(createType(service)))
	router.Method(http.MethodPost, "/v1/ops/projects/{project_id}/sensors", api.Handler(createSensor(service)))
	router.Method(http.MethodPost, "/v1/ops/sensors/{sensor_id}/links", api.Handler(linkAsset(service)))
}

func ingest(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "sensor:ingest")
		if err != nil {
			return err
		}

		var input IngestInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		var idempotencyKey *string
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			idempotencyKey = &key
		}

		result, err := service.Ingest(client.Project.ProjectID, client.Client.Name, idempotencyKey, input)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, result)
	}
}

func getSensor(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		client, err := auth.RequireScope(r, "sensor:read")
		if err != nil {
			return err
		}

		details, err := service.Details(client.Project.ProjectID, chi.URLParam(r, "external_id"))
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, details)
	}
}

func createType(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if _, ok := auth.OperatorFromContext(r.Context()); !ok {
			return apperrors.NewUnauthorizedError("Operator token required")
		}

		var input CreateTypeInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		sensorType, err := service.CreateType(input)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusCreated, sensorType)
	}
}

func createSensor(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if _, ok := auth.OperatorFromContext(r.Context()); !ok {
			return apperrors.NewUnauthorizedError("Operator token required")
		}

		var input CreateSensorInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		input.ProjectID = chi.URLParam(r, "project_id")

		sensor, err := service.CreateSensor(input)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusCreated, sensor)
	}
}

func linkAsset(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if _, ok := auth.OperatorFromContext(r.Context()); !ok {
			return apperrors.NewUnauthorizedError("Operator token required")
		}

		var input struct {
			AssetID string `json:"asset_id"`
			Section string `json:"section"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if input.AssetID == "" {
			return apperrors.NewValidationError("asset_id is required", nil)
		}

		link, err := service.LinkAsset(chi.URLParam(r, "sensor_id"), input.AssetID, input.Section)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusCreated, link)
	}
}
