package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openlux/lumen-hub/internal/api"
	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/auth"
	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/tenant"
)

// RegisterOpsRoutes wires the operator provisioning surface. These routes
// run under operator JWTs, not API keys: they exist to bootstrap projects,
// clients and the first key before any API key can authenticate.
func RegisterOpsRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodPost, "/v1/ops/projects", api.Handler(createProject(service)))
	router.Method(http.MethodGet, "/v1/ops/projects/{project_id}", api.Handler(getProject(service)))
	router.Method(http.MethodPost, "/v1/ops/projects/{project_id}/clients", api.Handler(createClient(service)))
	router.Method(http.MethodPost, "/v1/ops/clients/{client_id}/api-keys", api.Handler(bootstrapKey(service)))
}

func requireOperator(r *http.Request) (string, error) {
	subject, ok := auth.OperatorFromContext(r.Context())
	if !ok {
		return "", apperrors.NewUnauthorizedError("Operator token required")
	}
	return subject, nil
}

func createProject(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if _, err := requireOperator(r); err != nil {
			return err
		}

		var input struct {
			Code string             `json:"code"`
			Name string             `json:"name"`
			Mode tenant.ProjectMode `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if input.Code == "" || input.Name == "" {
			return apperrors.NewValidationError("code and name are required", nil)
		}

		project, err := service.tenants.CreateProject(input.Code, input.Name, input.Mode)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return apperrors.NewConflictError("project code already exists: "+input.Code, nil)
			}
			return apperrors.NewInternalError("Failed to create project")
		}
		return api.WriteResource(w, http.StatusCreated, project)
	}
}

func getProject(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if _, err := requireOperator(r); err != nil {
			return err
		}

		project, err := service.tenants.GetProject(chi.URLParam(r, "project_id"))
		if err != nil {
			return apperrors.NewInternalError("Failed to load project")
		}
		if project == nil {
			return apperrors.NewNotFoundResource("project", chi.URLParam(r, "project_id"))
		}
		return api.WriteResource(w, http.StatusOK, project)
	}
}

func createClient(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if _, err := requireOperator(r); err != nil {
			return err
		}

		var input struct {
			Name         string  `json:"name"`
			ContactEmail *string `json:"contact_email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if input.Name == "" {
			return apperrors.NewValidationError("name is required", nil)
		}

		projectID := chi.URLParam(r, "project_id")
		project, err := service.tenants.GetProject(projectID)
		if err != nil {
			return apperrors.NewInternalError("Failed to load project")
		}
		if project == nil {
			return apperrors.NewNotFoundResource("project", projectID)
		}

		client, err := service.tenants.CreateClient(projectID, input.Name, input.ContactEmail)
		if err != nil {
			return apperrors.NewInternalError("Failed to create api client")
		}
		return api.WriteResource(w, http.StatusCreated, client)
	}
}

func bootstrapKey(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		subject, err := requireOperator(r)
		if err != nil {
			return err
		}

		var input struct {
			Scopes []string `json:"scopes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		clientID := chi.URLParam(r, "client_id")
		client, err := service.tenants.GetClient(clientID)
		if err != nil {
			return apperrors.NewInternalError("Failed to load api client")
		}
		if client == nil {
			return apperrors.NewNotFoundResource("api_client", clientID)
		}

		key, rawKey, err := service.IssueKey(client.ProjectID, clientID, input.Scopes, "operator:"+subject)
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
