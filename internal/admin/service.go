package admin

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/audit"
	"github.com/openlux/lumen-hub/internal/auth"
	"github.com/openlux/lumen-hub/internal/credential"
	"github.com/openlux/lumen-hub/internal/policy"
	"github.com/openlux/lumen-hub/internal/scope"
	"github.com/openlux/lumen-hub/internal/tenant"
)

// Service provides the administrative surface: policies, kill switch, audit
// reads, credentials, API keys and project mode.
type Service struct {
	logger      *log.Logger
	reader      *sql.DB
	tenants     *tenant.Repository
	policies    *policy.Repository
	credentials *credential.Service
	auditor     *audit.Service
}

// NewService creates a new admin service.
func NewService(reader *sql.DB, tenants *tenant.Repository, policies *policy.Repository, credentials *credential.Service, auditor *audit.Service, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		logger:      logger,
		reader:      reader,
		tenants:     tenants,
		policies:    policies,
		credentials: credentials,
		auditor:     auditor,
	}
}

// WritePolicy validates and appends a new policy version.
func (s *Service) WritePolicy(projectID, version string, body map[string]any, apiClientName string) (*policy.Policy, error) {
	if version == "" {
		return nil, apperrors.NewValidationError("version is required", nil)
	}
	if ok, reason := policy.ValidateBody(body); !ok {
		return nil, apperrors.NewValidationError(reason, nil)
	}

	created, err := s.policies.Create(projectID, version, body)
	if err != nil {
		return nil, fmt.Errorf("create policy: %w", err)
	}

	fields := make([]string, 0, len(body))
	for field := range body {
		fields = append(fields, field)
	}
	_, err = s.auditor.Record(audit.RecordInput{
		Actor:     audit.ActorAPI,
		ProjectID: &projectID,
		Action:    audit.ActionPolicyUpdate,
		Entity:    "policy",
		EntityID:  created.PolicyID,
		Details: map[string]any{
			"version":       version,
			"api_client":    apiClientName,
			"policy_fields": fields,
		},
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CurrentPolicy reads the governing policy, 404 if none exists yet.
func (s *Service) CurrentPolicy(projectID string) (*policy.Policy, error) {
	current, err := s.policies.Current(projectID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.NewAppError(apperrors.ErrorCodePolicyNotFound,
			"no policy configured for this project", 404, nil)
	}
	return current, nil
}

// PolicyHistory lists the project's policy versions, newest first.
func (s *Service) PolicyHistory(projectID string, limit int) ([]policy.Policy, error) {
	return s.policies.History(projectID, limit)
}

// IssueKey mints an API key for a client of the project. The raw key is
// returned exactly once and never stored.
func (s *Service) IssueKey(projectID, apiClientID string, scopes []string, issuedBy string) (*tenant.Key, string, error) {
	client, err := s.tenants.GetClient(apiClientID)
	if err != nil {
		return nil, "", err
	}
	if client == nil || client.ProjectID != projectID {
		return nil, "", apperrors.NewNotFoundResource("api_client", apiClientID)
	}

	invalid, err := scope.Validate(s.reader, scopes)
	if err != nil {
		return nil, "", fmt.Errorf("validate scopes: %w", err)
	}
	if len(invalid) > 0 {
		return nil, "", apperrors.NewValidationError(
			"unknown scopes: "+strings.Join(invalid, ", "),
			map[string]any{"invalid_scopes": invalid})
	}

	keyID, rawKey, err := auth.MintKey()
	if err != nil {
		return nil, "", err
	}
	hash, err := auth.HashKey(rawKey)
	if err != nil {
		return nil, "", err
	}
	key, err := s.tenants.InsertKey(keyID, apiClientID, hash, scopes)
	if err != nil {
		return nil, "", fmt.Errorf("store api key: %w", err)
	}

	_, err = s.auditor.Record(audit.RecordInput{
		Actor:     audit.ActorAPI,
		ProjectID: &projectID,
		Action:    audit.ActionAPIKeyIssued,
		Entity:    "api_key",
		EntityID:  keyID,
		Details: map[string]any{
			"api_client_id": apiClientID,
			"scopes":        scopes,
			"issued_by":     issuedBy,
		},
	})
	if err != nil {
		return nil, "", err
	}
	return key, rawKey, nil
}

// RevokeKey deletes a key belonging to the project.
func (s *Service) RevokeKey(projectID, keyID, revokedBy string) error {
	key, err := s.tenants.GetKey(keyID)
	if err != nil {
		return err
	}
	if key == nil {
		return apperrors.NewNotFoundResource("api_key", keyID)
	}
	owner, err := s.tenants.GetClient(key.APIClientID)
	if err != nil {
		return err
	}
	if owner == nil || owner.ProjectID != projectID {
		return apperrors.NewNotFoundResource("api_key", keyID)
	}

	if err := s.tenants.DeleteKey(keyID); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	_, err = s.auditor.Record(audit.RecordInput{
		Actor:     audit.ActorAPI,
		ProjectID: &projectID,
		Action:    audit.ActionAPIKeyRevoked,
		Entity:    "api_key",
		EntityID:  keyID,
		Details: map[string]any{
			"api_client_id": key.APIClientID,
			"revoked_by":    revokedBy,
		},
	})
	return err
}

// RotateKey issues a replacement key with the same scopes, then revokes the
// old one. Issuance comes first so a failure never leaves the client keyless.
func (s *Service) RotateKey(projectID, keyID, rotatedBy string) (*tenant.Key, string, error) {
	old, err := s.tenants.GetKey(keyID)
	if err != nil {
		return nil, "", err
	}
	if old == nil {
		return nil, "", apperrors.NewNotFoundResource("api_key", keyID)
	}

	fresh, rawKey, err := s.IssueKey(projectID, old.APIClientID, old.Scopes, rotatedBy)
	if err != nil {
		return nil, "", err
	}
	if err := s.RevokeKey(projectID, keyID, rotatedBy); err != nil {
		return nil, "", err
	}
	return fresh, rawKey, nil
}

// StoreExedraCredentials stores the vendor token and base URL for a client
// and audits the write without the secret material.
func (s *Service) StoreExedraCredentials(projectID, apiClientID, token, baseURL, environment, apiClientName string) error {
	if token == "" || baseURL == "" {
		return apperrors.NewValidationError("token and base_url are required", nil)
	}
	if environment == "" {
		environment = credential.DefaultEnvironment
	}
	if err := s.credentials.StoreExedraConfig(apiClientID, token, baseURL, environment); err != nil {
		return err
	}

	_, err := s.auditor.Record(audit.RecordInput{
		Actor:     audit.ActorAPI,
		ProjectID: &projectID,
		Action:    audit.ActionCredentialStore,
		Entity:    "api_client",
		EntityID:  apiClientID,
		Details: map[string]any{
			"service":     credential.ServiceExedra,
			"environment": environment,
			"api_client":  apiClientName,
		},
	})
	return err
}

// SetProjectMode flips a project between live and simulation.
func (s *Service) SetProjectMode(project *tenant.Project, mode tenant.ProjectMode, apiClientName string) (*tenant.Project, error) {
	if mode != tenant.ModeLive && mode != tenant.ModeSimulation {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("mode must be 'live' or 'simulation', got %q", mode), nil)
	}
	if err := s.tenants.SetProjectMode(project.ProjectID, mode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundResource("project", project.ProjectID)
		}
		return nil, err
	}

	_, err := s.auditor.Record(audit.RecordInput{
		Actor:     audit.ActorAPI,
		ProjectID: &project.ProjectID,
		Action:    audit.ActionProjectModeChange,
		Entity:    "project",
		EntityID:  project.ProjectID,
		Details: map[string]any{
			"from":       string(project.Mode),
			"to":         string(mode),
			"api_client": apiClientName,
		},
	})
	if err != nil {
		return nil, err
	}
	return s.tenants.GetProject(project.ProjectID)
}

// Scopes lists the scope catalogue.
func (s *Service) Scopes() ([]scope.Definition, error) {
	return scope.All(s.reader)
}
