package asset

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/audit"
	"github.com/openlux/lumen-hub/internal/credential"
	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/exedra"
	"github.com/openlux/lumen-hub/internal/tenant"
)

// State is the asset's current operational view. DimLevel comes from the
// vendor when reachable; nil means no vendor reading was available.
type State struct {
	Asset          *Asset           `json:"asset"`
	ActiveSchedule *ScheduleSummary `json:"active_schedule,omitempty"`
	DimLevel       map[string]any   `json:"dim_level,omitempty"`
	DimSource      string           `json:"dim_source"`
}

// Service provides asset metadata and state operations.
type Service struct {
	logger      *log.Logger
	repo        *Repository
	tenants     *tenant.Repository
	credentials *credential.Service
	gateway     *exedra.Gateway
	auditor     *audit.Service
}

// NewService creates a new asset service.
func NewService(dbPair DBPair, tenants *tenant.Repository, credentials *credential.Service, gateway *exedra.Gateway, auditor *audit.Service, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		logger:      logger,
		repo:        NewRepository(dbPair),
		tenants:     tenants,
		credentials: credentials,
		gateway:     gateway,
		auditor:     auditor,
	}
}

// Repo exposes the repository for packages that only need asset reads.
func (s *Service) Repo() *Repository { return s.repo }

// Create provisions an asset under a project.
func (s *Service) Create(input CreateInput) (*Asset, error) {
	if input.ProjectID == "" || input.ExternalID == "" {
		return nil, apperrors.NewValidationError("project_id and external_id are required", nil)
	}
	if input.ControlMode == "" {
		input.ControlMode = ModePassthrough
	}
	if !input.ControlMode.Valid() {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("control_mode must be 'optimise' or 'passthrough', got %q", input.ControlMode), nil)
	}

	asset, err := s.repo.Create(input)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperrors.NewConflictError(
				"asset already exists: "+input.ExternalID,
				map[string]any{"external_id": input.ExternalID})
		}
		return nil, fmt.Errorf("create asset: %w", err)
	}
	return asset, nil
}

// Resolve finds a project's asset by external ID, returning a typed 404 when
// absent.
func (s *Service) Resolve(projectID, externalID string) (*Asset, error) {
	asset, err := s.repo.GetByExternalID(projectID, externalID)
	if err != nil {
		return nil, fmt.Errorf("resolve asset: %w", err)
	}
	if asset == nil {
		return nil, apperrors.NewAppError(apperrors.ErrorCodeAssetNotFound,
			"asset not found: "+externalID, http.StatusNotFound,
			map[string]any{"external_id": externalID})
	}
	return asset, nil
}

// List returns a page of the project's assets.
func (s *Service) List(projectID string, limit, offset int) ([]Asset, int, error) {
	return s.repo.ListForProject(projectID, limit, offset)
}

// UpdateControlMode flips an asset's control mode and audits the change.
func (s *Service) UpdateControlMode(asset *Asset, mode ControlMode, apiClientName string) (*Asset, error) {
	if !mode.Valid() {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("control_mode must be 'optimise' or 'passthrough', got %q", mode), nil)
	}
	if err := s.repo.SetControlMode(asset.AssetID, mode); err != nil {
		return nil, fmt.Errorf("update control mode: %w", err)
	}

	_, err := s.auditor.Record(audit.RecordInput{
		Actor:     audit.ActorAPI,
		ProjectID: &asset.ProjectID,
		Action:    audit.ActionControlModeChange,
		Entity:    "asset",
		EntityID:  asset.AssetID,
		Details: map[string]any{
			"external_id": asset.ExternalID,
			"from":        string(asset.ControlMode),
			"to":          string(mode),
			"api_client":  apiClientName,
		},
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Get(asset.AssetID)
}

// CurrentSchedule returns the asset's active schedule, 404 when it has none.
func (s *Service) CurrentSchedule(asset *Asset) (*ScheduleSummary, error) {
	summary, err := s.repo.ActiveSchedule(asset.AssetID)
	if err != nil {
		return nil, fmt.Errorf("load active schedule: %w", err)
	}
	if summary == nil {
		return nil, apperrors.NewNotFoundError(
			"no active schedule for asset: "+asset.ExternalID,
			map[string]any{"external_id": asset.ExternalID})
	}
	return summary, nil
}

// State composes the asset's current view. In live mode it tries the vendor
// for the dimming level and falls back to local data on any upstream failure;
// simulation projects never reach the vendor.
func (s *Service) State(ctx context.Context, project *tenant.Project, asset *Asset) (*State, error) {
	state := &State{Asset: asset, DimSource: "local"}

	summary, err := s.repo.ActiveSchedule(asset.AssetID)
	if err != nil {
		return nil, fmt.Errorf("load active schedule: %w", err)
	}
	state.ActiveSchedule = summary

	if project.Mode != tenant.ModeLive {
		return state, nil
	}

	client, err := s.tenants.FirstActiveClient(project.ProjectID)
	if err != nil || client == nil {
		return state, nil
	}
	cfg, err := s.credentials.GetExedraConfig(client.APIClientID, credential.DefaultEnvironment)
	if err != nil {
		return state, nil
	}

	level, err := s.gateway.GetDeviceDimmingLevel(ctx, cfg.Token, cfg.BaseURL, asset.ExternalID, false)
	if err != nil {
		s.logger.Printf("dim level read failed for asset %s: %v", asset.ExternalID, err)
		return state, nil
	}
	state.DimLevel = level
	state.DimSource = "vendor"
	return state, nil
}
