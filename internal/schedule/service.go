package schedule

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/asset"
	"github.com/openlux/lumen-hub/internal/audit"
	"github.com/openlux/lumen-hub/internal/auth"
	"github.com/openlux/lumen-hub/internal/credential"
	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/exedra"
	"github.com/openlux/lumen-hub/internal/tenant"
)

// Service relays schedule updates to the vendor and owns the schedule state
// machine up to the commissioning hand-off.
type Service struct {
	logger       *log.Logger
	repo         *Repository
	assets       *asset.Service
	tenants      *tenant.Repository
	credentials  *credential.Service
	gateway      *exedra.Gateway
	auditor      *audit.Service
	commissioner *Commissioner
}

// NewService creates a new schedule service. Commissioner is attached after
// construction because the two reference each other.
func NewService(dbPair DBPair, assets *asset.Service, tenants *tenant.Repository, credentials *credential.Service, gateway *exedra.Gateway, auditor *audit.Service, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		logger:      logger,
		repo:        NewRepository(dbPair),
		assets:      assets,
		tenants:     tenants,
		credentials: credentials,
		gateway:     gateway,
		auditor:     auditor,
	}
}

// AttachCommissioner wires the background commissioner used for the
// fire-and-forget attempt after a live schedule write.
func (s *Service) AttachCommissioner(c *Commissioner) { s.commissioner = c }

// Repo exposes the repository.
func (s *Service) Repo() *Repository { return s.repo }

// ValidateSteps checks schedule step shape: at least one step, HH:MM times,
// dim percentages.
func ValidateSteps(steps []Step) (bool, string) {
	if len(steps) == 0 {
		return false, "Schedule must have at least one step"
	}
	for _, step := range steps {
		if !validClock(step.Time) {
			return false, fmt.Sprintf("Invalid time format: %s. Use HH:MM", step.Time)
		}
		if step.Dim < 0 || step.Dim > 100 {
			return false, fmt.Sprintf("Invalid dim percentage: %d. Must be 0-100", step.Dim)
		}
	}
	return true, ""
}

func validClock(value string) bool {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

// UpdateSchedule runs the schedule relay. Simulation projects write a new
// active schedule with zero vendor calls. Live projects push the program to
// the vendor first, then persist the new row as pending_commission and kick
// off a detached commissioning attempt.
func (s *Service) UpdateSchedule(ctx context.Context, caller *auth.AuthClient, input UpdateRequest, idempotencyKey *string) (*Result, error) {
	projectID := caller.Project.ProjectID

	target, err := s.assets.Resolve(projectID, input.AssetExternalID)
	if err != nil {
		return nil, err
	}

	if ok, reason := ValidateSteps(input.Steps); !ok {
		return nil, apperrors.NewValidationError(reason, nil)
	}

	if target.ControlMode == asset.ModeOptimise && !caller.HasScope("command:override") {
		return nil, apperrors.NewForbiddenError("Optimise mode assets require command:override scope")
	}

	if idempotencyKey != nil {
		existing, err := s.repo.FindByIdempotencyKey(target.AssetID, *idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &Result{Schedule: existing, Replayed: true}, nil
		}
	}

	requestedAt := time.Now().UTC()
	if input.RequestedAt != nil {
		requestedAt = input.RequestedAt.UTC()
	}

	body := map[string]any{
		"steps":        input.Steps,
		"requested_at": requestedAt.Format(time.RFC3339),
	}
	if input.Note != nil {
		body["note"] = *input.Note
	}

	if caller.Project.Mode == tenant.ModeSimulation {
		return s.writeSimulated(caller, target, body, idempotencyKey, input)
	}
	return s.writeLive(ctx, caller, target, body, idempotencyKey, input)
}

func (s *Service) writeSimulated(caller *auth.AuthClient, target *asset.Asset, body map[string]any, idempotencyKey *string, input UpdateRequest) (*Result, error) {
	projectID := caller.Project.ProjectID
	row, err := s.repo.InsertSuperseding(InsertInput{
		AssetID:        target.AssetID,
		Body:           body,
		Status:         StatusActive,
		IsSimulated:    true,
		IdempotencyKey: idempotencyKey,
	}, s.auditor.Repo(), audit.RecordInput{
		Actor:     audit.ActorAPI,
		ProjectID: &projectID,
		Action:    audit.ActionScheduleCommand,
		Entity:    "asset",
		EntityID:  target.AssetID,
		Details: map[string]any{
			"asset_external_id": input.AssetExternalID,
			"step_count":        len(input.Steps),
			"control_mode":      string(target.ControlMode),
			"api_client":        caller.Client.Name,
			"simulated":         true,
		},
	})
	if err != nil {
		return s.recoverInsert(err, target.AssetID, idempotencyKey)
	}
	return &Result{Schedule: row}, nil
}

func (s *Service) writeLive(ctx context.Context, caller *auth.AuthClient, target *asset.Asset, body map[string]any, idempotencyKey *string, input UpdateRequest) (*Result, error) {
	projectID := caller.Project.ProjectID

	programID, err := s.resolveProgramID(target)
	if err != nil {
		return nil, err
	}

	commands, err := exedra.ScheduleFromSteps(toExedraSteps(input.Steps))
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	if err := exedra.ValidateCommands(commands); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}

	client, err := s.tenants.FirstActiveClient(projectID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, apperrors.NewValidationError("no active api client holds vendor credentials", nil)
	}
	cfg, err := s.credentials.GetExedraConfig(client.APIClientID, credential.DefaultEnvironment)
	if err != nil {
		return nil, err
	}

	if err := s.gateway.UpdateControlProgram(ctx, cfg.Token, cfg.BaseURL, programID, commands, target.DisplayName()); err != nil {
		s.logger.Printf("control program update failed for asset %s: %v", target.ExternalID, err)
		s.auditor.RecordFailure(projectID, "schedule", target.AssetID, err.Error(), "Vendor schedule update failed")
		return nil, apperrors.NewUpstreamError("Vendor schedule update failed")
	}

	// The vendor now holds the new program; the row lands as
	// pending_commission because commissioning is its own slow async step.
	row, err := s.repo.InsertSuperseding(InsertInput{
		AssetID:         target.AssetID,
		Body:            body,
		Status:          StatusPendingCommission,
		VendorProgramID: &programID,
		IdempotencyKey:  idempotencyKey,
	}, s.auditor.Repo(), audit.RecordInput{
		Actor:     audit.ActorAPI,
		ProjectID: &projectID,
		Action:    audit.ActionScheduleCommand,
		Entity:    "asset",
		EntityID:  target.AssetID,
		Details: map[string]any{
			"asset_external_id": input.AssetExternalID,
			"step_count":        len(input.Steps),
			"control_mode":      string(target.ControlMode),
			"api_client":        caller.Client.Name,
			"vendor_program_id": programID,
			"commission":        "deferred",
		},
	})
	if err != nil {
		return s.recoverInsert(err, target.AssetID, idempotencyKey)
	}

	if s.commissioner != nil {
		// Fire and forget; the response does not wait for commissioning.
		job := PendingJob{
			ScheduleID:      row.ScheduleID,
			AssetID:         target.AssetID,
			AssetExternalID: target.ExternalID,
			ProjectID:       projectID,
		}
		go func() {
			if err := s.commissioner.CommissionSchedule(context.Background(), job); err != nil {
				s.logger.Printf("detached commissioning failed for schedule %s: %v", job.ScheduleID, err)
			}
		}()
	}

	return &Result{Schedule: row}, nil
}

// resolveProgramID finds the vendor control-program id for an asset: latest
// schedule row carrying one, else the asset's provisioning metadata.
func (s *Service) resolveProgramID(target *asset.Asset) (string, error) {
	programID, err := s.repo.LatestProgramID(target.AssetID)
	if err != nil {
		return "", err
	}
	if programID == "" {
		if fromMeta, ok := target.Metadata["vendor_program_id"].(string); ok {
			programID = fromMeta
		}
	}
	if programID == "" {
		return "", apperrors.NewAppError(apperrors.ErrorCodeInvalidSchedule,
			"no vendor control program is provisioned for asset: "+target.ExternalID,
			422, map[string]any{"external_id": target.ExternalID})
	}
	return programID, nil
}

// recoverInsert turns a lost idempotency race into a replay of the winning
// row; anything else is a real persistence failure.
func (s *Service) recoverInsert(err error, assetID string, idempotencyKey *string) (*Result, error) {
	if db.IsUniqueViolation(err) && idempotencyKey != nil {
		if existing, lookupErr := s.repo.FindByIdempotencyKey(assetID, *idempotencyKey); lookupErr == nil && existing != nil {
			return &Result{Schedule: existing, Replayed: true}, nil
		}
	}
	return nil, fmt.Errorf("persist schedule: %w", err)
}

func toExedraSteps(steps []Step) []exedra.Step {
	converted := make([]exedra.Step, 0, len(steps))
	for _, step := range steps {
		converted = append(converted, exedra.Step{Time: step.Time, Dim: step.Dim})
	}
	return converted
}
