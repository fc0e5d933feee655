package command

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/asset"
	"github.com/openlux/lumen-hub/internal/audit"
	"github.com/openlux/lumen-hub/internal/auth"
	"github.com/openlux/lumen-hub/internal/credential"
	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/exedra"
	"github.com/openlux/lumen-hub/internal/policy"
	"github.com/openlux/lumen-hub/internal/tenant"
)

// Service relays realtime dimming commands to the vendor.
type Service struct {
	logger      *log.Logger
	repo        *Repository
	assets      *asset.Service
	policies    *policy.Repository
	tenants     *tenant.Repository
	credentials *credential.Service
	gateway     *exedra.Gateway
	auditor     *audit.Service
}

// NewService creates a new command service.
func NewService(dbPair DBPair, assets *asset.Service, policies *policy.Repository, tenants *tenant.Repository, credentials *credential.Service, gateway *exedra.Gateway, auditor *audit.Service, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		logger:      logger,
		repo:        NewRepository(dbPair),
		assets:      assets,
		policies:    policies,
		tenants:     tenants,
		credentials: credentials,
		gateway:     gateway,
		auditor:     auditor,
	}
}

// Repo exposes the repository for read-side routes.
func (s *Service) Repo() *Repository { return s.repo }

// SubmitRealtime runs the full relay: guardrails, idempotent replay, durable
// pending row, then the vendor call (or the simulation short-circuit). A
// vendor failure is a domain outcome, not a transport error: the call
// returns the command with status failed.
func (s *Service) SubmitRealtime(ctx context.Context, caller *auth.AuthClient, input RealtimeRequest, idempotencyKey *string) (*Result, error) {
	projectID := caller.Project.ProjectID

	killSwitch, err := s.auditor.KillSwitch(projectID)
	if err != nil {
		return nil, err
	}
	if killSwitch.Enabled {
		return nil, apperrors.NewAppError(apperrors.ErrorCodeKillSwitch,
			"Kill switch is engaged for this project", http.StatusUnprocessableEntity, nil)
	}

	target, err := s.assets.Resolve(projectID, input.AssetExternalID)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != nil {
		existing, err := s.repo.FindByIdempotencyKey(caller.Client.APIClientID, *idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &Result{Command: existing, Replayed: true}, nil
		}
	}

	if ok, reason := policy.ValidateBasic(input.DimPercent); !ok {
		return nil, apperrors.NewValidationError(reason, nil)
	}

	optimise := target.ControlMode == asset.ModeOptimise
	if optimise {
		if !caller.HasScope("command:override") {
			return nil, apperrors.NewForbiddenError("Optimise mode assets require command:override scope")
		}
		current, err := s.policies.Current(projectID)
		if err != nil {
			return nil, fmt.Errorf("load current policy: %w", err)
		}
		if ok, reason := policy.ValidatePolicy(true, input.DimPercent, current); !ok {
			return nil, apperrors.NewPolicyViolationError("Policy violation: "+reason,
				map[string]any{"dim_percent": input.DimPercent})
		}
	}

	requestedAt := time.Now().UTC()
	if input.RequestedAt != nil {
		requestedAt = input.RequestedAt.UTC()
	}

	auditDetails := map[string]any{
		"asset_external_id": input.AssetExternalID,
		"dim_percent":       input.DimPercent,
		"control_mode":      string(target.ControlMode),
		"api_client":        caller.Client.Name,
	}
	if input.Note != nil {
		auditDetails["note"] = *input.Note
	}
	if idempotencyKey != nil {
		auditDetails["idempotency_key"] = *idempotencyKey
	}

	cmd, err := s.repo.InsertPending(InsertInput{
		AssetID:        target.AssetID,
		RequestedAt:    requestedAt,
		DimPercent:     input.DimPercent,
		SourceMode:     string(target.ControlMode),
		Vendor:         caller.Client.Name,
		APIClientID:    caller.Client.APIClientID,
		IdempotencyKey: idempotencyKey,
	}, s.auditor.Repo(), audit.RecordInput{
		Actor:     audit.ActorAPI,
		ProjectID: &projectID,
		Action:    audit.ActionRealtimeCommand,
		Entity:    "asset",
		Details:   auditDetails,
	})
	if err != nil {
		// Two concurrent submissions under the same key race on the partial
		// unique index; the loser replays the winner's row.
		if db.IsUniqueViolation(err) && idempotencyKey != nil {
			existing, lookupErr := s.repo.FindByIdempotencyKey(caller.Client.APIClientID, *idempotencyKey)
			if lookupErr == nil && existing != nil {
				return &Result{Command: existing, Replayed: true}, nil
			}
		}
		return nil, fmt.Errorf("persist command: %w", err)
	}

	if caller.Project.Mode == tenant.ModeSimulation {
		if err := s.repo.MarkSimulated(cmd.CommandID); err != nil {
			return nil, err
		}
		final, err := s.repo.Get(cmd.CommandID)
		if err != nil {
			return nil, err
		}
		return &Result{Command: final}, nil
	}

	final, err := s.relayLive(ctx, caller.Project, target, cmd, input)
	if err != nil {
		return nil, err
	}
	return &Result{Command: final}, nil
}

// relayLive sends the command to the vendor and finalizes the persisted row.
// The pending row was already committed, so any failure here lands in the
// database as status failed with the technical error.
func (s *Service) relayLive(ctx context.Context, project *tenant.Project, target *asset.Asset, cmd *RealtimeCommand, input RealtimeRequest) (*RealtimeCommand, error) {
	fail := func(start time.Time, technical string) (*RealtimeCommand, error) {
		latency := time.Since(start).Milliseconds()
		if err := s.repo.MarkFailed(cmd.CommandID, technical, latency); err != nil {
			return nil, err
		}
		s.auditor.RecordFailure(project.ProjectID, "realtime_command", cmd.CommandID,
			technical, "Vendor relay failed")
		return s.repo.Get(cmd.CommandID)
	}

	start := time.Now()

	client, err := s.tenants.FirstActiveClient(project.ProjectID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return fail(start, "no active api client holds vendor credentials")
	}
	cfg, err := s.credentials.GetExedraConfig(client.APIClientID, credential.DefaultEnvironment)
	if err != nil {
		return fail(start, "vendor credentials unavailable: "+err.Error())
	}

	response, err := s.gateway.SendDeviceCommand(ctx, cfg.Token, cfg.BaseURL,
		target.ExternalID, exedra.CommandSetDimmingLevel, input.DimPercent, input.DurationSec)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		s.logger.Printf("vendor relay failed for command %s: %v", cmd.CommandID, err)
		if markErr := s.repo.MarkFailed(cmd.CommandID, err.Error(), latency); markErr != nil {
			return nil, markErr
		}
		s.auditor.RecordFailure(project.ProjectID, "realtime_command", cmd.CommandID,
			err.Error(), "Vendor relay failed")
		return s.repo.Get(cmd.CommandID)
	}

	if err := s.repo.MarkSent(cmd.CommandID, response, latency); err != nil {
		return nil, err
	}
	return s.repo.Get(cmd.CommandID)
}

// GetCommand reads one command, scoped to the caller's project via the asset.
func (s *Service) GetCommand(projectID, commandID string) (*RealtimeCommand, error) {
	cmd, err := s.repo.Get(commandID)
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, apperrors.NewNotFoundResource("command", commandID)
	}
	owner, err := s.assets.Repo().Get(cmd.AssetID)
	if err != nil {
		return nil, err
	}
	if owner == nil || owner.ProjectID != projectID {
		return nil, apperrors.NewNotFoundResource("command", commandID)
	}
	return cmd, nil
}
