package audit

import (
	"fmt"
	"log"
	"time"
)

const (
	// DefaultQueryLimit bounds ledger reads unless the caller asks for less.
	DefaultQueryLimit = 100
	// MaxQueryLimit is the hard ceiling for one ledger page.
	MaxQueryLimit = 1000
)

// KillSwitchState is the derived state of a project's kill switch.
type KillSwitchState struct {
	Enabled   bool      `json:"enabled"`
	Reason    *string   `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy string    `json:"changed_by"`
}

// Service provides ledger reads/writes and the derived kill-switch view.
type Service struct {
	logger *log.Logger
	repo   *Repository
}

// NewService creates a new audit service.
func NewService(dbPair DBPair, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{logger: logger, repo: NewRepository(dbPair)}
}

// Repo exposes the underlying repository for services that need to append
// entries inside their own transactions.
func (s *Service) Repo() *Repository { return s.repo }

// Record appends a ledger entry.
func (s *Service) Record(input RecordInput) (*Entry, error) {
	entry, err := s.repo.Record(input)
	if err != nil {
		return nil, fmt.Errorf("record audit entry: %w", err)
	}
	return entry, nil
}

// Query retrieves project entries with a clamped limit.
func (s *Service) Query(projectID string, filters QueryFilters) ([]Entry, error) {
	if filters.Limit == 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}
	return s.repo.Query(projectID, filters)
}

// KillSwitch derives the current kill-switch state from the latest toggle
// entry. No toggle yet means disabled. There is deliberately no dedicated
// state table; the ledger is the source of truth.
func (s *Service) KillSwitch(projectID string) (KillSwitchState, error) {
	latest, err := s.repo.LatestByAction(projectID, ActionKillSwitchToggle)
	if err != nil {
		return KillSwitchState{}, fmt.Errorf("read kill switch state: %w", err)
	}
	if latest == nil {
		return KillSwitchState{
			Enabled:   false,
			ChangedAt: time.Now().UTC(),
			ChangedBy: ActorSystem,
		}, nil
	}

	state := KillSwitchState{
		ChangedAt: latest.Timestamp,
		ChangedBy: latest.Actor,
	}
	if enabled, ok := latest.Details["enabled"].(bool); ok {
		state.Enabled = enabled
	}
	if reason, ok := latest.Details["reason"].(string); ok && reason != "" {
		state.Reason = &reason
	}
	return state, nil
}

// ToggleKillSwitch records a toggle entry; the entry itself is the state.
func (s *Service) ToggleKillSwitch(projectID string, enabled bool, reason *string, apiClientName string) (*Entry, error) {
	details := map[string]any{
		"enabled":    enabled,
		"api_client": apiClientName,
	}
	if reason != nil {
		details["reason"] = *reason
	}
	return s.Record(RecordInput{
		Actor:     ActorAPI,
		ProjectID: &projectID,
		Action:    ActionKillSwitchToggle,
		Entity:    "system",
		EntityID:  projectID,
		Details:   details,
	})
}

// RecordFailure appends an error event carrying both the technical detail and
// the user-facing message that was returned for the same failure.
func (s *Service) RecordFailure(projectID, entity, entityID string, technical, userFacing string) {
	_, err := s.Record(RecordInput{
		Actor:     ActorSystem,
		ProjectID: &projectID,
		Action:    "error",
		Entity:    entity,
		EntityID:  entityID,
		Details: map[string]any{
			"technical_error": technical,
			"user_message":    userFacing,
		},
	})
	if err != nil {
		s.logger.Printf("audit failure record dropped: %v", err)
	}
}
