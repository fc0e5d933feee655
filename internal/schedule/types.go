package schedule

import "time"

// Status is the schedule state machine. active rows serve the asset; at most
// one per asset. pending_commission rows are waiting on the commissioning
// workflow; failed rows exhausted their attempts.
type Status string

const (
	StatusActive            Status = "active"
	StatusSuperseded        Status = "superseded"
	StatusPendingCommission Status = "pending_commission"
	StatusFailed            Status = "failed"
)

// MaxCommissionAttempts bounds commissioning retries per schedule.
const MaxCommissionAttempts = 3

// MinRetrySpacing is how long a failed commissioning attempt blocks the next.
const MinRetrySpacing = 30 * time.Second

// Step is one client-facing schedule step.
type Step struct {
	Time string `json:"time"`
	Dim  int    `json:"dim"`
}

// Schedule is one persisted schedule version for an asset.
type Schedule struct {
	ScheduleID            string         `json:"schedule_id"`
	AssetID               string         `json:"asset_id"`
	Body                  map[string]any `json:"body"`
	Provider              string         `json:"provider"`
	Status                Status         `json:"status"`
	VendorProgramID       *string        `json:"vendor_program_id,omitempty"`
	IsSimulated           bool           `json:"is_simulated"`
	CommissionAttempts    int            `json:"commission_attempts"`
	LastCommissionAttempt *time.Time     `json:"last_commission_attempt,omitempty"`
	CommissionError       *string        `json:"commission_error,omitempty"`
	IdempotencyKey        *string        `json:"idempotency_key,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
}

// UpdateRequest is the client submission for a schedule update.
type UpdateRequest struct {
	AssetExternalID string     `json:"asset_external_id"`
	Steps           []Step     `json:"steps"`
	RequestedAt     *time.Time `json:"requested_at,omitempty"`
	Note            *string    `json:"note,omitempty"`
}

// Result is the relay outcome returned to the caller.
type Result struct {
	Schedule *Schedule `json:"schedule"`
	Replayed bool      `json:"replayed"`
}

// PendingJob is one eligible commissioning unit: the schedule plus the asset
// and project context the worker needs.
type PendingJob struct {
	ScheduleID         string
	AssetID            string
	AssetExternalID    string
	ProjectID          string
	CommissionAttempts int
	IsSimulated        bool
}

// ProcessReport summarizes one commissioning sweep.
type ProcessReport struct {
	Selected  int      `json:"selected"`
	Succeeded int      `json:"succeeded"`
	Retried   int      `json:"retried"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}
