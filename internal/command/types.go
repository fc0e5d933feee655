package command

import "time"

// Status is the realtime command state machine. pending is the persisted
// pre-vendor state; the other three are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusSimulated Status = "simulated"
)

// RealtimeCommand is one persisted dimming command.
type RealtimeCommand struct {
	CommandID            string         `json:"command_id"`
	AssetID              string         `json:"asset_id"`
	RequestedAt          time.Time      `json:"requested_at"`
	DimPercent           int            `json:"dim_percent"`
	SourceMode           string         `json:"source_mode"`
	Vendor               *string        `json:"vendor,omitempty"`
	Status               Status         `json:"status"`
	Response             map[string]any `json:"response,omitempty"`
	Error                *string        `json:"error,omitempty"`
	LatencyMs            *int64         `json:"latency_ms,omitempty"`
	RequestedByAPIClient *string        `json:"requested_by_api_client,omitempty"`
	IdempotencyKey       *string        `json:"idempotency_key,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

// RealtimeRequest is the client submission for a dimming command.
type RealtimeRequest struct {
	AssetExternalID string     `json:"asset_external_id"`
	DimPercent      int        `json:"dim_percent"`
	RequestedAt     *time.Time `json:"requested_at,omitempty"`
	DurationSec     *int       `json:"duration_sec,omitempty"`
	Note            *string    `json:"note,omitempty"`
}

// Result is the relay outcome returned to the caller. Replayed is true when
// an idempotency key matched an earlier submission.
type Result struct {
	Command  *RealtimeCommand `json:"command"`
	Replayed bool             `json:"replayed"`
}
