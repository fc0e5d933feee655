package audit

import "time"

// Action identifies what a ledger entry records.
type Action string

const (
	ActionRealtimeCommand    Action = "realtime_command"
	ActionScheduleCommand    Action = "schedule_command"
	ActionScheduleCommission Action = "schedule_commission"
	ActionControlModeChange  Action = "control_mode_change"
	ActionProjectModeChange  Action = "project_mode_change"
	ActionPolicyUpdate       Action = "policy_update"
	ActionKillSwitchToggle   Action = "kill_switch_toggle"
	ActionSensorIngest       Action = "sensor_ingest"
	ActionCredentialStore    Action = "credential_store"
	ActionAPIKeyIssued       Action = "api_key_issued"
	ActionAPIKeyRevoked      Action = "api_key_revoked"
)

// Actor identifies who performed the recorded action.
const (
	ActorAPI      = "api"
	ActorSystem   = "system"
	ActorOperator = "operator"
)

// Entry is one immutable row of the append-only ledger.
type Entry struct {
	AuditLogID int64          `json:"audit_log_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Actor      string         `json:"actor"`
	ProjectID  *string        `json:"project_id,omitempty"`
	Action     Action         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Details    map[string]any `json:"details"`
}

// RecordInput contains the fields for appending a ledger entry.
type RecordInput struct {
	Actor     string
	ProjectID *string
	Action    Action
	Entity    string
	EntityID  string
	Details   map[string]any
}

// QueryFilters narrows ledger reads. Zero values mean "no filter".
type QueryFilters struct {
	Entity string
	Action Action
	Limit  int
	Offset int
}
