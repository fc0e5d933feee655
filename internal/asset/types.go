package asset

import "time"

// ControlMode selects whether command relay enforces policy guardrails.
type ControlMode string

const (
	// ModeOptimise assets are governed by the project policy's dim bounds.
	ModeOptimise ControlMode = "optimise"
	// ModePassthrough assets relay commands with only the basic bounds check.
	ModePassthrough ControlMode = "passthrough"
)

// Valid reports whether the mode is one of the two known values.
func (m ControlMode) Valid() bool {
	return m == ModeOptimise || m == ModePassthrough
}

// Asset is a project-scoped streetlight device. ExternalID is the vendor's
// device identifier and the ID clients address it by.
type Asset struct {
	AssetID     string         `json:"asset_id"`
	ProjectID   string         `json:"project_id"`
	ExternalID  string         `json:"external_id"`
	Name        *string        `json:"name,omitempty"`
	RoadClass   *string        `json:"road_class,omitempty"`
	ControlMode ControlMode    `json:"control_mode"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// DisplayName returns the asset's name, falling back to its external ID.
func (a *Asset) DisplayName() string {
	if a.Name != nil && *a.Name != "" {
		return *a.Name
	}
	return a.ExternalID
}

// CreateInput is the provisioning request for an asset.
type CreateInput struct {
	ProjectID   string         `json:"project_id"`
	ExternalID  string         `json:"external_id"`
	Name        *string        `json:"name"`
	RoadClass   *string        `json:"road_class"`
	ControlMode ControlMode    `json:"control_mode"`
	Metadata    map[string]any `json:"metadata"`
}

// ScheduleSummary is the read-side view of a schedule row used by asset state
// endpoints.
type ScheduleSummary struct {
	ScheduleID  string         `json:"schedule_id"`
	Status      string         `json:"status"`
	Body        map[string]any `json:"body"`
	IsSimulated bool           `json:"is_simulated"`
	CreatedAt   time.Time      `json:"created_at"`
}
