package sensor

import "time"

// SensorType describes a sensor hardware model and its capabilities.
type SensorType struct {
	SensorTypeID string   `json:"sensor_type_id"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	FirmwareVer  *string  `json:"firmware_ver,omitempty"`
	Notes        *string  `json:"notes,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// Sensor is a project-scoped data source linked to assets.
type Sensor struct {
	SensorID     string         `json:"sensor_id"`
	ProjectID    string         `json:"project_id"`
	ExternalID   string         `json:"external_id"`
	SensorTypeID string         `json:"sensor_type_id"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Link ties a sensor to an asset, optionally discriminated by road section.
type Link struct {
	LinkID    string    `json:"link_id"`
	SensorID  string    `json:"sensor_id"`
	AssetID   string    `json:"asset_id"`
	Section   string    `json:"section"`
	CreatedAt time.Time `json:"created_at"`
}

// Details is the read view of a sensor with its type and linked assets.
type Details struct {
	ExternalID       string         `json:"external_id"`
	SensorType       string         `json:"sensor_type"`
	AssetExternalIDs []string       `json:"asset_external_ids"`
	Capabilities     []string       `json:"capabilities"`
	Metadata         map[string]any `json:"metadata"`
}

// IngestInput is one submitted observation. Each measurement field present
// produces one reading row of its type.
type IngestInput struct {
	SensorExternalID   string    `json:"sensor_external_id"`
	ObservedAt         time.Time `json:"observed_at"`
	VehicleCount       *int      `json:"vehicle_count,omitempty"`
	PedestrianCount    *int      `json:"pedestrian_count,omitempty"`
	AvgVehicleSpeedKmh *float64  `json:"avg_vehicle_speed_kmh,omitempty"`
	P85VehicleSpeedKmh *float64  `json:"p85_vehicle_speed_kmh,omitempty"`
}

// IngestResult reports what one ingest call persisted. Dedup true means the
// observation was already stored and nothing was written.
type IngestResult struct {
	ReadingIDs map[string]string `json:"reading_ids"`
	Dedup      bool              `json:"dedup"`
}

// CreateSensorInput provisions a sensor.
type CreateSensorInput struct {
	ProjectID    string         `json:"project_id"`
	ExternalID   string         `json:"external_id"`
	SensorTypeID string         `json:"sensor_type_id"`
	Metadata     map[string]any `json:"metadata"`
}

// CreateTypeInput provisions a sensor type.
type CreateTypeInput struct {
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	FirmwareVer  *string  `json:"firmware_ver"`
	Notes        *string  `json:"notes"`
	Capabilities []string `json:"capabilities"`
}
