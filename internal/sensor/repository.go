package sensor

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for sensors, types, links and
// readings.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new sensor Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// Writer exposes the write handle for the ingest transaction.
func (r *Repository) Writer() *sql.DB { return r.writer }

// CreateType provisions a sensor type.
func (r *Repository) CreateType(input CreateTypeInput) (*SensorType, error) {
	typeID := uuid.New().String()
	capabilities := input.Capabilities
	if capabilities == nil {
		capabilities = []string{}
	}
	capsJSON, err := json.Marshal(capabilities)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.Exec(`
		INSERT INTO sensor_types (sensor_type_id, manufacturer, model, firmware_ver, notes, capabilities)
		VALUES (?, ?, ?, ?, ?, ?)
	`, typeID, input.Manufacturer, input.Model, input.FirmwareVer, input.Notes, string(capsJSON))
	if err != nil {
		return nil, err
	}

	return r.GetType(typeID)
}

// GetType retrieves a sensor type by ID. Returns nil, nil if not found.
func (r *Repository) GetType(typeID string) (*SensorType, error) {
	row := r.reader.QueryRow(`
		SELECT sensor_type_id, manufacturer, model, firmware_ver, notes, capabilities
		FROM sensor_types
		WHERE sensor_type_id = ?
	`, typeID)

	var st SensorType
	var firmware, notes sql.NullString
	var capsJSON string
	err := row.Scan(&st.SensorTypeID, &st.Manufacturer, &st.Model, &firmware, &notes, &capsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if firmware.Valid {
		st.FirmwareVer = &firmware.String
	}
	if notes.Valid {
		st.Notes = &notes.String
	}
	if err := json.Unmarshal([]byte(capsJSON), &st.Capabilities); err != nil {
		return nil, err
	}
	return &st, nil
}

// CreateSensor provisions a sensor.
func (r *Repository) CreateSensor(input CreateSensorInput) (*Sensor, error) {
	sensorID := uuid.New().String()
	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.Exec(`
		INSERT INTO sensors (sensor_id, project_id, external_id, sensor_type_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sensorID, input.ProjectID, input.ExternalID, input.SensorTypeID, string(metadataJSON), nowISO())
	if err != nil {
		return nil, err
	}

	return r.GetSensor(sensorID)
}

// GetSensor retrieves a sensor by ID. Returns nil, nil if not found.
func (r *Repository) GetSensor(sensorID string) (*Sensor, error) {
	row := r.reader.QueryRow(`
		SELECT sensor_id, project_id, external_id, sensor_type_id, metadata, created_at
		FROM sensors
		WHERE sensor_id = ?
	`, sensorID)
	return scanSensor(row)
}

// GetByExternalID resolves a project's sensor. Returns nil, nil if not found.
func (r *Repository) GetByExternalID(projectID, externalID string) (*Sensor, error) {
	row := r.reader.QueryRow(`
		SELECT sensor_id, project_id, external_id, sensor_type_id, metadata, created_at
		FROM sensors
		WHERE project_id = ? AND external_id = ?
	`, projectID, externalID)
	return scanSensor(row)
}

// LinkAsset ties a sensor to an asset.
func (r *Repository) LinkAsset(sensorID, assetID, section string) (*Link, error) {
	linkID := uuid.New().String()
	now := nowISO()

	_, err := r.writer.Exec(`
		INSERT INTO sensor_asset_links (link_id, sensor_id, asset_id, section, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, linkID, sensorID, assetID, section, now)
	if err != nil {
		return nil, err
	}

	return &Link{LinkID: linkID, SensorID: sensorID, AssetID: assetID, Section: section, CreatedAt: parseTime(now)}, nil
}

// LinkedAssetExternalIDs lists the external IDs of assets linked to a sensor.
func (r *Repository) LinkedAssetExternalIDs(sensorID string) ([]string, error) {
	rows, err := r.reader.Query(`
		SELECT a.external_id
		FROM sensor_asset_links l
		JOIN assets a ON a.asset_id = l.asset_id
		WHERE l.sensor_id = ?
		ORDER BY a.external_id
	`, sensorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSensor(row *sql.Row) (*Sensor, error) {
	var sensor Sensor
	var metadataJSON, created string
	err := row.Scan(&sensor.SensorID, &sensor.ProjectID, &sensor.ExternalID, &sensor.SensorTypeID, &metadataJSON, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadataJSON), &sensor.Metadata); err != nil {
		return nil, err
	}
	sensor.CreatedAt = parseTime(created)
	return &sensor, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t, _ = time.Parse("2006-01-02 15:04:05", value)
	}
	return t
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
