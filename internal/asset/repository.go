package asset

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

// Repository handles database operations for assets.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new asset Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// Create provisions an asset.
func (r *Repository) Create(input CreateInput) (*Asset, error) {
	assetID := uuid.New().String()
	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.Exec(`
		INSERT INTO assets (asset_id, project_id, external_id, name, road_class, control_mode, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, assetID, input.ProjectID, input.ExternalID, input.Name, input.RoadClass, string(input.ControlMode), string(metadataJSON), nowISO())
	if err != nil {
		return nil, err
	}

	return r.Get(assetID)
}

// Get retrieves an asset by ID. Returns nil, nil if not found.
func (r *Repository) Get(assetID string) (*Asset, error) {
	row := r.reader.QueryRow(`
		SELECT asset_id, project_id, external_id, name, road_class, control_mode, metadata, created_at
		FROM assets
		WHERE asset_id = ?
	`, assetID)
	return scanAsset(row)
}

// GetByExternalID resolves the asset clients address in the URL path.
// Returns nil, nil if not found.
func (r *Repository) GetByExternalID(projectID, externalID string) (*Asset, error) {
	row := r.reader.QueryRow(`
		SELECT asset_id, project_id, external_id, name, road_class, control_mode, metadata, created_at
		FROM assets
		WHERE project_id = ? AND external_id = ?
	`, projectID, externalID)
	return scanAsset(row)
}

// ListForProject returns the project's assets ordered by external ID.
func (r *Repository) ListForProject(projectID string, limit, offset int) ([]Asset, int, error) {
	var total int
	if err := r.reader.QueryRow(`SELECT COUNT(*) FROM assets WHERE project_id = ?`, projectID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.reader.Query(`
		SELECT asset_id, project_id, external_id, name, road_class, control_mode, metadata, created_at
		FROM assets
		WHERE project_id = ?
		ORDER BY external_id
		LIMIT ? OFFSET ?
	`, projectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		asset, err := scanAssetRows(rows)
		if err != nil {
			return nil, 0, err
		}
		assets = append(assets, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return assets, total, nil
}

// SetControlMode flips an asset between optimise and passthrough.
func (r *Repository) SetControlMode(assetID string, mode ControlMode) error {
	result, err := r.writer.Exec(`UPDATE assets SET control_mode = ? WHERE asset_id = ?`, string(mode), assetID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ActiveSchedule reads the asset's current serving schedule, if any. This is
// a read-only view over the schedules table for state endpoints; schedule
// writes live in the schedule package.
func (r *Repository) ActiveSchedule(assetID string) (*ScheduleSummary, error) {
	row := r.reader.QueryRow(`
		SELECT schedule_id, status, body, is_simulated, created_at
		FROM schedules
		WHERE asset_id = ? AND status = 'active'
		ORDER BY created_at DESC, schedule_id DESC
		LIMIT 1
	`, assetID)

	var summary ScheduleSummary
	var bodyJSON, created string
	var simulated int
	err := row.Scan(&summary.ScheduleID, &summary.Status, &bodyJSON, &simulated, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(bodyJSON), &summary.Body); err != nil {
		return nil, err
	}
	summary.IsSimulated = simulated == 1
	summary.CreatedAt = parseTime(created)
	return &summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row *sql.Row) (*Asset, error) {
	asset, err := scanAssetRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return asset, nil
}

func scanAssetRows(row rowScanner) (*Asset, error) {
	var asset Asset
	var name, roadClass sql.NullString
	var mode, metadataJSON, created string
	err := row.Scan(&asset.AssetID, &asset.ProjectID, &asset.ExternalID, &name, &roadClass, &mode, &metadataJSON, &created)
	if err != nil {
		return nil, err
	}
	if name.Valid {
		asset.Name = &name.String
	}
	if roadClass.Valid {
		asset.RoadClass = &roadClass.String
	}
	asset.ControlMode = ControlMode(mode)
	if err := json.Unmarshal([]byte(metadataJSON), &asset.Metadata); err != nil {
		return nil, err
	}
	asset.CreatedAt = parseTime(created)
	return &asset, nil
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
