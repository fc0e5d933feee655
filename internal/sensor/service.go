package sensor

import (
	"crypto/sha256"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/audit"
	"github.com/openlux/lumen-hub/internal/db"
)

// Service provides sensor ingestion and metadata operations.
type Service struct {
	logger  *log.Logger
	repo    *Repository
	auditor *audit.Service
}

// NewService creates a new sensor service.
func NewService(dbPair DBPair, auditor *audit.Service, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{logger: logger, repo: NewRepository(dbPair), auditor: auditor}
}

// Repo exposes the repository for provisioning routes.
func (s *Service) Repo() *Repository { return s.repo }

// readingHash builds the content hash stored with each reading: sensor,
// observation instant and the payload fields in sorted order. The per-table
// (sensor_id, timestamp) unique constraint is the dedup backstop; the hash
// records what was deduplicated.
func readingHash(sensorID string, observedAt time.Time, data map[string]any) []byte {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, data[k]))
	}

	sum := sha256.Sum256([]byte(sensorID + ":" + observedAt.UTC().Format(time.RFC3339) + ":" + strings.Join(pairs, ",")))
	return sum[:]
}

// Ingest persists one observation. Each present measurement field writes one
// reading row of its type inside a single transaction; a duplicate
// (sensor, timestamp) on any of them rolls back the whole call and reports
// dedup instead of failing. Replays therefore never partially apply.
func (s *Service) Ingest(projectID, apiClientName string, idempotencyKey *string, input IngestInput) (*IngestResult, error) {
	if input.SensorExternalID == "" {
		return nil, apperrors.NewValidationError("sensor_external_id is required", nil)
	}
	if input.ObservedAt.IsZero() {
		return nil, apperrors.NewValidationError("observed_at is required", nil)
	}
	if input.VehicleCount == nil && input.PedestrianCount == nil && input.AvgVehicleSpeedKmh == nil {
		return nil, apperrors.NewValidationError("at least one measurement field is required", nil)
	}

	sensor, err := s.repo.GetByExternalID(projectID, input.SensorExternalID)
	if err != nil {
		return nil, fmt.Errorf("resolve sensor: %w", err)
	}
	if sensor == nil {
		return nil, apperrors.NewAppError(apperrors.ErrorCodeSensorNotFound,
			"sensor not found: "+input.SensorExternalID, http.StatusNotFound,
			map[string]any{"external_id": input.SensorExternalID})
	}

	observedAt := input.ObservedAt.UTC().Format(time.RFC3339)
	readingIDs := map[string]string{}

	tx, err := s.repo.Writer().Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if input.VehicleCount != nil {
		data := map[string]any{"vehicle_count": *input.VehicleCount}
		if input.P85VehicleSpeedKmh != nil {
			data["p85_speed_kmh"] = *input.P85VehicleSpeedKmh
		}
		result, err := tx.Exec(`
			INSERT INTO vehicle_readings (sensor_id, timestamp, veh_count, hash_unique, source)
			VALUES (?, ?, ?, ?, ?)
		`, sensor.SensorID, observedAt, *input.VehicleCount, readingHash(sensor.SensorID, input.ObservedAt, data), apiClientName)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return &IngestResult{ReadingIDs: map[string]string{}, Dedup: true}, nil
			}
			return nil, fmt.Errorf("insert vehicle reading: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, err
		}
		readingIDs["vehicle"] = fmt.Sprintf("%d", id)
	}

	if input.PedestrianCount != nil {
		data := map[string]any{"pedestrian_count": *input.PedestrianCount}
		result, err := tx.Exec(`
			INSERT INTO ped_readings (sensor_id, timestamp, ped_count, hash_unique, source)
			VALUES (?, ?, ?, ?, ?)
		`, sensor.SensorID, observedAt, *input.PedestrianCount, readingHash(sensor.SensorID, input.ObservedAt, data), apiClientName)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return &IngestResult{ReadingIDs: map[string]string{}, Dedup: true}, nil
			}
			return nil, fmt.Errorf("insert pedestrian reading: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, err
		}
		readingIDs["pedestrian"] = fmt.Sprintf("%d", id)
	}

	if input.AvgVehicleSpeedKmh != nil {
		data := map[string]any{"avg_speed_kmh": *input.AvgVehicleSpeedKmh}
		if input.P85VehicleSpeedKmh != nil {
			data["p85_speed_kmh"] = *input.P85VehicleSpeedKmh
		}
		result, err := tx.Exec(`
			INSERT INTO speed_readings (sensor_id, timestamp, avg_speed_kmh, p85_speed_kmh, hash_unique, source)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sensor.SensorID, observedAt, *input.AvgVehicleSpeedKmh, input.P85VehicleSpeedKmh, readingHash(sensor.SensorID, input.ObservedAt, data), apiClientName)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return &IngestResult{ReadingIDs: map[string]string{}, Dedup: true}, nil
			}
			return nil, fmt.Errorf("insert speed reading: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, err
		}
		readingIDs["speed"] = fmt.Sprintf("%d", id)
	}

	types := make([]string, 0, len(readingIDs))
	for t := range readingIDs {
		types = append(types, t)
	}
	sort.Strings(types)

	details := map[string]any{
		"sensor_external_id": input.SensorExternalID,
		"api_client":         apiClientName,
		"reading_types":      types,
		"timestamp":          observedAt,
	}
	if idempotencyKey != nil {
		details["idempotency_key"] = *idempotencyKey
	}
	_, err = s.auditor.Repo().RecordTx(tx, audit.RecordInput{
		Actor:     audit.ActorAPI,
		ProjectID: &projectID,
		Action:    audit.ActionSensorIngest,
		Entity:    "sensor",
		EntityID:  sensor.SensorID,
		Details:   details,
	})
	if err != nil {
		return nil, fmt.Errorf("record ingest audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &IngestResult{ReadingIDs: readingIDs, Dedup: false}, nil
}

// Details returns a sensor with its type description and linked assets.
func (s *Service) Details(projectID, externalID string) (*Details, error) {
	sensor, err := s.repo.GetByExternalID(projectID, externalID)
	if err != nil {
		return nil, fmt.Errorf("resolve sensor: %w", err)
	}
	if sensor == nil {
		return nil, apperrors.NewAppError(apperrors.ErrorCodeSensorNotFound,
			"sensor not found: "+externalID, http.StatusNotFound,
			map[string]any{"external_id": externalID})
	}

	sensorType, err := s.repo.GetType(sensor.SensorTypeID)
	if err != nil {
		return nil, fmt.Errorf("load sensor type: %w", err)
	}
	if sensorType == nil {
		return nil, apperrors.NewInternalError("sensor type missing")
	}

	assetIDs, err := s.repo.LinkedAssetExternalIDs(sensor.SensorID)
	if err != nil {
		return nil, fmt.Errorf("load linked assets: %w", err)
	}
	if assetIDs == nil {
		assetIDs = []string{}
	}

	return &Details{
		ExternalID:       sensor.ExternalID,
		SensorType:       sensorType.Manufacturer + " " + sensorType.Model,
		AssetExternalIDs: assetIDs,
		Capabilities:     sensorType.Capabilities,
		Metadata:         sensor.Metadata,
	}, nil
}

// CreateSensor provisions a sensor, checking the type exists.
func (s *Service) CreateSensor(input CreateSensorInput) (*Sensor, error) {
	if input.ProjectID == "" || input.ExternalID == "" || input.SensorTypeID == "" {
		return nil, apperrors.NewValidationError("project_id, external_id and sensor_type_id are required", nil)
	}
	sensorType, err := s.repo.GetType(input.SensorTypeID)
	if err != nil {
		return nil, err
	}
	if sensorType == nil {
		return nil, apperrors.NewNotFoundResource("sensor_type", input.SensorTypeID)
	}

	sensor, err := s.repo.CreateSensor(input)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperrors.NewConflictError(
				"sensor already exists: "+input.ExternalID,
				map[string]any{"external_id": input.ExternalID})
		}
		return nil, err
	}
	return sensor, nil
}

// CreateType provisions a sensor type.
func (s *Service) CreateType(input CreateTypeInput) (*SensorType, error) {
	if input.Manufacturer == "" || input.Model == "" {
		return nil, apperrors.NewValidationError("manufacturer and model are required", nil)
	}
	sensorType, err := s.repo.CreateType(input)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperrors.NewConflictError(
				"sensor type already exists: "+input.Manufacturer+" "+input.Model, nil)
		}
		return nil, err
	}
	return sensorType, nil
}

// LinkAsset ties a sensor to an asset for a road section.
func (s *Service) LinkAsset(sensorID, assetID, section string) (*Link, error) {
	link, err := s.repo.LinkAsset(sensorID, assetID, section)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperrors.NewConflictError("sensor is already linked to this asset and section", nil)
		}
		return nil, err
	}
	return link, nil
}
