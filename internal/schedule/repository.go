package schedule

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openlux/lumen-hub/internal/audit"
)

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for schedules.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new schedule Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// InsertInput carries the fields for a new schedule row.
type InsertInput struct {
	AssetID         string
	Body            map[string]any
	Status          Status
	VendorProgramID *string
	IsSimulated     bool
	IdempotencyKey  *string
}

// InsertSuperseding marks the asset's active rows superseded and inserts the
// new row in one transaction, together with its audit entry. Keeping both
// sides in the transaction is what holds the one-active-schedule invariant
// against a crash between the two writes.
func (r *Repository) InsertSuperseding(input InsertInput, auditRepo *audit.Repository, auditInput audit.RecordInput) (*Schedule, error) {
	scheduleID := uuid.New().String()
	bodyJSON, err := json.Marshal(input.Body)
	if err != nil {
		return nil, err
	}

	tx, err := r.writer.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE schedules SET status = 'superseded' WHERE asset_id = ? AND status = 'active'
	`, input.AssetID)
	if err != nil {
		return nil, err
	}

	simulated := 0
	if input.IsSimulated {
		simulated = 1
	}
	_, err = tx.Exec(`
		INSERT INTO schedules
			(schedule_id, asset_id, body, provider, status, vendor_program_id, is_simulated, commission_attempts, idempotency_key, created_at)
		VALUES (?, ?, ?, 'vendor', ?, ?, ?, 0, ?, ?)
	`, scheduleID, input.AssetID, string(bodyJSON), string(input.Status), input.VendorProgramID, simulated, input.IdempotencyKey, nowISO())
	if err != nil {
		return nil, err
	}

	if auditInput.Details == nil {
		auditInput.Details = map[string]any{}
	}
	auditInput.Details["schedule_id"] = scheduleID
	if _, err := auditRepo.RecordTx(tx, auditInput); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.Get(scheduleID)
}

// Get retrieves a schedule by ID. Returns nil, nil if not found.
func (r *Repository) Get(scheduleID string) (*Schedule, error) {
	row := r.reader.QueryRow(selectSchedule+` WHERE schedule_id = ?`, scheduleID)
	return scanSchedule(row)
}

// FindByIdempotencyKey returns the schedule already written for an asset
// under a key, if any.
func (r *Repository) FindByIdempotencyKey(assetID, key string) (*Schedule, error) {
	row := r.reader.QueryRow(selectSchedule+`
		WHERE asset_id = ? AND idempotency_key = ?`, assetID, key)
	return scanSchedule(row)
}

// ActiveForAsset returns the asset's serving schedule, if any.
func (r *Repository) ActiveForAsset(assetID string) (*Schedule, error) {
	row := r.reader.QueryRow(selectSchedule+`
		WHERE asset_id = ? AND status = 'active'
		ORDER BY created_at DESC, schedule_id DESC
		LIMIT 1`, assetID)
	return scanSchedule(row)
}

// LatestProgramID walks the asset's schedule history for the most recent
// vendor program id. The active row normally carries it, but a failed or
// superseded row may be the only holder after a bad rollout.
func (r *Repository) LatestProgramID(assetID string) (string, error) {
	var programID sql.NullString
	err := r.reader.QueryRow(`
		SELECT vendor_program_id
		FROM schedules
		WHERE asset_id = ? AND vendor_program_id IS NOT NULL
		ORDER BY created_at DESC, schedule_id DESC
		LIMIT 1
	`, assetID).Scan(&programID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return programID.String, nil
}

// PendingEligible selects up to limit schedules due for a commissioning
// attempt: pending, not simulated, attempts not exhausted, and past the
// retry spacing. A non-empty projectID restricts the selection to that
// project; the cron sweep passes "" for the whole fleet. The LIMIT is the
// concurrency bound for the sweep.
func (r *Repository) PendingEligible(projectID string, limit int, now time.Time) ([]PendingJob, error) {
	cutoff := now.Add(-MinRetrySpacing).UTC().Format(time.RFC3339)

	conditions := []string{
		"s.status = 'pending_commission'",
		"s.is_simulated = 0",
		"s.commission_attempts < ?",
		"(s.last_commission_attempt IS NULL OR s.last_commission_attempt < ?)",
	}
	args := []any{MaxCommissionAttempts, cutoff}
	if projectID != "" {
		conditions = append(conditions, "a.project_id = ?")
		args = append(args, projectID)
	}
	args = append(args, limit)

	rows, err := r.reader.Query(`
		SELECT s.schedule_id, s.asset_id, a.external_id, a.project_id, s.commission_attempts, s.is_simulated
		FROM schedules s
		JOIN assets a ON a.asset_id = s.asset_id
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY s.created_at
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []PendingJob
	for rows.Next() {
		var job PendingJob
		var simulated int
		if err := rows.Scan(&job.ScheduleID, &job.AssetID, &job.AssetExternalID, &job.ProjectID, &job.CommissionAttempts, &simulated); err != nil {
			return nil, err
		}
		job.IsSimulated = simulated == 1
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// IncrementAttempt consumes one commissioning attempt before the vendor call
// and returns the new attempt count. A crash mid-call still counts the
// attempt, bounding retries over maximizing success.
func (r *Repository) IncrementAttempt(scheduleID string, at time.Time) (int, error) {
	_, err := r.writer.Exec(`
		UPDATE schedules
		SET commission_attempts = commission_attempts + 1, last_commission_attempt = ?
		WHERE schedule_id = ?
	`, at.UTC().Format(time.RFC3339), scheduleID)
	if err != nil {
		return 0, err
	}

	var attempts int
	err = r.writer.QueryRow(`SELECT commission_attempts FROM schedules WHERE schedule_id = ?`, scheduleID).Scan(&attempts)
	return attempts, err
}

// MarkActive promotes a commissioned schedule to serving.
func (r *Repository) MarkActive(scheduleID string) error {
	_, err := r.writer.Exec(`
		UPDATE schedules SET status = 'active', commission_error = NULL WHERE schedule_id = ?
	`, scheduleID)
	return err
}

// RecordCommissionError stores the latest attempt's failure for a schedule
// that still has attempts left.
func (r *Repository) RecordCommissionError(scheduleID, errMsg string) error {
	_, err := r.writer.Exec(`
		UPDATE schedules SET commission_error = ? WHERE schedule_id = ?
	`, errMsg, scheduleID)
	return err
}

// MarkFailed transitions an exhausted schedule to its terminal state.
func (r *Repository) MarkFailed(scheduleID, errMsg string) error {
	_, err := r.writer.Exec(`
		UPDATE schedules SET status = 'failed', commission_error = ? WHERE schedule_id = ?
	`, errMsg, scheduleID)
	return err
}

const selectSchedule = `
	SELECT schedule_id, asset_id, body, provider, status, vendor_program_id, is_simulated,
	       commission_attempts, last_commission_attempt, commission_error, idempotency_key, created_at
	FROM schedules`

func scanSchedule(row *sql.Row) (*Schedule, error) {
	var s Schedule
	var bodyJSON, status, created string
	var programID, commissionErr, idemKey, lastAttempt sql.NullString
	var simulated int

	err := row.Scan(&s.ScheduleID, &s.AssetID, &bodyJSON, &s.Provider, &status, &programID,
		&simulated, &s.CommissionAttempts, &lastAttempt, &commissionErr, &idemKey, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(bodyJSON), &s.Body); err != nil {
		return nil, err
	}
	s.Status = Status(status)
	s.IsSimulated = simulated == 1
	s.CreatedAt = parseTime(created)
	if programID.Valid {
		s.VendorProgramID = &programID.String
	}
	if lastAttempt.Valid {
		t := parseTime(lastAttempt.String)
		s.LastCommissionAttempt = &t
	}
	if commissionErr.Valid {
		s.CommissionError = &commissionErr.String
	}
	if idemKey.Valid {
		s.IdempotencyKey = &idemKey.String
	}
	return &s, nil
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
