package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for the audit ledger.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new audit Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// Record appends a new ledger entry. Entries are immutable once written.
func (r *Repository) Record(input RecordInput) (*Entry, error) {
	return r.record(r.writer, input)
}

// RecordTx appends a ledger entry inside an existing transaction so the entry
// commits or rolls back with the mutation it describes.
func (r *Repository) RecordTx(tx *sql.Tx, input RecordInput) (*Entry, error) {
	return r.record(tx, input)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (r *Repository) record(db execer, input RecordInput) (*Entry, error) {
	details := input.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result, err := db.Exec(`
		INSERT INTO audit_log (timestamp, actor, project_id, action, entity, entity_id, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, now.Format(time.RFC3339), input.Actor, input.ProjectID, string(input.Action), input.Entity, input.EntityID, string(detailsJSON))
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &Entry{
		AuditLogID: id,
		Timestamp:  now,
		Actor:      input.Actor,
		ProjectID:  input.ProjectID,
		Action:     input.Action,
		Entity:     input.Entity,
		EntityID:   input.EntityID,
		Details:    details,
	}, nil
}

// Query retrieves project entries matching filters, newest first.
func (r *Repository) Query(projectID string, filters QueryFilters) ([]Entry, error) {
	conditions := []string{"project_id = ?"}
	args := []any{projectID}

	if filters.Entity != "" {
		conditions = append(conditions, "entity = ?")
		args = append(args, filters.Entity)
	}
	if filters.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(filters.Action))
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT audit_log_id, timestamp, actor, project_id, action, entity, entity_id, details
		FROM audit_log
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY timestamp DESC, audit_log_id DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, filters.Offset)

	rows, err := r.reader.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// LatestByAction returns the most recent entry for an action within a
// project, or nil if none exists. Kill-switch state is derived from this.
func (r *Repository) LatestByAction(projectID string, action Action) (*Entry, error) {
	row := r.reader.QueryRow(`
		SELECT audit_log_id, timestamp, actor, project_id, action, entity, entity_id, details
		FROM audit_log
		WHERE project_id = ? AND action = ?
		ORDER BY timestamp DESC, audit_log_id DESC
		LIMIT 1
	`, projectID, string(action))

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var timestamp string
	var action string
	var projectID sql.NullString
	var detailsJSON string

	err := row.Scan(
		&entry.AuditLogID,
		&timestamp,
		&entry.Actor,
		&projectID,
		&action,
		&entry.Entity,
		&entry.EntityID,
		&detailsJSON,
	)
	if err != nil {
		return nil, err
	}

	entry.Timestamp, err = time.Parse(time.RFC3339, timestamp)
	if err != nil {
		entry.Timestamp, _ = time.Parse("2006-01-02 15:04:05", timestamp)
	}
	entry.Action = Action(action)
	if projectID.Valid {
		entry.ProjectID = &projectID.String
	}
	if err := json.Unmarshal([]byte(detailsJSON), &entry.Details); err != nil {
		return nil, err
	}

	return &entry, nil
}
