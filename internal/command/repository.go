package command

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openlux/lumen-hub/internal/audit"
)

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for realtime commands.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new command Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// InsertInput carries the fields for the pending row.
type InsertInput struct {
	AssetID        string
	RequestedAt    time.Time
	DimPercent     int
	SourceMode     string
	Vendor         string
	APIClientID    string
	IdempotencyKey *string
}

// InsertPending writes the pending command row and its audit entry in one
// transaction. The command is durable before any vendor traffic; a crash
// mid-relay leaves a pending row rather than a lost command.
func (r *Repository) InsertPending(input InsertInput, auditRepo *audit.Repository, auditInput audit.RecordInput) (*RealtimeCommand, error) {
	commandID := uuid.New().String()

	tx, err := r.writer.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO realtime_commands
			(command_id, asset_id, requested_at, dim_percent, source_mode, vendor, status, requested_by_api_client, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?)
	`, commandID, input.AssetID, input.RequestedAt.UTC().Format(time.RFC3339), input.DimPercent,
		input.SourceMode, input.Vendor, input.APIClientID, input.IdempotencyKey, nowISO())
	if err != nil {
		return nil, err
	}

	auditInput.EntityID = input.AssetID
	if auditInput.Details == nil {
		auditInput.Details = map[string]any{}
	}
	auditInput.Details["command_id"] = commandID
	if _, err := auditRepo.RecordTx(tx, auditInput); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.Get(commandID)
}

// Get retrieves a command by ID. Returns nil, nil if not found.
func (r *Repository) Get(commandID string) (*RealtimeCommand, error) {
	row := r.reader.QueryRow(selectCommand+` WHERE command_id = ?`, commandID)
	return scanCommand(row)
}

// FindByIdempotencyKey returns the command a client already submitted under a
// key, if any.
func (r *Repository) FindByIdempotencyKey(apiClientID, key string) (*RealtimeCommand, error) {
	row := r.reader.QueryRow(selectCommand+`
		WHERE requested_by_api_client = ? AND idempotency_key = ?`, apiClientID, key)
	return scanCommand(row)
}

// ListForAsset returns an asset's commands, newest first.
func (r *Repository) ListForAsset(assetID string, limit int) ([]RealtimeCommand, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.reader.Query(selectCommand+`
		WHERE asset_id = ?
		ORDER BY requested_at DESC, command_id DESC
		LIMIT ?`, assetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []RealtimeCommand
	for rows.Next() {
		cmd, err := scanCommandRows(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, *cmd)
	}
	return commands, rows.Err()
}

// MarkSent records a successful vendor relay.
func (r *Repository) MarkSent(commandID string, response map[string]any, latencyMs int64) error {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return err
	}
	_, err = r.writer.Exec(`
		UPDATE realtime_commands SET status = 'sent', response = ?, latency_ms = ? WHERE command_id = ?
	`, string(responseJSON), latencyMs, commandID)
	return err
}

// MarkFailed records a vendor relay failure.
func (r *Repository) MarkFailed(commandID, errMsg string, latencyMs int64) error {
	_, err := r.writer.Exec(`
		UPDATE realtime_commands SET status = 'failed', error = ?, latency_ms = ? WHERE command_id = ?
	`, errMsg, latencyMs, commandID)
	return err
}

// MarkSimulated finalizes a command on a simulation project.
func (r *Repository) MarkSimulated(commandID string) error {
	_, err := r.writer.Exec(`
		UPDATE realtime_commands SET status = 'simulated' WHERE command_id = ?
	`, commandID)
	return err
}

const selectCommand = `
	SELECT command_id, asset_id, requested_at, dim_percent, source_mode, vendor, status,
	       response, error, latency_ms, requested_by_api_client, idempotency_key, created_at
	FROM realtime_commands`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row *sql.Row) (*RealtimeCommand, error) {
	cmd, err := scanCommandRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cmd, nil
}

func scanCommandRows(row rowScanner) (*RealtimeCommand, error) {
	var cmd RealtimeCommand
	var requestedAt, status, created string
	var vendor, responseJSON, errMsg, clientID, idemKey sql.NullString
	var latency sql.NullInt64

	err := row.Scan(&cmd.CommandID, &cmd.AssetID, &requestedAt, &cmd.DimPercent, &cmd.SourceMode,
		&vendor, &status, &responseJSON, &errMsg, &latency, &clientID, &idemKey, &created)
	if err != nil {
		return nil, err
	}

	cmd.RequestedAt = parseTime(requestedAt)
	cmd.Status = Status(status)
	cmd.CreatedAt = parseTime(created)
	if vendor.Valid {
		cmd.Vendor = &vendor.String
	}
	if responseJSON.Valid && responseJSON.String != "" {
		if err := json.Unmarshal([]byte(responseJSON.String), &cmd.Response); err != nil {
			return nil, err
		}
	}
	if errMsg.Valid {
		cmd.Error = &errMsg.String
	}
	if latency.Valid {
		cmd.LatencyMs = &latency.Int64
	}
	if clientID.Valid {
		cmd.RequestedByAPIClient = &clientID.String
	}
	if idemKey.Valid {
		cmd.IdempotencyKey = &idemKey.String
	}
	return &cmd, nil
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
