package policy

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

// Repository handles database operations for policies. The table is
// append-only; superseding is implicit in active_from ordering.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new policy Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// Create appends a new policy version effective immediately.
func (r *Repository) Create(projectID, version string, body map[string]any) (*Policy, error) {
	policyID := uuid.New().String()
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.Exec(`
		INSERT INTO policies (policy_id, project_id, version, body, active_from)
		VALUES (?, ?, ?, ?, ?)
	`, policyID, projectID, version, string(bodyJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}

	return r.Get(policyID)
}

// Get retrieves a policy by ID. Returns nil, nil if not found.
func (r *Repository) Get(policyID string) (*Policy, error) {
	row := r.reader.QueryRow(`
		SELECT policy_id, project_id, version, body, active_from
		FROM policies
		WHERE policy_id = ?
	`, policyID)
	return scanPolicy(row)
}

// Current returns the project's governing policy: greatest active_from, ties
// broken by newest insert (rowid is sqlite's insertion order; policy_id is a
// random UUID and would pick an arbitrary winner). Returns nil, nil when the
// project has no policy.
func (r *Repository) Current(projectID string) (*Policy, error) {
	row := r.reader.QueryRow(`
		SELECT policy_id, project_id, version, body, active_from
		FROM policies
		WHERE project_id = ?
		ORDER BY active_from DESC, rowid DESC
		LIMIT 1
	`, projectID)
	return scanPolicy(row)
}

// History returns the project's policy versions, newest first.
func (r *Repository) History(projectID string, limit int) ([]Policy, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.reader.Query(`
		SELECT policy_id, project_id, version, body, active_from
		FROM policies
		WHERE project_id = ?
		ORDER BY active_from DESC, rowid DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []Policy
	for rows.Next() {
		var policy Policy
		var bodyJSON, activeFrom string
		if err := rows.Scan(&policy.PolicyID, &policy.ProjectID, &policy.Version, &bodyJSON, &activeFrom); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(bodyJSON), &policy.Body); err != nil {
			return nil, err
		}
		policy.ActiveFrom = parseTime(activeFrom)
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return policies, nil
}

func scanPolicy(row *sql.Row) (*Policy, error) {
	var policy Policy
	var bodyJSON, activeFrom string
	err := row.Scan(&policy.PolicyID, &policy.ProjectID, &policy.Version, &bodyJSON, &activeFrom)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(bodyJSON), &policy.Body); err != nil {
		return nil, err
	}
	policy.ActiveFrom = parseTime(activeFrom)
	return &policy, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t, _ = time.Parse("2006-01-02 15:04:05", value)
	}
	return t
}
