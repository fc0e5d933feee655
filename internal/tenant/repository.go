package tenant

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

// Repository handles database operations for projects, clients and keys.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new tenant Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// CreateProject creates a new tenant project.
func (r *Repository) CreateProject(code, name string, mode ProjectMode) (*Project, error) {
	projectID := uuid.New().String()
	now := nowISO()

	if mode == "" {
		mode = ModeLive
	}

	_, err := r.writer.Exec(`
		INSERT INTO projects (project_id, code, name, mode, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, projectID, code, name, string(mode), now)
	if err != nil {
		return nil, err
	}

	return r.GetProject(projectID)
}

// GetProject retrieves a project by ID. Returns nil, nil if not found.
func (r *Repository) GetProject(projectID string) (*Project, error) {
	row := r.reader.QueryRow(`
		SELECT project_id, code, name, mode, created_at
		FROM projects
		WHERE project_id = ?
	`, projectID)
	return scanProject(row)
}

// GetProjectByCode resolves the tenant for a path's {project_code}.
func (r *Repository) GetProjectByCode(code string) (*Project, error) {
	row := r.reader.QueryRow(`
		SELECT project_id, code, name, mode, created_at
		FROM projects
		WHERE code = ?
	`, code)
	return scanProject(row)
}

// SetProjectMode flips a project between live and simulation.
func (r *Repository) SetProjectMode(projectID string, mode ProjectMode) error {
	result, err := r.writer.Exec(`UPDATE projects SET mode = ? WHERE project_id = ?`, string(mode), projectID)
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

// CreateClient creates an API client under a project.
func (r *Repository) CreateClient(projectID, name string, contactEmail *string) (*Client, error) {
	clientID := uuid.New().String()
	now := nowISO()

	_, err := r.writer.Exec(`
		INSERT INTO api_clients (api_client_id, project_id, name, contact_email, status, created_at)
		VALUES (?, ?, ?, ?, 'active', ?)
	`, clientID, projectID, name, contactEmail, now)
	if err != nil {
		return nil, err
	}

	return r.GetClient(clientID)
}

// GetClient retrieves a client by ID. Returns nil, nil if not found.
func (r *Repository) GetClient(clientID string) (*Client, error) {
	row := r.reader.QueryRow(`
		SELECT api_client_id, project_id, name, contact_email, status, created_at
		FROM api_clients
		WHERE api_client_id = ?
	`, clientID)
	return scanClient(row)
}

// FirstActiveClient returns the project's first active client by creation
// order. Vendor credential lookup binds to this client; multi-client projects
// get whichever was created first.
func (r *Repository) FirstActiveClient(projectID string) (*Client, error) {
	row := r.reader.QueryRow(`
		SELECT api_client_id, project_id, name, contact_email, status, created_at
		FROM api_clients
		WHERE project_id = ? AND status = 'active'
		ORDER BY created_at, api_client_id
		LIMIT 1
	`, projectID)
	return scanClient(row)
}

// SetClientStatus activates or deactivates a client. Inactive clients fail
// authentication for every key they hold.
func (r *Repository) SetClientStatus(clientID string, status ClientStatus) error {
	result, err := r.writer.Exec(`UPDATE api_clients SET status = ? WHERE api_client_id = ?`, string(status), clientID)
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

// InsertKey stores a new API key hash with its scope set.
func (r *Repository) InsertKey(keyID, clientID string, hash []byte, scopes []string) (*Key, error) {
	if scopes == nil {
		scopes = []string{}
	}
	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.Exec(`
		INSERT INTO api_keys (api_key_id, api_client_id, hash, scopes, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, keyID, clientID, hash, string(scopesJSON), nowISO())
	if err != nil {
		return nil, err
	}

	return r.GetKey(keyID)
}

// GetKey retrieves a key by ID. Returns nil, nil if not found.
func (r *Repository) GetKey(keyID string) (*Key, error) {
	row := r.reader.QueryRow(`
		SELECT api_key_id, api_client_id, hash, scopes, created_at, last_used_at
		FROM api_keys
		WHERE api_key_id = ?
	`, keyID)

	key, err := scanKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return key, nil
}

// KeysForProject loads every key belonging to an active client of the
// project, together with its owning client. Authentication walks this set
// with a prefix match before the expensive hash comparison.
func (r *Repository) KeysForProject(projectID string) ([]Key, map[string]*Client, error) {
	rows, err := r.reader.Query(`
		SELECT k.api_key_id, k.api_client_id, k.hash, k.scopes, k.created_at, k.last_used_at,
		       c.api_client_id, c.project_id, c.name, c.contact_email, c.status, c.created_at
		FROM api_keys k
		JOIN api_clients c ON c.api_client_id = k.api_client_id
		WHERE c.project_id = ? AND c.status = 'active'
	`, projectID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var keys []Key
	clients := make(map[string]*Client)
	for rows.Next() {
		var key Key
		var scopesJSON string
		var keyCreated string
		var lastUsed sql.NullString
		var client Client
		var contactEmail sql.NullString
		var clientCreated string

		err := rows.Scan(
			&key.APIKeyID, &key.APIClientID, &key.Hash, &scopesJSON, &keyCreated, &lastUsed,
			&client.APIClientID, &client.ProjectID, &client.Name, &contactEmail, &client.Status, &clientCreated,
		)
		if err != nil {
			return nil, nil, err
		}

		if err := json.Unmarshal([]byte(scopesJSON), &key.Scopes); err != nil {
			return nil, nil, err
		}
		key.CreatedAt = parseTime(keyCreated)
		if lastUsed.Valid {
			t := parseTime(lastUsed.String)
			key.LastUsedAt = &t
		}
		if contactEmail.Valid {
			client.ContactEmail = &contactEmail.String
		}
		client.CreatedAt = parseTime(clientCreated)

		keys = append(keys, key)
		if _, ok := clients[client.APIClientID]; !ok {
			copied := client
			clients[client.APIClientID] = &copied
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return keys, clients, nil
}

// TouchKey records when a key last authenticated.
func (r *Repository) TouchKey(keyID string) error {
	_, err := r.writer.Exec(`UPDATE api_keys SET last_used_at = ? WHERE api_key_id = ?`, nowISO(), keyID)
	return err
}

// DeleteKey removes a key. Rotation issues a new key first, then deletes.
func (r *Repository) DeleteKey(keyID string) error {
	_, err := r.writer.Exec(`DELETE FROM api_keys WHERE api_key_id = ?`, keyID)
	return err
}

func scanProject(row *sql.Row) (*Project, error) {
	var project Project
	var mode, created string
	err := row.Scan(&project.ProjectID, &project.Code, &project.Name, &mode, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	project.Mode = ProjectMode(mode)
	project.CreatedAt = parseTime(created)
	return &project, nil
}

func scanClient(row *sql.Row) (*Client, error) {
	var client Client
	var contactEmail sql.NullString
	var status, created string
	err := row.Scan(&client.APIClientID, &client.ProjectID, &client.Name, &contactEmail, &status, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if contactEmail.Valid {
		client.ContactEmail = &contactEmail.String
	}
	client.Status = ClientStatus(status)
	client.CreatedAt = parseTime(created)
	return &client, nil
}

func scanKey(row *sql.Row) (*Key, error) {
	var key Key
	var scopesJSON, created string
	var lastUsed sql.NullString
	err := row.Scan(&key.APIKeyID, &key.APIClientID, &key.Hash, &scopesJSON, &created, &lastUsed)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scopesJSON), &key.Scopes); err != nil {
		return nil, err
	}
	key.CreatedAt = parseTime(created)
	if lastUsed.Valid {
		t := parseTime(lastUsed.String)
		key.LastUsedAt = &t
	}
	return &key, nil
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
