package credential

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for client credentials. Values go in
// and out encrypted; the service layer owns the cipher.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new credential Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// Store deactivates any live credential for the same (client, service, type,
// environment) slot and inserts the replacement in the same transaction, so
// the partial unique index never sees two active rows.
func (r *Repository) Store(input StoreInput, encryptedValue string) (*Credential, error) {
	credentialID := uuid.New().String()
	now := nowISO()

	var expiresAt *string
	if input.ExpiresAt != nil {
		formatted := input.ExpiresAt.UTC().Format(time.RFC3339)
		expiresAt = &formatted
	}

	tx, err := r.writer.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE client_credentials
		SET is_active = 0
		WHERE api_client_id = ? AND service_name = ? AND credential_type = ? AND environment = ? AND is_active = 1
	`, input.APIClientID, input.ServiceName, string(input.Type), input.Environment)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO client_credentials
			(credential_id, api_client_id, service_name, credential_type, encrypted_value, environment, created_at, expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
	`, credentialID, input.APIClientID, input.ServiceName, string(input.Type), encryptedValue, input.Environment, now, expiresAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.Get(credentialID)
}

// Get retrieves a credential by ID. Returns nil, nil if not found. The
// encrypted value is not loaded.
func (r *Repository) Get(credentialID string) (*Credential, error) {
	row := r.reader.QueryRow(`
		SELECT credential_id, api_client_id, service_name, credential_type, environment, created_at, expires_at, is_active
		FROM client_credentials
		WHERE credential_id = ?
	`, credentialID)
	return scanCredential(row)
}

// ActiveValue returns the encrypted value of the live credential in a slot.
// Returns "" with no error when the slot is empty.
func (r *Repository) ActiveValue(apiClientID, serviceName string, credType Type, environment string) (string, error) {
	var encrypted string
	err := r.reader.QueryRow(`
		SELECT encrypted_value
		FROM client_credentials
		WHERE api_client_id = ? AND service_name = ? AND credential_type = ? AND environment = ? AND is_active = 1
	`, apiClientID, serviceName, string(credType), environment).Scan(&encrypted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return encrypted, nil
}

// ListForClient returns the client's credentials, newest first, without
// values.
func (r *Repository) ListForClient(apiClientID string) ([]Credential, error) {
	rows, err := r.reader.Query(`
		SELECT credential_id, api_client_id, service_name, credential_type, environment, created_at, expires_at, is_active
		FROM client_credentials
		WHERE api_client_id = ?
		ORDER BY created_at DESC, credential_id
	`, apiClientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var credentials []Credential
	for rows.Next() {
		var cred Credential
		var credType, created string
		var expires sql.NullString
		var active int
		err := rows.Scan(&cred.CredentialID, &cred.APIClientID, &cred.ServiceName, &credType, &cred.Environment, &created, &expires, &active)
		if err != nil {
			return nil, err
		}
		cred.Type = Type(credType)
		cred.CreatedAt = parseTime(created)
		if expires.Valid {
			t := parseTime(expires.String)
			cred.ExpiresAt = &t
		}
		cred.IsActive = active == 1
		credentials = append(credentials, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return credentials, nil
}

// Deactivate retires a credential without replacing it.
func (r *Repository) Deactivate(credentialID string) error {
	result, err := r.writer.Exec(`UPDATE client_credentials SET is_active = 0 WHERE credential_id = ?`, credentialID)
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

func scanCredential(row *sql.Row) (*Credential, error) {
	var cred Credential
	var credType, created string
	var expires sql.NullString
	var active int
	err := row.Scan(&cred.CredentialID, &cred.APIClientID, &cred.ServiceName, &credType, &cred.Environment, &created, &expires, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cred.Type = Type(credType)
	cred.CreatedAt = parseTime(created)
	if expires.Valid {
		t := parseTime(expires.String)
		cred.ExpiresAt = &t
	}
	cred.IsActive = active == 1
	return &cred, nil
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
