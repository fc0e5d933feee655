package tenant

import "time"

// ProjectMode gates whether downstream vendor calls are real or stubbed.
type ProjectMode string

const (
	ModeLive       ProjectMode = "live"
	ModeSimulation ProjectMode = "simulation"
)

// ClientStatus is the lifecycle state of an API client.
type ClientStatus string

const (
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
)

// Project is the tenant boundary. Everything project-scoped cascades away
// with it.
type Project struct {
	ProjectID string      `json:"project_id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Mode      ProjectMode `json:"mode"`
	CreatedAt time.Time   `json:"created_at"`
}

// Client is an API client belonging to one project.
type Client struct {
	APIClientID  string       `json:"api_client_id"`
	ProjectID    string       `json:"project_id"`
	Name         string       `json:"name"`
	ContactEmail *string      `json:"contact_email,omitempty"`
	Status       ClientStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Key is a stored API key. Hash is salt||digest; the raw secret is shown
// once at issuance and never stored.
type Key struct {
	APIKeyID    string     `json:"api_key_id"`
	APIClientID string     `json:"api_client_id"`
	Hash        []byte     `json:"-"`
	Scopes      []string   `json:"scopes"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// HasScope reports membership in the key's scope set.
func (k *Key) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
