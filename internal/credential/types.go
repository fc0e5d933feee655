package credential

import "time"

// Type classifies what a stored credential value is.
type Type string

const (
	TypeAPIToken    Type = "api_token"
	TypeOAuthToken  Type = "oauth_token"
	TypeCertificate Type = "certificate"
	TypeBaseURL     Type = "base_url"
	TypeOther       Type = "other"
)

// ValidTypes lists the accepted credential types, used for request validation.
var ValidTypes = []Type{TypeAPIToken, TypeOAuthToken, TypeCertificate, TypeBaseURL, TypeOther}

// ServiceExedra is the service_name under which EXEDRA connectivity lives.
const ServiceExedra = "exedra"

// DefaultEnvironment applies when a store request omits the environment.
const DefaultEnvironment = "prod"

// Credential is a stored secret for an upstream service. Value is only
// populated on reads that explicitly decrypt.
type Credential struct {
	CredentialID string     `json:"credential_id"`
	APIClientID  string     `json:"api_client_id"`
	ServiceName  string     `json:"service_name"`
	Type         Type       `json:"credential_type"`
	Environment  string     `json:"environment"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IsActive     bool       `json:"is_active"`
	Value        string     `json:"-"`
}

// StoreInput is the write request for a credential.
type StoreInput struct {
	APIClientID string
	ServiceName string
	Type        Type
	Value       string
	Environment string
	ExpiresAt   *time.Time
}

// ExedraConfig is the decrypted connection material the vendor gateway needs.
type ExedraConfig struct {
	Token   string
	BaseURL string
}
