package credential

import (
	"fmt"
	"log"

	"github.com/openlux/lumen-hub/internal/apperrors"
)

// Service stores and retrieves client credentials, encrypting values at rest.
type Service struct {
	logger *log.Logger
	repo   *Repository
	cipher *Cipher
}

// NewService creates a new credential service.
func NewService(dbPair DBPair, cipher *Cipher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{logger: logger, repo: NewRepository(dbPair), cipher: cipher}
}

// Store validates, encrypts and persists a credential, retiring any previous
// active credential in the same slot.
func (s *Service) Store(input StoreInput) (*Credential, error) {
	if input.APIClientID == "" {
		return nil, apperrors.NewValidationError("api_client_id is required", nil)
	}
	if input.ServiceName == "" {
		return nil, apperrors.NewValidationError("service_name is required", nil)
	}
	if input.Value == "" {
		return nil, apperrors.NewValidationError("value is required", nil)
	}
	if !validType(input.Type) {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("invalid credential_type %q", input.Type), nil)
	}
	if input.Environment == "" {
		input.Environment = DefaultEnvironment
	}

	encrypted, err := s.cipher.Encrypt(input.Value)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}

	cred, err := s.repo.Store(input, encrypted)
	if err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	s.logger.Printf("stored %s/%s credential for client %s (env %s)",
		cred.ServiceName, cred.Type, cred.APIClientID, cred.Environment)
	return cred, nil
}

// ActiveValue decrypts the live credential in a slot. Returns "" with no
// error when the slot is empty.
func (s *Service) ActiveValue(apiClientID, serviceName string, credType Type, environment string) (string, error) {
	if environment == "" {
		environment = DefaultEnvironment
	}
	encrypted, err := s.repo.ActiveValue(apiClientID, serviceName, credType, environment)
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	if encrypted == "" {
		return "", nil
	}
	value, err := s.cipher.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return value, nil
}

// ListForClient returns the client's credential records without values.
func (s *Service) ListForClient(apiClientID string) ([]Credential, error) {
	return s.repo.ListForClient(apiClientID)
}

// Deactivate retires a credential by ID.
func (s *Service) Deactivate(credentialID string) error {
	return s.repo.Deactivate(credentialID)
}

// GetExedraConfig resolves the decrypted EXEDRA token and base URL for a
// client. Both must be present for live vendor calls.
func (s *Service) GetExedraConfig(apiClientID, environment string) (*ExedraConfig, error) {
	token, err := s.ActiveValue(apiClientID, ServiceExedra, TypeAPIToken, environment)
	if err != nil {
		return nil, err
	}
	baseURL, err := s.ActiveValue(apiClientID, ServiceExedra, TypeBaseURL, environment)
	if err != nil {
		return nil, err
	}
	if token == "" || baseURL == "" {
		return nil, apperrors.NewValidationError(
			"no EXEDRA credentials configured for this client", nil)
	}
	return &ExedraConfig{Token: token, BaseURL: baseURL}, nil
}

// StoreExedraConfig stores the token and base URL pair for EXEDRA in one call.
func (s *Service) StoreExedraConfig(apiClientID, token, baseURL, environment string) error {
	if _, err := s.Store(StoreInput{
		APIClientID: apiClientID,
		ServiceName: ServiceExedra,
		Type:        TypeAPIToken,
		Value:       token,
		Environment: environment,
	}); err != nil {
		return err
	}
	if _, err := s.Store(StoreInput{
		APIClientID: apiClientID,
		ServiceName: ServiceExedra,
		Type:        TypeBaseURL,
		Value:       baseURL,
		Environment: environment,
	}); err != nil {
		return err
	}
	return nil
}

func validType(t Type) bool {
	for _, valid := range ValidTypes {
		if t == valid {
			return true
		}
	}
	return false
}
