package credential

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/tenant"
)

const testKey = "0123456789abcdef0123456789abcdef"

func setupTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	tenants := tenant.NewRepository(dbPair)
	project, err := tenants.CreateProject("oslo-north", "Oslo North", tenant.ModeLive)
	require.NoError(t, err)
	client, err := tenants.CreateClient(project.ProjectID, "council-app", nil)
	require.NoError(t, err)

	cipher, err := NewCipher(testKey)
	require.NoError(t, err)

	return NewService(dbPair, cipher, nil), client.APIClientID
}

func TestCipher_RoundTrip(t *testing.T) {
	cipher, err := NewCipher(testKey)
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("secret-token-value")
	require.NoError(t, err)
	require.NotEqual(t, "secret-token-value", encrypted)

	plain, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)
	require.Equal(t, "secret-token-value", plain)

	// Fresh nonce per encryption.
	again, err := cipher.Encrypt("secret-token-value")
	require.NoError(t, err)
	require.NotEqual(t, encrypted, again)
}

func TestCipher_BadKey(t *testing.T) {
	_, err := NewCipher("too-short")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be 32 bytes")
}

func TestCipher_TamperedCiphertext(t *testing.T) {
	cipher, err := NewCipher(testKey)
	require.NoError(t, err)

	_, err = cipher.Decrypt("bm90LXJlYWwtY2lwaGVydGV4dC1hdC1hbGw=")
	require.Error(t, err)
}

func TestService_StoreAndActiveValue(t *testing.T) {
	service, clientID := setupTestService(t)

	cred, err := service.Store(StoreInput{
		APIClientID: clientID,
		ServiceName: ServiceExedra,
		Type:        TypeAPIToken,
		Value:       "vendor-token-1",
	})
	require.NoError(t, err)
	require.Equal(t, DefaultEnvironment, cred.Environment)
	require.True(t, cred.IsActive)

	value, err := service.ActiveValue(clientID, ServiceExedra, TypeAPIToken, "")
	require.NoError(t, err)
	require.Equal(t, "vendor-token-1", value)
}

func TestService_StoreRetiresPreviousSlot(t *testing.T) {
	service, clientID := setupTestService(t)

	_, err := service.Store(StoreInput{
		APIClientID: clientID,
		ServiceName: ServiceExedra,
		Type:        TypeAPIToken,
		Value:       "old-token",
	})
	require.NoError(t, err)

	_, err = service.Store(StoreInput{
		APIClientID: clientID,
		ServiceName: ServiceExedra,
		Type:        TypeAPIToken,
		Value:       "new-token",
	})
	require.NoError(t, err)

	value, err := service.ActiveValue(clientID, ServiceExedra, TypeAPIToken, "")
	require.NoError(t, err)
	require.Equal(t, "new-token", value)

	// Both rows remain; only one is active.
	creds, err := service.ListForClient(clientID)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	active := 0
	for _, c := range creds {
		if c.IsActive {
			active++
		}
	}
	require.Equal(t, 1, active)
}

func TestService_ActiveValueEmptySlot(t *testing.T) {
	service, clientID := setupTestService(t)

	value, err := service.ActiveValue(clientID, ServiceExedra, TypeAPIToken, "")
	require.NoError(t, err)
	require.Empty(t, value)
}

func TestService_StoreValidation(t *testing.T) {
	service, clientID := setupTestService(t)

	_, err := service.Store(StoreInput{ServiceName: "x", Type: TypeAPIToken, Value: "v"})
	require.Error(t, err)

	_, err = service.Store(StoreInput{APIClientID: clientID, ServiceName: "x", Type: "password", Value: "v"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid credential_type")
}

func TestService_ExedraConfig(t *testing.T) {
	service, clientID := setupTestService(t)

	_, err := service.GetExedraConfig(clientID, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no EXEDRA credentials configured")

	require.NoError(t, service.StoreExedraConfig(clientID, "vendor-token", "https://exedra.example.com", ""))

	cfg, err := service.GetExedraConfig(clientID, "")
	require.NoError(t, err)
	require.Equal(t, "vendor-token", cfg.Token)
	require.Equal(t, "https://exedra.example.com", cfg.BaseURL)
}

func TestService_Deactivate(t *testing.T) {
	service, clientID := setupTestService(t)

	cred, err := service.Store(StoreInput{
		APIClientID: clientID,
		ServiceName: ServiceExedra,
		Type:        TypeAPIToken,
		Value:       "vendor-token",
	})
	require.NoError(t, err)

	require.NoError(t, service.Deactivate(cred.CredentialID))

	value, err := service.ActiveValue(clientID, ServiceExedra, TypeAPIToken, "")
	require.NoError(t, err)
	require.Empty(t, value)
}
