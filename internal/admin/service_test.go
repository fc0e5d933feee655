package admin

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/audit"
	"github.com/openlux/lumen-hub/internal/auth"
	"github.com/openlux/lumen-hub/internal/credential"
	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/policy"
	"github.com/openlux/lumen-hub/internal/scope"
	"github.com/openlux/lumen-hub/internal/tenant"
)

const testCipherKey = "0123456789abcdef0123456789abcdef"

type adminFixture struct {
	service *Service
	auditor *audit.Service
	tenants *tenant.Repository
	creds   *credential.Service
	project *tenant.Project
	client  *tenant.Client
}

func setupAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	_, err = scope.Sync(dbPair.Writer())
	require.NoError(t, err)

	tenants := tenant.NewRepository(dbPair)
	project, err := tenants.CreateProject("oslo-north", "Oslo North", tenant.ModeLive)
	require.NoError(t, err)
	client, err := tenants.CreateClient(project.ProjectID, "council-app", nil)
	require.NoError(t, err)

	cipher, err := credential.NewCipher(testCipherKey)
	require.NoError(t, err)
	creds := credential.NewService(dbPair, cipher, nil)
	auditor := audit.NewService(dbPair, nil)
	policies := policy.NewRepository(dbPair)

	service := NewService(dbPair.Reader(), tenants, policies, creds, auditor, nil)

	return &adminFixture{service: service, auditor: auditor, tenants: tenants,
		creds: creds, project: project, client: client}
}

func policyBody() map[string]any {
	return map[string]any{"min_dim": 20, "max_dim": 80, "max_changes_per_hr": 6}
}

func TestWritePolicy(t *testing.T) {
	fixture := setupAdminFixture(t)

	created, err := fixture.service.WritePolicy(fixture.project.ProjectID, "v1", policyBody(), "council-app")
	require.NoError(t, err)
	require.Equal(t, "v1", created.Version)

	current, err := fixture.service.CurrentPolicy(fixture.project.ProjectID)
	require.NoError(t, err)
	require.Equal(t, created.PolicyID, current.PolicyID)

	entries, err := fixture.auditor.Query(fixture.project.ProjectID, audit.QueryFilters{Action: audit.ActionPolicyUpdate})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "v1", entries[0].Details["version"])
}

func TestWritePolicy_Validation(t *testing.T) {
	fixture := setupAdminFixture(t)

	_, err := fixture.service.WritePolicy(fixture.project.ProjectID, "", policyBody(), "council-app")
	require.Error(t, err)

	_, err = fixture.service.WritePolicy(fixture.project.ProjectID, "v1",
		map[string]any{"min_dim": 80, "max_dim": 20, "max_changes_per_hr": 6}, "council-app")
	require.Error(t, err)
	require.Contains(t, err.Error(), "min_dim must be less than max_dim")
}

func TestCurrentPolicy_NoneIs404(t *testing.T) {
	fixture := setupAdminFixture(t)

	_, err := fixture.service.CurrentPolicy(fixture.project.ProjectID)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 404, appErr.StatusCode)
	require.Equal(t, apperrors.ErrorCodePolicyNotFound, appErr.Code)
}

func TestIssueKey(t *testing.T) {
	fixture := setupAdminFixture(t)

	key, rawKey, err := fixture.service.IssueKey(fixture.project.ProjectID, fixture.client.APIClientID,
		[]string{"asset:read", "command:realtime.write"}, "council-app")
	require.NoError(t, err)
	require.NotEmpty(t, rawKey)
	require.Equal(t, []string{"asset:read", "command:realtime.write"}, key.Scopes)

	// The stored hash verifies the raw key; the raw key is not stored.
	stored, err := fixture.tenants.GetKey(key.APIKeyID)
	require.NoError(t, err)
	require.True(t, auth.VerifyKey(rawKey, stored.Hash))

	entries, err := fixture.auditor.Query(fixture.project.ProjectID, audit.QueryFilters{Action: audit.ActionAPIKeyIssued})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestIssueKey_UnknownScope(t *testing.T) {
	fixture := setupAdminFixture(t)

	_, _, err := fixture.service.IssueKey(fixture.project.ProjectID, fixture.client.APIClientID,
		[]string{"asset:read", "asset:delete"}, "council-app")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown scopes: asset:delete")
}

func TestIssueKey_ClientMustBelongToProject(t *testing.T) {
	fixture := setupAdminFixture(t)

	other, err := fixture.tenants.CreateProject("bergen-south", "Bergen South", tenant.ModeLive)
	require.NoError(t, err)

	_, _, err = fixture.service.IssueKey(other.ProjectID, fixture.client.APIClientID,
		[]string{"asset:read"}, "council-app")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 404, appErr.StatusCode)
}

func TestRevokeKey(t *testing.T) {
	fixture := setupAdminFixture(t)

	key, _, err := fixture.service.IssueKey(fixture.project.ProjectID, fixture.client.APIClientID,
		[]string{"asset:read"}, "council-app")
	require.NoError(t, err)

	require.NoError(t, fixture.service.RevokeKey(fixture.project.ProjectID, key.APIKeyID, "council-app"))

	gone, err := fixture.tenants.GetKey(key.APIKeyID)
	require.NoError(t, err)
	require.Nil(t, gone)

	err = fixture.service.RevokeKey(fixture.project.ProjectID, key.APIKeyID, "council-app")
	require.Error(t, err)
}

func TestRotateKey(t *testing.T) {
	fixture := setupAdminFixture(t)

	old, oldRaw, err := fixture.service.IssueKey(fixture.project.ProjectID, fixture.client.APIClientID,
		[]string{"asset:read", "sensor:ingest"}, "council-app")
	require.NoError(t, err)

	fresh, freshRaw, err := fixture.service.RotateKey(fixture.project.ProjectID, old.APIKeyID, "council-app")
	require.NoError(t, err)
	require.NotEqual(t, old.APIKeyID, fresh.APIKeyID)
	require.NotEqual(t, oldRaw, freshRaw)
	require.Equal(t, old.Scopes, fresh.Scopes)

	// The old key is gone, the fresh one verifies.
	gone, err := fixture.tenants.GetKey(old.APIKeyID)
	require.NoError(t, err)
	require.Nil(t, gone)

	stored, err := fixture.tenants.GetKey(fresh.APIKeyID)
	require.NoError(t, err)
	require.True(t, auth.VerifyKey(freshRaw, stored.Hash))
}

func TestStoreExedraCredentials(t *testing.T) {
	fixture := setupAdminFixture(t)

	err := fixture.service.StoreExedraCredentials(fixture.project.ProjectID, fixture.client.APIClientID,
		"vendor-token", "https://exedra.example.com", "", "council-app")
	require.NoError(t, err)

	cfg, err := fixture.creds.GetExedraConfig(fixture.client.APIClientID, "")
	require.NoError(t, err)
	require.Equal(t, "vendor-token", cfg.Token)

	// The ledger entry names the slot but never the secret.
	entries, err := fixture.auditor.Query(fixture.project.ProjectID, audit.QueryFilters{Action: audit.ActionCredentialStore})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotContains(t, entries[0].Details, "token")

	err = fixture.service.StoreExedraCredentials(fixture.project.ProjectID, fixture.client.APIClientID,
		"", "https://exedra.example.com", "", "council-app")
	require.Error(t, err)
}

func TestSetProjectMode(t *testing.T) {
	fixture := setupAdminFixture(t)

	updated, err := fixture.service.SetProjectMode(fixture.project, tenant.ModeSimulation, "council-app")
	require.NoError(t, err)
	require.Equal(t, tenant.ModeSimulation, updated.Mode)

	_, err = fixture.service.SetProjectMode(fixture.project, "offline", "council-app")
	require.Error(t, err)

	entries, err := fixture.auditor.Query(fixture.project.ProjectID, audit.QueryFilters{Action: audit.ActionProjectModeChange})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "live", entries[0].Details["from"])
	require.Equal(t, "simulation", entries[0].Details["to"])
}

func TestScopes(t *testing.T) {
	fixture := setupAdminFixture(t)

	defs, err := fixture.service.Scopes()
	require.NoError(t, err)
	require.Len(t, defs, len(scope.Definitions))
}
