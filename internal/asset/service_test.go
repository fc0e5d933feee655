package asset

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/openlux/lumen-hub/internal/apperrors"
	"github.com/openlux/lumen-hub/internal/audit"
	"github.com/openlux/lumen-hub/internal/credential"
	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/exedra"
	"github.com/openlux/lumen-hub/internal/tenant"
)

const testCipherKey = "0123456789abcdef0123456789abcdef"

type assetFixture struct {
	service    *Service
	auditor    *audit.Service
	tenants    *tenant.Repository
	creds      *credential.Service
	project    *tenant.Project
	client     *tenant.Client
	vendorHits atomic.Int64
}

func setupAssetFixture(t *testing.T, mode tenant.ProjectMode) *assetFixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	fixture := &assetFixture{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture.vendorHits.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"dimmingLevel": 65})
	}))
	t.Cleanup(server.Close)

	fixture.tenants = tenant.NewRepository(dbPair)
	fixture.project, err = fixture.tenants.CreateProject("oslo-north", "Oslo North", mode)
	require.NoError(t, err)
	fixture.client, err = fixture.tenants.CreateClient(fixture.project.ProjectID, "council-app", nil)
	require.NoError(t, err)

	cipher, err := credential.NewCipher(testCipherKey)
	require.NoError(t, err)
	fixture.creds = credential.NewService(dbPair, cipher, nil)
	require.NoError(t, fixture.creds.StoreExedraConfig(fixture.client.APIClientID, "vendor-token", server.URL, ""))

	gateway := exedra.NewGateway(5*time.Second, true, nil)
	fixture.auditor = audit.NewService(dbPair, nil)
	fixture.service = NewService(dbPair, fixture.tenants, fixture.creds, gateway, fixture.auditor, nil)

	return fixture
}

func TestCreate_DefaultsAndConflict(t *testing.T) {
	fixture := setupAssetFixture(t, tenant.ModeLive)

	created, err := fixture.service.Create(CreateInput{
		ProjectID:  fixture.project.ProjectID,
		ExternalID: "LAMP-001",
	})
	require.NoError(t, err)
	require.Equal(t, ModePassthrough, created.ControlMode)
	require.Equal(t, "LAMP-001", created.DisplayName())

	_, err = fixture.service.Create(CreateInput{
		ProjectID:  fixture.project.ProjectID,
		ExternalID: "LAMP-001",
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 409, appErr.StatusCode)
}

func TestCreate_InvalidMode(t *testing.T) {
	fixture := setupAssetFixture(t, tenant.ModeLive)

	_, err := fixture.service.Create(CreateInput{
		ProjectID:   fixture.project.ProjectID,
		ExternalID:  "LAMP-002",
		ControlMode: "manual",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "control_mode must be")
}

func TestResolve_NotFound(t *testing.T) {
	fixture := setupAssetFixture(t, tenant.ModeLive)

	_, err := fixture.service.Resolve(fixture.project.ProjectID, "LAMP-404")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 404, appErr.StatusCode)
	require.Equal(t, apperrors.ErrorCodeAssetNotFound, appErr.Code)
}

func TestResolve_ScopedToProject(t *testing.T) {
	fixture := setupAssetFixture(t, tenant.ModeLive)

	_, err := fixture.service.Create(CreateInput{
		ProjectID:  fixture.project.ProjectID,
		ExternalID: "LAMP-001",
	})
	require.NoError(t, err)

	other, err := fixture.tenants.CreateProject("bergen-south", "Bergen South", tenant.ModeLive)
	require.NoError(t, err)

	_, err = fixture.service.Resolve(other.ProjectID, "LAMP-001")
	require.Error(t, err)
}

func TestList_Pagination(t *testing.T) {
	fixture := setupAssetFixture(t, tenant.ModeLive)

	for _, id := range []string{"LAMP-001", "LAMP-002", "LAMP-003"} {
		_, err := fixture.service.Create(CreateInput{ProjectID: fixture.project.ProjectID, ExternalID: id})
		require.NoError(t, err)
	}

	page, total, err := fixture.service.List(fixture.project.ProjectID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, 3, total)

	rest, _, err := fixture.service.List(fixture.project.ProjectID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}

func TestUpdateControlMode(t *testing.T) {
	fixture := setupAssetFixture(t, tenant.ModeLive)

	created, err := fixture.service.Create(CreateInput{
		ProjectID:  fixture.project.ProjectID,
		ExternalID: "LAMP-001",
	})
	require.NoError(t, err)

	updated, err := fixture.service.UpdateControlMode(created, ModeOptimise, "council-app")
	require.NoError(t, err)
	require.Equal(t, ModeOptimise, updated.ControlMode)

	entries, err := fixture.auditor.Query(fixture.project.ProjectID, audit.QueryFilters{Action: audit.ActionControlModeChange})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "passthrough", entries[0].Details["from"])
	require.Equal(t, "optimise", entries[0].Details["to"])
}

func TestCurrentSchedule_NoneIs404(t *testing.T) {
	fixture := setupAssetFixture(t, tenant.ModeLive)

	created, err := fixture.service.Create(CreateInput{
		ProjectID:  fixture.project.ProjectID,
		ExternalID: "LAMP-001",
	})
	require.NoError(t, err)

	_, err = fixture.service.CurrentSchedule(created)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 404, appErr.StatusCode)
}

func TestState_LiveReadsVendor(t *testing.T) {
	fixture := setupAssetFixture(t, tenant.ModeLive)

	created, err := fixture.service.Create(CreateInput{
		ProjectID:  fixture.project.ProjectID,
		ExternalID: "LAMP-001",
	})
	require.NoError(t, err)

	state, err := fixture.service.State(context.Background(), fixture.project, created)
	require.NoError(t, err)
	require.Equal(t, "vendor", state.DimSource)
	require.Equal(t, float64(65), state.DimLevel["dimmingLevel"])
	require.Equal(t, int64(1), fixture.vendorHits.Load())
}

func TestState_SimulationStaysLocal(t *testing.T) {
	fixture := setupAssetFixture(t, tenant.ModeSimulation)

	created, err := fixture.service.Create(CreateInput{
		ProjectID:  fixture.project.ProjectID,
		ExternalID: "LAMP-001",
	})
	require.NoError(t, err)

	state, err := fixture.service.State(context.Background(), fixture.project, created)
	require.NoError(t, err)
	require.Equal(t, "local", state.DimSource)
	require.Nil(t, state.DimLevel)
	require.Zero(t, fixture.vendorHits.Load())
}

func TestState_VendorFailureFallsBackLocal(t *testing.T) {
	fixture := setupAssetFixture(t, tenant.ModeLive)

	// Retire credentials so the vendor lookup cannot even start.
	creds, err := fixture.creds.ListForClient(fixture.client.APIClientID)
	require.NoError(t, err)
	for _, c := range creds {
		require.NoError(t, fixture.creds.Deactivate(c.CredentialID))
	}

	created, err := fixture.service.Create(CreateInput{
		ProjectID:  fixture.project.ProjectID,
		ExternalID: "LAMP-001",
	})
	require.NoError(t, err)

	state, err := fixture.service.State(context.Background(), fixture.project, created)
	require.NoError(t, err)
	require.Equal(t, "local", state.DimSource)
	require.Zero(t, fixture.vendorHits.Load())
}
