package command

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
	"github.com/openlux/lumen-hub/internal/asset"
	"github.com/openlux/lumen-hub/internal/audit"
	"github.com/openlux/lumen-hub/internal/auth"
	"github.com/openlux/lumen-hub/internal/credential"
	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/exedra"
	"github.com/openlux/lumen-hub/internal/policy"
	"github.com/openlux/lumen-hub/internal/tenant"
)

const testCipherKey = "0123456789abcdef0123456789abcdef"

type relayFixture struct {
	service    *Service
	assets     *asset.Service
	policies   *policy.Repository
	auditor    *audit.Service
	tenants    *tenant.Repository
	creds      *credential.Service
	project    *tenant.Project
	client     *tenant.Client
	vendorHits atomic.Int64
	vendorFail atomic.Bool
}

func setupRelayFixture(t *testing.T, mode tenant.ProjectMode) *relayFixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	fixture := &relayFixture{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture.vendorHits.Add(1)
		if fixture.vendorFail.Load() {
			http.Error(w, `{"error":"device offline"}`, http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "accepted"})
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
	fixture.policies = policy.NewRepository(dbPair)
	fixture.assets = asset.NewService(dbPair, fixture.tenants, fixture.creds, gateway, fixture.auditor, nil)
	fixture.service = NewService(dbPair, fixture.assets, fixture.policies, fixture.tenants, fixture.creds, gateway, fixture.auditor, nil)

	_, err = fixture.assets.Create(asset.CreateInput{
		ProjectID:   fixture.project.ProjectID,
		ExternalID:  "LAMP-001",
		ControlMode: asset.ModePassthrough,
	})
	require.NoError(t, err)
	_, err = fixture.assets.Create(asset.CreateInput{
		ProjectID:   fixture.project.ProjectID,
		ExternalID:  "LAMP-OPT",
		ControlMode: asset.ModeOptimise,
	})
	require.NoError(t, err)

	return fixture
}

func (f *relayFixture) caller(scopes ...string) *auth.AuthClient {
	return &auth.AuthClient{
		Key:     &tenant.Key{APIKeyID: "key-1", APIClientID: f.client.APIClientID, Scopes: scopes},
		Client:  f.client,
		Project: f.project,
	}
}

func strPtr(v string) *string { return &v }

func TestSubmitRealtime_LiveSent(t *testing.T) {
	fixture := setupRelayFixture(t, tenant.ModeLive)

	result, err := fixture.service.SubmitRealtime(context.Background(), fixture.caller("command:realtime.write"),
		RealtimeRequest{AssetExternalID: "LAMP-001", DimPercent: 60}, nil)
	require.NoError(t, err)
	require.False(t, result.Replayed)
	require.Equal(t, StatusSent, result.Command.Status)
	require.Equal(t, 60, result.Command.DimPercent)
	require.Equal(t, "accepted", result.Command.Response["status"])
	require.NotNil(t, result.Command.LatencyMs)
	require.Equal(t, int64(1), fixture.vendorHits.Load())

	entries, err := fixture.auditor.Query(fixture.project.ProjectID, audit.QueryFilters{Action: audit.ActionRealtimeCommand})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSubmitRealtime_VendorFailureIsDomainOutcome(t *testing.T) {
	fixture := setupRelayFixture(t, tenant.ModeLive)
	fixture.vendorFail.Store(true)

	result, err := fixture.service.SubmitRealtime(context.Background(), fixture.caller("command:realtime.write"),
		RealtimeRequest{AssetExternalID: "LAMP-001", DimPercent: 60}, nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Command.Status)
	require.NotNil(t, result.Command.Error)
	require.Contains(t, *result.Command.Error, "502")
}

func TestSubmitRealtime_MissingCredentialsFails(t *testing.T) {
	fixture := setupRelayFixture(t, tenant.ModeLive)

	// Retire the vendor credentials.
	creds, err := fixture.creds.ListForClient(fixture.client.APIClientID)
	require.NoError(t, err)
	for _, c := range creds {
		require.NoError(t, fixture.creds.Deactivate(c.CredentialID))
	}

	result, err := fixture.service.SubmitRealtime(context.Background(), fixture.caller("command:realtime.write"),
		RealtimeRequest{AssetExternalID: "LAMP-001", DimPercent: 60}, nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Command.Status)
	require.Zero(t, fixture.vendorHits.Load())
}

func TestSubmitRealtime_SimulationNeverCallsVendor(t *testing.T) {
	fixture := setupRelayFixture(t, tenant.ModeSimulation)

	result, err := fixture.service.SubmitRealtime(context.Background(), fixture.caller("command:realtime.write"),
		RealtimeRequest{AssetExternalID: "LAMP-001", DimPercent: 30}, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSimulated, result.Command.Status)
	require.Zero(t, fixture.vendorHits.Load())
}

func TestSubmitRealtime_BasicGuardrail(t *testing.T) {
	fixture := setupRelayFixture(t, tenant.ModeLive)

	_, err := fixture.service.SubmitRealtime(context.Background(), fixture.caller("command:realtime.write"),
		RealtimeRequest{AssetExternalID: "LAMP-001", DimPercent: 150}, nil)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 400, appErr.StatusCode)
	require.Contains(t, appErr.Message, "between 0 and 100")

	// Rejected commands are never persisted.
	latest, err := fixture.service.Repo().ListForAsset(assetID(t, fixture, "LAMP-001"), 10)
	require.NoError(t, err)
	require.Empty(t, latest)
}

func TestSubmitRealtime_OptimiseRequiresOverrideScope(t *testing.T) {
	fixture := setupRelayFixture(t, tenant.ModeLive)

	_, err := fixture.service.SubmitRealtime(context.Background(), fixture.caller("command:realtime.write"),
		RealtimeRequest{AssetExternalID: "LAMP-OPT", DimPercent: 60}, nil)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 403, appErr.StatusCode)
}

func TestSubmitRealtime_PolicyViolation(t *testing.T) {
	fixture := setupRelayFixture(t, tenant.ModeLive)

	_, err := fixture.policies.Create(fixture.project.ProjectID, "v1",
		map[string]any{"min_dim": 20, "max_dim": 80, "max_changes_per_hr": 6})
	require.NoError(t, err)

	caller := fixture.caller("command:realtime.write", "command:override")
	_, err = fixture.service.SubmitRealtime(context.Background(), caller,
		RealtimeRequest{AssetExternalID: "LAMP-OPT", DimPercent: 10}, nil)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 422, appErr.StatusCode)
	require.Equal(t, apperrors.ErrorCodePolicyViolation, appErr.Code)
	require.Equal(t, "Policy violation: Dimming below policy minimum: 20%", appErr.Message)

	// Within bounds the same caller relays fine.
	result, err := fixture.service.SubmitRealtime(context.Background(), caller,
		RealtimeRequest{AssetExternalID: "LAMP-OPT", DimPercent: 50}, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSent, result.Command.Status)
}

func TestSubmitRealtime_PassthroughIgnoresPolicy(t *testing.T) {
	fixture := setupRelayFixture(t, tenant.ModeLive)

	_, err := fixture.policies.Create(fixture.project.ProjectID, "v1",
		map[string]any{"min_dim": 20, "max_dim": 80, "max_changes_per_hr": 6})
	require.NoError(t, err)

	result, err := fixture.service.SubmitRealtime(context.Background(), fixture.caller("command:realtime.write"),
		RealtimeRequest{AssetExternalID: "LAMP-001", DimPercent: 5}, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSent, result.Command.Status)
}

func TestSubmitRealtime_IdempotentReplay(t *testing.T) {
	fixture := setupRelayFixture(t, tenant.ModeLive)
	caller := fixture.caller("command:realtime.write")
	key := "req-abc-123"

	first, err := fixture.service.SubmitRealtime(context.Background(), caller,
		RealtimeRequest{AssetExternalID: "LAMP-001", DimPercent: 60}, &key)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := fixture.service.SubmitRealtime(context.Background(), caller,
		RealtimeRequest{AssetExternalID: "LAMP-001", DimPercent: 60}, &key)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Command.CommandID, second.Command.CommandID)

	// The vendor saw exactly one call and the ledger has exactly one entry.
	require.Equal(t, int64(1), fixture.vendorHits.Load())
	entries, err := fixture.auditor.Query(fixture.project.ProjectID, audit.QueryFilters{Action: audit.ActionRealtimeCommand})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSubmitRealtime_KillSwitchBlocks(t *testing.T) {
	fixture := setupRelayFixture(t, tenant.ModeLive)

	_, err := fixture.auditor.ToggleKillSwitch(fixture.project.ProjectID, true, strPtr("storm damage"), "council-app")
	require.NoError(t, err)

	_, err = fixture.service.SubmitRealtime(context.Background(), fixture.caller("command:realtime.write"),
		RealtimeRequest{AssetExternalID: "LAMP-001", DimPercent: 60}, nil)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 422, appErr.StatusCode)
	require.Equal(t, apperrors.ErrorCodeKillSwitch, appErr.Code)
	require.Zero(t, fixture.vendorHits.Load())

	// Disengaging restores relay.
	_, err = fixture.auditor.ToggleKillSwitch(fixture.project.ProjectID, false, nil, "council-app")
	require.NoError(t, err)

	result, err := fixture.service.SubmitRealtime(context.Background(), fixture.caller("command:realtime.write"),
		RealtimeRequest{AssetExternalID: "LAMP-001", DimPercent: 60}, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSent, result.Command.Status)
}

func TestGetCommand_ScopedToProject(t *testing.T) {
	fixture := setupRelayFixture(t, tenant.ModeLive)

	result, err := fixture.service.SubmitRealtime(context.Background(), fixture.caller("command:realtime.write"),
		RealtimeRequest{AssetExternalID: "LAMP-001", DimPercent: 60}, nil)
	require.NoError(t, err)

	found, err := fixture.service.GetCommand(fixture.project.ProjectID, result.Command.CommandID)
	require.NoError(t, err)
	require.Equal(t, result.Command.CommandID, found.CommandID)

	other, err := fixture.tenants.CreateProject("bergen-south", "Bergen South", tenant.ModeLive)
	require.NoError(t, err)
	_, err = fixture.service.GetCommand(other.ProjectID, result.Command.CommandID)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 404, appErr.StatusCode)
}

func assetID(t *testing.T, fixture *relayFixture, externalID string) string {
	t.Helper()
	target, err := fixture.assets.Resolve(fixture.project.ProjectID, externalID)
	require.NoError(t, err)
	return target.AssetID
}
