package audit

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/tenant"
)

func setupTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	project, err := tenant.NewRepository(dbPair).CreateProject("oslo-north", "Oslo North", tenant.ModeLive)
	require.NoError(t, err)

	return NewService(dbPair, nil), project.ProjectID
}

func strPtr(s string) *string { return &s }

func TestRecordAndQuery(t *testing.T) {
	service, projectID := setupTestService(t)

	entry, err := service.Record(RecordInput{
		Actor:     ActorAPI,
		ProjectID: &projectID,
		Action:    ActionRealtimeCommand,
		Entity:    "command",
		EntityID:  "cmd-1",
		Details:   map[string]any{"level": 40},
	})
	require.NoError(t, err)
	require.NotZero(t, entry.AuditLogID)
	require.False(t, entry.Timestamp.IsZero())

	entries, err := service.Query(projectID, QueryFilters{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ActionRealtimeCommand, entries[0].Action)
	// Details round-trip through JSON, so numbers come back as float64.
	require.Equal(t, float64(40), entries[0].Details["level"])
}

func TestQueryFilters(t *testing.T) {
	service, projectID := setupTestService(t)

	for i := 0; i < 3; i++ {
		_, err := service.Record(RecordInput{
			Actor: ActorAPI, ProjectID: &projectID,
			Action: ActionRealtimeCommand, Entity: "command", EntityID: "cmd-1",
		})
		require.NoError(t, err)
	}
	_, err := service.Record(RecordInput{
		Actor: ActorAPI, ProjectID: &projectID,
		Action: ActionPolicyUpdate, Entity: "policy", EntityID: "pol-1",
	})
	require.NoError(t, err)

	byAction, err := service.Query(projectID, QueryFilters{Action: ActionPolicyUpdate})
	require.NoError(t, err)
	require.Len(t, byAction, 1)

	byEntity, err := service.Query(projectID, QueryFilters{Entity: "command"})
	require.NoError(t, err)
	require.Len(t, byEntity, 3)

	page, err := service.Query(projectID, QueryFilters{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
}

func TestQueryScopedToProject(t *testing.T) {
	service, projectID := setupTestService(t)

	_, err := service.Record(RecordInput{
		Actor: ActorAPI, ProjectID: &projectID,
		Action: ActionSensorIngest, Entity: "sensor", EntityID: "CAM-001",
	})
	require.NoError(t, err)

	entries, err := service.Query("no-such-project", QueryFilters{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestKillSwitch_DisabledWithoutToggle(t *testing.T) {
	service, projectID := setupTestService(t)

	state, err := service.KillSwitch(projectID)
	require.NoError(t, err)
	require.False(t, state.Enabled)
	require.Equal(t, ActorSystem, state.ChangedBy)
	require.Nil(t, state.Reason)
}

func TestKillSwitch_DerivedFromLatestToggle(t *testing.T) {
	service, projectID := setupTestService(t)

	_, err := service.ToggleKillSwitch(projectID, true, strPtr("storm damage"), "council-app")
	require.NoError(t, err)

	state, err := service.KillSwitch(projectID)
	require.NoError(t, err)
	require.True(t, state.Enabled)
	require.Equal(t, ActorAPI, state.ChangedBy)
	require.NotNil(t, state.Reason)
	require.Equal(t, "storm damage", *state.Reason)

	// A later toggle wins; the old entry stays in the ledger.
	_, err = service.ToggleKillSwitch(projectID, false, nil, "council-app")
	require.NoError(t, err)

	state, err = service.KillSwitch(projectID)
	require.NoError(t, err)
	require.False(t, state.Enabled)
	require.Nil(t, state.Reason)

	entries, err := service.Query(projectID, QueryFilters{Action: ActionKillSwitchToggle})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestLatestByAction(t *testing.T) {
	service, projectID := setupTestService(t)

	latest, err := service.Repo().LatestByAction(projectID, ActionKillSwitchToggle)
	require.NoError(t, err)
	require.Nil(t, latest)

	_, err = service.ToggleKillSwitch(projectID, true, nil, "council-app")
	require.NoError(t, err)
	second, err := service.ToggleKillSwitch(projectID, false, nil, "council-app")
	require.NoError(t, err)

	latest, err = service.Repo().LatestByAction(projectID, ActionKillSwitchToggle)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, second.AuditLogID, latest.AuditLogID)
}

func TestRecordFailure(t *testing.T) {
	service, projectID := setupTestService(t)

	service.RecordFailure(projectID, "command", "cmd-9", "dial tcp: refused", "Vendor relay failed")

	entries, err := service.Query(projectID, QueryFilters{Entity: "command"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "dial tcp: refused", entries[0].Details["technical_error"])
	require.Equal(t, "Vendor relay failed", entries[0].Details["user_message"])
}
