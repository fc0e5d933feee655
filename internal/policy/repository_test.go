package policy

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/tenant"
)

func setupTestDB(t *testing.T) (*Repository, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	project, err := tenant.NewRepository(dbPair).CreateProject("oslo-north", "Oslo North", tenant.ModeLive)
	require.NoError(t, err)

	return NewRepository(dbPair), project.ProjectID
}

func TestRepository_CurrentEmpty(t *testing.T) {
	repo, projectID := setupTestDB(t)

	current, err := repo.Current(projectID)
	require.NoError(t, err)
	require.Nil(t, current)
}

func TestRepository_CreateAndCurrent(t *testing.T) {
	repo, projectID := setupTestDB(t)

	first, err := repo.Create(projectID, "v1", map[string]any{"min_dim": 20, "max_dim": 80, "max_changes_per_hr": 4})
	require.NoError(t, err)
	require.NotEmpty(t, first.PolicyID)
	require.Equal(t, "v1", first.Version)
	require.Equal(t, 20, first.MinDim())
	require.Equal(t, 80, first.MaxDim())

	second, err := repo.Create(projectID, "v2", map[string]any{"min_dim": 30, "max_dim": 70, "max_changes_per_hr": 4})
	require.NoError(t, err)

	current, err := repo.Current(projectID)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, second.PolicyID, current.PolicyID)
	require.Equal(t, "v2", current.Version)

	// The superseded version is still retrievable; nothing is deleted.
	kept, err := repo.Get(first.PolicyID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	require.Equal(t, "v1", kept.Version)
}

func TestRepository_History(t *testing.T) {
	repo, projectID := setupTestDB(t)

	for _, version := range []string{"v1", "v2", "v3"} {
		_, err := repo.Create(projectID, version, map[string]any{"min_dim": 10, "max_dim": 90, "max_changes_per_hr": 2})
		require.NoError(t, err)
	}

	history, err := repo.History(projectID, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "v3", history[0].Version)

	limited, err := repo.History(projectID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestRepository_CurrentTieBreaksOnInsertionOrder(t *testing.T) {
	repo, projectID := setupTestDB(t)

	// Two policies with an identical active_from. The ids are chosen so that
	// id ordering would pick the older row; insertion order must win.
	activeFrom := "2026-08-29T12:00:00Z"
	insert := func(policyID, version string) {
		_, err := repo.writer.Exec(`
			INSERT INTO policies (policy_id, project_id, version, body, active_from)
			VALUES (?, ?, ?, ?, ?)
		`, policyID, projectID, version, `{"min_dim":20,"max_dim":80,"max_changes_per_hr":4}`, activeFrom)
		require.NoError(t, err)
	}
	insert("ffffffff-0000-4000-8000-000000000000", "v1")
	insert("00000000-0000-4000-8000-000000000000", "v2")

	current, err := repo.Current(projectID)
	require.NoError(t, err)
	require.Equal(t, "v2", current.Version)

	history, err := repo.History(projectID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "v2", history[0].Version)
}
