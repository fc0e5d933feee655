package scope

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/openlux/lumen-hub/internal/db"
)

func setupTestDB(t *testing.T) *db.DBPair {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	return dbPair
}

func TestSync(t *testing.T) {
	dbPair := setupTestDB(t)

	inserted, err := Sync(dbPair.Writer())
	require.NoError(t, err)
	require.Equal(t, len(Definitions), inserted)

	// Re-syncing inserts nothing new but refreshes descriptions.
	inserted, err = Sync(dbPair.Writer())
	require.NoError(t, err)
	require.Zero(t, inserted)

	defs, err := All(dbPair.Reader())
	require.NoError(t, err)
	require.Len(t, defs, len(Definitions))
}

func TestAll_Sorted(t *testing.T) {
	dbPair := setupTestDB(t)
	_, err := Sync(dbPair.Writer())
	require.NoError(t, err)

	defs, err := All(dbPair.Reader())
	require.NoError(t, err)
	for i := 1; i < len(defs); i++ {
		require.Less(t, defs[i-1].Code, defs[i].Code)
	}
}

func TestValidate(t *testing.T) {
	dbPair := setupTestDB(t)
	_, err := Sync(dbPair.Writer())
	require.NoError(t, err)

	invalid, err := Validate(dbPair.Reader(), []string{"asset:read", "command:realtime.write"})
	require.NoError(t, err)
	require.Empty(t, invalid)

	invalid, err = Validate(dbPair.Reader(), []string{"asset:read", "asset:delete", "root"})
	require.NoError(t, err)
	require.Equal(t, []string{"asset:delete", "root"}, invalid)
}

func TestRecommended_CoveredByCatalogue(t *testing.T) {
	known := make(map[string]bool, len(Definitions))
	for _, def := range Definitions {
		known[def.Code] = true
	}
	for name, scopes := range Recommended {
		for _, code := range scopes {
			require.True(t, known[code], "recommended set %s references unknown scope %s", name, code)
		}
	}
}
