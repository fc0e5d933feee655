package auth

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/openlux/lumen-hub/internal/config"
	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/tenant"
)

type middlewareFixture struct {
	router  http.Handler
	rawKey  string
	project *tenant.Project
	cfg     config.Config
}

func setupMiddleware(t *testing.T) *middlewareFixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	repo := tenant.NewRepository(dbPair)
	project, err := repo.CreateProject("oslo-north", "Oslo North", tenant.ModeLive)
	require.NoError(t, err)
	client, err := repo.CreateClient(project.ProjectID, "council-app", nil)
	require.NoError(t, err)

	keyID, rawKey, err := MintKey()
	require.NoError(t, err)
	hash, err := HashKey(rawKey)
	require.NoError(t, err)
	_, err = repo.InsertKey(keyID, client.APIClientID, hash, []string{"asset:read"})
	require.NoError(t, err)

	cfg := config.Config{
		OperatorTokenSecret:    "an-operator-secret-of-sufficient-length",
		OperatorTokenExpirySec: 3600,
	}

	router := chi.NewRouter()
	router.Use(Middleware(cfg, repo))
	router.Get("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/v1/{project_code}/assets", func(w http.ResponseWriter, r *http.Request) {
		authed, ok := ClientFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, project.ProjectID, authed.Project.ProjectID)
		require.True(t, authed.HasScope("asset:read"))
		require.False(t, authed.HasScope("asset:write"))
		w.WriteHeader(http.StatusOK)
	})
	router.Post("/v1/ops/projects", func(w http.ResponseWriter, r *http.Request) {
		subject, ok := OperatorFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, "alice", subject)
		w.WriteHeader(http.StatusCreated)
	})

	return &middlewareFixture{router: router, rawKey: rawKey, project: project, cfg: cfg}
}

func TestMiddleware_HealthIsPublic(t *testing.T) {
	fixture := setupMiddleware(t)

	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_ValidKey(t *testing.T) {
	fixture := setupMiddleware(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/oslo-north/assets", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.rawKey)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_MissingHeader(t *testing.T) {
	fixture := setupMiddleware(t)

	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/oslo-north/assets", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_WrongKey(t *testing.T) {
	fixture := setupMiddleware(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/oslo-north/assets", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.rawKey[:8]+"deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_UnknownProject(t *testing.T) {
	fixture := setupMiddleware(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/no-such-project/assets", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.rawKey)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMiddleware_OperatorToken(t *testing.T) {
	fixture := setupMiddleware(t)

	token, err := GenerateOperatorToken(fixture.cfg, "alice")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/ops/projects", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestMiddleware_OpsRejectsAPIKey(t *testing.T) {
	fixture := setupMiddleware(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/ops/projects", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.rawKey)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
