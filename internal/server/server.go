package server

import (
	"context"
	"log"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/openlux/lumen-hub/internal/admin"
	"github.com/openlux/lumen-hub/internal/alert"
	"github.com/openlux/lumen-hub/internal/api"
	"github.com/openlux/lumen-hub/internal/asset"
	"github.com/openlux/lumen-hub/internal/audit"
	"github.com/openlux/lumen-hub/internal/auth"
	"github.com/openlux/lumen-hub/internal/command"
	"github.com/openlux/lumen-hub/internal/config"
	"github.com/openlux/lumen-hub/internal/credential"
	"github.com/openlux/lumen-hub/internal/db"
	"github.com/openlux/lumen-hub/internal/exedra"
	"github.com/openlux/lumen-hub/internal/policy"
	"github.com/openlux/lumen-hub/internal/schedule"
	"github.com/openlux/lumen-hub/internal/scope"
	"github.com/openlux/lumen-hub/internal/sensor"
	"github.com/openlux/lumen-hub/internal/tenant"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// Options controls server wiring.
type Options struct {
	// DisableCommissionRunner skips the background cron that retries
	// pending schedule commissions (for tests).
	DisableCommissionRunner bool
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	if n, err := scope.Sync(dbPair.Writer()); err != nil {
		dbPair.Close()
		return nil, nil, err
	} else if n > 0 {
		log.Printf("Registered %d new scopes", n)
	}

	cipher, err := credential.NewCipher(cfg.CredentialEncryptionKey)
	if err != nil {
		dbPair.Close()
		return nil, nil, err
	}

	tenantRepo := tenant.NewRepository(dbPair)

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg, tenantRepo))

	registerHealthRoutes(router)

	gateway := exedra.NewGateway(time.Duration(cfg.ExedraTimeoutSec)*time.Second, cfg.ExedraVerifySSL, nil)
	mailer := alert.NewMailer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom, nil)

	auditService := audit.NewService(dbPair, nil)
	credentialService := credential.NewService(dbPair, cipher, nil)
	policyRepo := policy.NewRepository(dbPair)

	assetService := asset.NewService(dbPair, tenantRepo, credentialService, gateway, auditService, nil)
	asset.RegisterRoutes(router, assetService)
	asset.RegisterOpsRoutes(router, assetService)

	sensorService := sensor.NewService(dbPair, auditService, nil)
	sensor.RegisterRoutes(router, sensorService)
	sensor.RegisterOpsRoutes(router, sensorService)

	commandService := command.NewService(dbPair, assetService, policyRepo, tenantRepo, credentialService, gateway, auditService, nil)
	command.RegisterRoutes(router, commandService)

	scheduleService := schedule.NewService(dbPair, assetService, tenantRepo, credentialService, gateway, auditService, nil)
	commissioner := schedule.NewCommissioner(
		scheduleService.Repo(),
		tenantRepo,
		credentialService,
		gateway,
		auditService,
		mailer,
		time.Duration(cfg.CommissionTimeout)*time.Second,
		cfg.CommissionBatch,
		nil,
	)
	scheduleService.AttachCommissioner(commissioner)
	schedule.RegisterRoutes(router, scheduleService, commissioner)

	adminService := admin.NewService(dbPair.Reader(), tenantRepo, policyRepo, credentialService, auditService, nil)
	admin.RegisterRoutes(router, adminService, auditService)
	admin.RegisterOpsRoutes(router, adminService)

	var scheduler *cron.Cron
	if !options.DisableCommissionRunner {
		scheduler = cron.New()
		interval := time.Duration(cfg.CommissionInterval) * time.Second
		if err := commissioner.StartRunner(scheduler, interval); err != nil {
			dbPair.Close()
			return nil, nil, err
		}
		scheduler.Start()
	}

	shutdown := func(ctx context.Context) error {
		if scheduler != nil {
			stopCtx := scheduler.Stop()
			if ctx != nil {
				select {
				case <-stopCtx.Done():
				case <-ctx.Done():
				}
			} else {
				<-stopCtx.Done()
			}
		}
		return dbPair.Close()
	}

	return router, shutdown, nil
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "lumen-hub",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
