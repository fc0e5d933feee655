package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openlux/lumen-hub/internal/alert"
	"github.com/openlux/lumen-hub/internal/audit"
	"github.com/openlux/lumen-hub/internal/credential"
	"github.com/openlux/lumen-hub/internal/exedra"
	"github.com/openlux/lumen-hub/internal/tenant"
)

// Commissioner drives the pending_commission retry loop. Each schedule gets
// up to MaxCommissionAttempts vendor commissioning attempts, spaced at least
// MinRetrySpacing apart; exhaustion is terminal and alerts the project
// contact exactly once.
type Commissioner struct {
	logger            *log.Logger
	repo              *Repository
	tenants           *tenant.Repository
	credentials       *credential.Service
	gateway           *exedra.Gateway
	auditor           *audit.Service
	mailer            *alert.Mailer
	commissionTimeout time.Duration
	batchSize         int
}

// NewCommissioner creates a Commissioner.
func NewCommissioner(repo *Repository, tenants *tenant.Repository, credentials *credential.Service, gateway *exedra.Gateway, auditor *audit.Service, mailer *alert.Mailer, commissionTimeout time.Duration, batchSize int, logger *log.Logger) *Commissioner {
	if logger == nil {
		logger = log.Default()
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	if commissionTimeout <= 0 {
		commissionTimeout = exedra.DefaultCommissionTimeout
	}
	return &Commissioner{
		logger:            logger,
		repo:              repo,
		tenants:           tenants,
		credentials:       credentials,
		gateway:           gateway,
		auditor:           auditor,
		mailer:            mailer,
		commissionTimeout: commissionTimeout,
		batchSize:         batchSize,
	}
}

// CommissionSchedule runs one commissioning attempt for a schedule. The
// attempt counter is consumed before the vendor call. Success promotes the
// schedule to active; the final failure transitions it to failed and sends
// the alert.
func (c *Commissioner) CommissionSchedule(ctx context.Context, job PendingJob) error {
	current, err := c.repo.Get(job.ScheduleID)
	if err != nil {
		return err
	}
	if current == nil || current.Status != StatusPendingCommission {
		return nil
	}

	if current.IsSimulated {
		// Simulation never touches the vendor and consumes no attempts.
		return c.succeed(job, 0, true)
	}
	if current.CommissionAttempts >= MaxCommissionAttempts {
		return nil
	}

	attempts, err := c.repo.IncrementAttempt(job.ScheduleID, time.Now())
	if err != nil {
		return err
	}

	vendorErr := c.callVendor(ctx, job)
	if vendorErr == nil {
		return c.succeed(job, attempts, false)
	}

	c.logger.Printf("commissioning attempt %d/%d failed for schedule %s: %v",
		attempts, MaxCommissionAttempts, job.ScheduleID, vendorErr)

	if attempts < MaxCommissionAttempts {
		return c.repo.RecordCommissionError(job.ScheduleID, vendorErr.Error())
	}
	return c.exhaust(job, vendorErr)
}

func (c *Commissioner) callVendor(ctx context.Context, job PendingJob) error {
	client, err := c.tenants.FirstActiveClient(job.ProjectID)
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("no active api client holds vendor credentials")
	}
	cfg, err := c.credentials.GetExedraConfig(client.APIClientID, credential.DefaultEnvironment)
	if err != nil {
		return err
	}

	_, err = c.gateway.CommissionDevice(ctx, cfg.Token, cfg.BaseURL, job.AssetExternalID, nil, c.commissionTimeout)
	return err
}

func (c *Commissioner) succeed(job PendingJob, attempts int, simulated bool) error {
	if err := c.repo.MarkActive(job.ScheduleID); err != nil {
		return err
	}
	_, err := c.auditor.Record(audit.RecordInput{
		Actor:     audit.ActorSystem,
		ProjectID: &job.ProjectID,
		Action:    audit.ActionScheduleCommission,
		Entity:    "schedule",
		EntityID:  job.ScheduleID,
		Details: map[string]any{
			"asset_external_id": job.AssetExternalID,
			"result":            "active",
			"attempts":          attempts,
			"simulated":         simulated,
		},
	})
	return err
}

// exhaust handles the terminal transition: failed status, audit entry, and
// one alert email to the project's first client contact. A missing contact
// address is a hard failure of the alerting path, not a silent skip.
func (c *Commissioner) exhaust(job PendingJob, vendorErr error) error {
	if err := c.repo.MarkFailed(job.ScheduleID, vendorErr.Error()); err != nil {
		return err
	}
	_, auditErr := c.auditor.Record(audit.RecordInput{
		Actor:     audit.ActorSystem,
		ProjectID: &job.ProjectID,
		Action:    audit.ActionScheduleCommission,
		Entity:    "schedule",
		EntityID:  job.ScheduleID,
		Details: map[string]any{
			"asset_external_id": job.AssetExternalID,
			"result":            "failed",
			"attempts":          MaxCommissionAttempts,
			"error":             vendorErr.Error(),
		},
	})
	if auditErr != nil {
		return auditErr
	}

	client, err := c.tenants.FirstActiveClient(job.ProjectID)
	if err != nil {
		return err
	}
	if client == nil || client.ContactEmail == nil || *client.ContactEmail == "" {
		return fmt.Errorf("no contact email for project %s, commissioning alert undeliverable", job.ProjectID)
	}
	return c.mailer.SendCommissionFailure(*client.ContactEmail, job.AssetExternalID, vendorErr.Error())
}

// ProcessPending runs one sweep: select eligible schedules up to the batch
// size and commission them concurrently, one goroutine per schedule. A
// schedule's failure never blocks its siblings. A non-empty projectID
// confines the sweep to that project; the manual trigger route always
// passes the caller's project so one tenant can never touch another's
// pending schedules.
func (c *Commissioner) ProcessPending(ctx context.Context, projectID string) (*ProcessReport, error) {
	jobs, err := c.repo.PendingEligible(projectID, c.batchSize, time.Now())
	if err != nil {
		return nil, fmt.Errorf("select pending schedules: %w", err)
	}

	report := &ProcessReport{Selected: len(jobs)}
	if len(jobs) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job PendingJob) {
			defer wg.Done()
			err := c.CommissionSchedule(ctx, job)

			final, getErr := c.repo.Get(job.ScheduleID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", job.ScheduleID, err))
			}
			if getErr != nil || final == nil {
				return
			}
			switch final.Status {
			case StatusActive:
				report.Succeeded++
			case StatusFailed:
				report.Failed++
			case StatusPendingCommission:
				report.Retried++
			}
		}(job)
	}
	wg.Wait()

	return report, nil
}

// StartRunner registers the periodic fleet-wide sweep on a cron scheduler.
func (c *Commissioner) StartRunner(scheduler *cron.Cron, interval time.Duration) error {
	_, err := scheduler.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		report, err := c.ProcessPending(context.Background(), "")
		if err != nil {
			c.logger.Printf("commissioning sweep failed: %v", err)
			return
		}
		if report.Selected > 0 {
			c.logger.Printf("commissioning sweep: selected=%d active=%d retried=%d failed=%d",
				report.Selected, report.Succeeded, report.Retried, report.Failed)
		}
	})
	return err
}
