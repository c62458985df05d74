package job

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/logger"
)

// ChainVerifier checks the audit chains of recently active contracts.
// ChainVerifier re-hashes the chains of contracts active since a point in time.
type ChainVerifier interface {
	VerifyActive(ctx context.Context, since time.Time) ([]domain.ChainReport, error)
}

// AuditVerifier periodically re-hashes recent audit chains and logs any break.
type AuditVerifier struct {
	verifier ChainVerifier
	lookback time.Duration
	timeout  time.Duration
	logger   logger.Logger
	cron     *cron.Cron
	now      func() time.Time
}

// NewAuditVerifier creates a verifier checking chains active within lookback.
func NewAuditVerifier(verifier ChainVerifier, lookback time.Duration, log logger.Logger) *AuditVerifier {
	return &AuditVerifier{
		verifier: verifier,
		lookback: lookback,
		timeout:  5 * time.Minute,
		logger:   log.WithFields(map[string]interface{}{"job": "audit_verifier"}),
		cron:     cron.New(),
		now:      time.Now,
	}
}

// Start schedules RunOnce on schedule (a standard five-field cron or a descriptor
// such as "@every 15m") and starts the scheduler.
func (j *AuditVerifier) Start(schedule string) error {
	_, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		_, _ = j.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid audit verify schedule %q: %w", schedule, err)
	}

	j.cron.Start()
	j.logger.Info(context.Background(), "Audit verifier scheduled", map[string]interface{}{
		"schedule": schedule,
		"lookback": j.lookback.String(),
	})
	return nil
}

// Stop stops scheduling and waits for a running verification, or for ctx.
func (j *AuditVerifier) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce verifies every chain touched within the lookback window and
// returns the broken ones.
func (j *AuditVerifier) RunOnce(ctx context.Context) ([]domain.ChainReport, error) {
	start := j.now()
	reports, err := j.verifier.VerifyActive(ctx, start.Add(-j.lookback))
	if err != nil {
		j.logger.Error(ctx, "Audit verification failed", err, nil)
		return nil, err
	}

	var broken []domain.ChainReport
	for _, r := range reports {
		if r.Valid {
			continue
		}
		broken = append(broken, r)
		logger.LogSecurityEvent(ctx, j.logger, "audit_chain_broken", "HIGH", map[string]interface{}{
			"contract_id": r.ContractID,
			"broken_at":   r.BrokenAt,
			"reason":      r.Reason,
		})
	}

	logger.LogPerformance(ctx, j.logger, "audit_verify", time.Since(start), map[string]interface{}{
		"contracts": len(reports),
		"broken":    len(broken),
	})
	return broken, nil
}
