package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/rafflepot-backend/internal/payments"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

const (
	defaultStaleDepositAge   = 30 * time.Minute
	defaultDepositExpiry     = 24 * time.Hour
	defaultDepositBatchLimit = 100
)

type depositReconciler interface {
	ReconcileStale(ctx context.Context, staleAfter, expireAfter time.Duration, limit int) (payments.ReconcileSummary, error)
}

type DepositReconcileJobParams struct {
	Logger      *logger.Logger
	Payments    depositReconciler
	StaleAfter  time.Duration
	ExpireAfter time.Duration
	BatchLimit  int
}

// NewDepositReconcileJob re-verifies deposits whose webhook or client verify
// never arrived.
func NewDepositReconcileJob(params DepositReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	job := &depositReconcileJob{
		logg:        params.Logger,
		payments:    params.Payments,
		staleAfter:  params.StaleAfter,
		expireAfter: params.ExpireAfter,
		limit:       params.BatchLimit,
	}
	if job.staleAfter <= 0 {
		job.staleAfter = defaultStaleDepositAge
	}
	if job.expireAfter <= 0 {
		job.expireAfter = defaultDepositExpiry
	}
	if job.expireAfter < job.staleAfter {
		return nil, fmt.Errorf("deposit expiry %s shorter than stale age %s", job.expireAfter, job.staleAfter)
	}
	if job.limit <= 0 {
		job.limit = defaultDepositBatchLimit
	}
	return job, nil
}

type depositReconcileJob struct {
	logg        *logger.Logger
	payments    depositReconciler
	staleAfter  time.Duration
	expireAfter time.Duration
	limit       int
}

func (j *depositReconcileJob) Name() string { return "deposit-reconcile" }

func (j *depositReconcileJob) Run(ctx context.Context) error {
	summary, err := j.payments.ReconcileStale(ctx, j.staleAfter, j.expireAfter, j.limit)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":   summary.Checked,
		"completed": summary.Completed,
		"failed":    summary.Failed,
		"expired":   summary.Expired,
	})
	if err != nil {
		j.logg.Warn(logCtx, "deposit reconcile finished with errors")
		return fmt.Errorf("deposit reconcile: %w", err)
	}
	if summary.Checked > 0 {
		j.logg.Info(logCtx, "deposit reconcile complete")
	}
	return nil
}
