package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/rafflepot-backend/internal/bootstrap"
	"github.com/angelmondragon/rafflepot-backend/internal/cron"
	"github.com/angelmondragon/rafflepot-backend/internal/ledger"
	"github.com/angelmondragon/rafflepot-backend/internal/payments"
	"github.com/angelmondragon/rafflepot-backend/internal/users"
	"github.com/angelmondragon/rafflepot-backend/internal/wallet"
	"github.com/angelmondragon/rafflepot-backend/pkg/metrics"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox"
	"github.com/angelmondragon/rafflepot-backend/pkg/paystack"
)

const (
	serviceKind = "cron-worker"

	// a cycle still running after this is presumed dead
	lockTTL = 30 * time.Minute
)

func main() {
	proc, err := bootstrap.Start(context.Background(), serviceKind)
	if err != nil {
		bootstrap.Fatal(serviceKind, err)
	}
	cfg, logg := proc.Config, proc.Logger

	redisClient, err := proc.Redis(context.Background())
	proc.Must("redis", err)
	gateway, err := paystack.NewClient(cfg.Paystack)
	proc.Must("paystack client", err)

	conn := proc.DB.DB()
	usersRepo := users.NewRepository(conn)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	proc.Must("ledger service", err)
	walletSvc, err := wallet.NewService(proc.DB, usersRepo, ledgerSvc, logg)
	proc.Must("wallet service", err)
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Users:   usersRepo,
		Ledger:  ledgerSvc,
		Wallet:  walletSvc,
		Gateway: gateway,
		Metrics: metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
	})
	proc.Must("payments service", err)

	deposits, err := cron.NewDepositReconcileJob(cron.DepositReconcileJobParams{
		Logger:      logg,
		Payments:    paymentsSvc,
		StaleAfter:  cfg.Cron.StaleDepositAge,
		ExpireAfter: cfg.Cron.DepositExpiry,
		BatchLimit:  cfg.Cron.DepositBatchLimit,
	})
	proc.Must("deposit reconcile job", err)
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          proc.DB,
		Events:      outbox.NewRepository(conn),
		DeadLetters: outbox.NewDLQRepository(conn),
	})
	proc.Must("outbox retention job", err)

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, serviceKind+":"+env, lockTTL)
	proc.Must("cron lock", err)

	scheduler, err := cron.NewScheduler(cron.SchedulerParams{
		Logger:  logg,
		Lock:    lock,
		Metrics: metrics.NewCronMetrics(prometheus.DefaultRegisterer),
		Tick:    cfg.Cron.Tick,
	})
	proc.Must("cron scheduler", err)
	proc.Must("deposit reconcile schedule", scheduler.Every(cfg.Cron.DepositReconcileInterval, deposits))
	proc.Must("outbox retention schedule", scheduler.Every(cfg.Cron.OutboxRetentionInterval, retention))

	ctx, stop := proc.SignalContext(nil)
	defer stop()
	logg.Info(ctx, "cron.worker_starting")

	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron.worker_stopped", err)
		proc.Shutdown(ctx, 1)
	}
	logg.Info(ctx, "cron.worker_drained")
	proc.Shutdown(ctx, 0)
}
