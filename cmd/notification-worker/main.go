package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/rafflepot-backend/internal/bootstrap"
	"github.com/angelmondragon/rafflepot-backend/internal/notifications"
	"github.com/angelmondragon/rafflepot-backend/internal/users"
	"github.com/angelmondragon/rafflepot-backend/pkg/idempotency"
	"github.com/angelmondragon/rafflepot-backend/pkg/mailer"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox/registry"
)

const serviceKind = "notification-worker"

func main() {
	proc, err := bootstrap.Start(context.Background(), serviceKind)
	if err != nil {
		bootstrap.Fatal(serviceKind, err)
	}
	cfg, logg := proc.Config, proc.Logger

	redisClient, err := proc.Redis(context.Background())
	proc.Must("redis", err)
	pubsubClient, err := proc.PubSub(context.Background())
	proc.Must("pubsub", err)

	smtp, err := mailer.New(cfg.SMTP)
	proc.Must("mailer", err)
	guard, err := idempotency.ConsumerGuard(redisClient, notifications.WinnerNoticeConsumer, cfg.Eventing.OutboxIdempotencyTTL)
	proc.Must("idempotency guard", err)
	catalog, err := registry.NewCatalog(cfg.PubSub)
	proc.Must("event catalog", err)

	winners, err := notifications.NewConsumer(notifications.ConsumerParams{
		Users:        users.NewRepository(proc.DB.DB()),
		Notifier:     smtp,
		Idempotency:  guard,
		Catalog:      catalog,
		Subscription: pubsubClient.DrawSubscription(),
		MaxAttempts:  cfg.Notify.MaxAttempts,
		Logger:       logg,
	})
	proc.Must("winner notification consumer", err)

	service, err := NewService(ServiceParams{
		Logger: logg,
		DB:     proc.DB,
		Redis:  redisClient,
		PubSub: pubsubClient,
		Consumers: map[string]runner{
			notifications.WinnerNoticeConsumer: winners,
		},
	})
	proc.Must("notification worker", err)

	ctx, stop := proc.SignalContext(nil)
	defer stop()
	logg.Info(ctx, "notify.worker_starting")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "notify.worker_stopped", err)
		proc.Shutdown(ctx, 1)
	}
	logg.Info(ctx, "notify.worker_drained")
	proc.Shutdown(ctx, 0)
}
