package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/rafflepot-backend/api/routes"
	"github.com/angelmondragon/rafflepot-backend/internal/bootstrap"
	"github.com/angelmondragon/rafflepot-backend/internal/draws"
	"github.com/angelmondragon/rafflepot-backend/internal/ledger"
	"github.com/angelmondragon/rafflepot-backend/internal/payments"
	"github.com/angelmondragon/rafflepot-backend/internal/raffles"
	"github.com/angelmondragon/rafflepot-backend/internal/tickets"
	"github.com/angelmondragon/rafflepot-backend/internal/users"
	"github.com/angelmondragon/rafflepot-backend/internal/wallet"
	"github.com/angelmondragon/rafflepot-backend/internal/withdrawals"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	"github.com/angelmondragon/rafflepot-backend/pkg/idempotency"
	"github.com/angelmondragon/rafflepot-backend/pkg/metrics"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox"
	"github.com/angelmondragon/rafflepot-backend/pkg/paystack"
)

const (
	serviceKind     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	proc, err := bootstrap.Start(context.Background(), serviceKind)
	if err != nil {
		bootstrap.Fatal(serviceKind, err)
	}
	cfg, logg, dbClient := proc.Config, proc.Logger, proc.DB

	redisClient, err := proc.Redis(context.Background())
	proc.Must("redis", err)

	paystackClient, err := paystack.NewClient(cfg.Paystack)
	proc.Must("paystack client", err)

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	conn := dbClient.DB()
	usersRepo := users.NewRepository(conn)
	rafflesRepo := raffles.NewRepository(conn)
	ticketsRepo := tickets.NewRepository(conn)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	proc.Must("ledger service", err)
	walletSvc, err := wallet.NewService(dbClient, usersRepo, ledgerSvc, logg)
	proc.Must("wallet service", err)

	withdrawalsSvc, err := withdrawals.NewService(withdrawals.ServiceParams{
		DB:          dbClient,
		Users:       usersRepo,
		Withdrawals: withdrawals.NewRepository(conn),
		Ledger:      ledgerSvc,
		Wallet:      walletSvc,
		Gateway:     paystackClient,
		MinAmount:   cfg.Raffle.WithdrawalMin,
		Metrics:     ledgerMetrics,
		Logger:      logg,
	})
	proc.Must("withdrawals service", err)

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Users:     usersRepo,
		Ledger:    ledgerSvc,
		Wallet:    walletSvc,
		Gateway:   paystackClient,
		Transfers: withdrawalsSvc,
		Metrics:   ledgerMetrics,
		Logger:    logg,
	})
	proc.Must("payments service", err)

	ticketsSvc, err := tickets.NewService(tickets.ServiceParams{
		DB:          dbClient,
		Users:       usersRepo,
		Raffles:     rafflesRepo,
		Tickets:     ticketsRepo,
		Wallet:      walletSvc,
		DefaultRate: cfg.Raffle.PointsPerCurrencyUnit,
		Metrics:     ledgerMetrics,
		Logger:      logg,
	})
	proc.Must("tickets service", err)

	drawsSvc, err := draws.NewService(draws.ServiceParams{
		DB:      dbClient,
		Raffles: rafflesRepo,
		Tickets: ticketsRepo,
		Ledger:  ledgerSvc,
		Outbox:  outbox.NewEmitter(outbox.NewRepository(conn), logg),
		Metrics: ledgerMetrics,
		Logger:  logg,
	})
	proc.Must("draws service", err)

	webhookGuard, err := idempotency.NewGuard(redisClient, "paystack", cfg.Eventing.WebhookIdempotencyTTL)
	proc.Must("paystack webhook guard", err)

	tokens, err := auth.NewTokens(cfg.JWT)
	proc.Must("jwt tokens", err)

	handler := routes.NewRouter(routes.Dependencies{
		Config:         cfg,
		Logger:         logg,
		Tokens:         tokens,
		DB:             dbClient,
		Redis:          redisClient,
		Gatherer:       prometheus.DefaultGatherer,
		Wallet:         walletSvc,
		Points:         walletSvc,
		Deposits:       paymentsSvc,
		Withdrawals:    withdrawalsSvc,
		WithdrawalsAdm: withdrawalsSvc,
		Tickets:        ticketsSvc,
		Draws:          drawsSvc,
		Webhooks:       paymentsSvc,
		Paystack:       paystackClient,
		WebhookGuard:   webhookGuard,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := proc.SignalContext(map[string]any{"addr": addr})
	defer stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			proc.Shutdown(ctx, 1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
	}
	logg.Info(ctx, "api server shutting down gracefully")
	proc.Shutdown(ctx, 0)
}
