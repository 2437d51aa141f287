package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/rafflepot-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/rafflepot-backend/api/controllers/webhooks"
	"github.com/angelmondragon/rafflepot-backend/api/middleware"
	"github.com/angelmondragon/rafflepot-backend/pkg/config"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

// RedisStore is the slice of the redis client the HTTP layer needs.
type RedisStore interface {
	middleware.ReplayStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type webhookGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type paystackClient interface {
	SecretKey() string
}

// Dependencies groups everything NewRouter wires into handlers.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Tokens   middleware.TokenVerifier
	DB       controllers.Pinger
	Redis    RedisStore
	Gatherer prometheus.Gatherer

	Wallet         controllers.WalletService
	Points         controllers.PointsAwarder
	Deposits       controllers.DepositService
	Withdrawals    controllers.WithdrawalService
	WithdrawalsAdm controllers.WithdrawalAdminService
	Tickets        controllers.TicketService
	Draws          controllers.DrawService

	Webhooks     webhookcontrollers.PaystackWebhookService
	Paystack     paystackClient
	WebhookGuard webhookGuard
}

func NewRouter(d Dependencies) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	moneyPolicy := middleware.NewRateLimitPolicy("money", cfg.RateLimit.Window, cfg.RateLimit.MoneyLimit)
	webhookPolicy := middleware.NewRateLimitPolicy("webhook", cfg.RateLimit.Window, cfg.RateLimit.WebhookLimit)

	idempotent := middleware.Idempotency(d.Redis, cfg.Eventing.RequestIdempotencyTTL, logg)
	limited := middleware.RateLimit(moneyPolicy, d.Redis, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, map[string]controllers.Pinger{
			"db":    d.DB,
			"redis": d.Redis,
		}, logg))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, d.Redis, logg)).
			Post("/paystack", webhookcontrollers.PaystackWebhook(d.Webhooks, d.Paystack, d.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(d.Tokens, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletBalance(d.Wallet, logg))
			r.Get("/transactions", controllers.WalletTransactions(d.Wallet, logg))
			r.With(limited, idempotent).Post("/deposits", controllers.InitiateDeposit(d.Deposits, logg))
			r.With(limited).Post("/deposits/{reference}/verify", controllers.VerifyDeposit(d.Deposits, logg))
			r.With(limited, idempotent).Post("/withdrawals", controllers.RequestWithdrawal(d.Withdrawals, logg))
			r.Get("/withdrawals", controllers.ListWithdrawals(d.Withdrawals, logg))
		})

		r.With(limited, idempotent).Post("/raffles/{raffleId}/tickets", controllers.BuyTicket(d.Tickets, logg))
		r.Get("/tickets", controllers.ListTickets(d.Tickets, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(d.Tokens, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))

		r.With(idempotent).Post("/raffles/{raffleId}/draw", controllers.AdminRunDraw(d.Draws, logg))
		r.Get("/raffles/{raffleId}/tickets", controllers.AdminRaffleTickets(d.Tickets, logg))
		r.Get("/withdrawals", controllers.AdminListWithdrawals(d.WithdrawalsAdm, logg))
		r.With(idempotent).Post("/withdrawals/{id}/approve", controllers.AdminApproveWithdrawal(d.WithdrawalsAdm, logg))
		r.With(idempotent).Post("/withdrawals/{id}/reject", controllers.AdminRejectWithdrawal(d.WithdrawalsAdm, logg))
		r.With(idempotent).Post("/users/{userId}/points", controllers.AdminAwardPoints(d.Points, logg))
	})

	return r
}
