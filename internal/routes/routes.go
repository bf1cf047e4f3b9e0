package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/clock"
	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/funding"
	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/payments"
	"github.com/congo-pay/wallet_ledger/internal/paystack"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Optional overrides, mainly for tests.
	Registry *prometheus.Registry
	Gateway  funding.Gateway
	Clock    clock.Clock

	IdentityOptions []identity.Option
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d, reg)

	// Services and handlers
	var (
		store        ledger.Store
		identityRepo identity.Repository
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		d.Logger.Warn("no database configured, using in-memory ledger")
		store = ledger.NewInMemory()
		identityRepo = identity.NewMemoryRepository()
	}

	m := metrics.New(reg)
	notifier := notification.NewLoggerNotifier(d.Logger)
	identitySvc := identity.NewService(identityRepo, d.Clock, d.IdentityOptions...)
	walletSvc := wallet.NewService(store, wallet.Options{
		Clock:    d.Clock,
		Cache:    d.Cache,
		CacheTTL: d.Cfg.BalanceCacheTTL,
		Logger:   d.Logger,
	})
	paymentSvc := payments.NewService(store, walletSvc, notifier, m, d.Clock, d.Logger)

	gateway := d.Gateway
	if gateway == nil {
		if d.Cfg.StaticGateway {
			d.Logger.Warn("no paystack key configured, deposits use a static gateway")
			gateway = funding.StaticGateway{CheckoutURL: "http://localhost" + d.Cfg.Address() + "/checkout"}
		} else {
			gateway = paystack.NewClient(d.Cfg.PaystackBaseURL, d.Cfg.PaystackSecret, d.Cfg.GatewayTimeout, d.Logger)
		}
	}
	fundingSvc, err := funding.NewService(funding.Deps{
		Store:    store,
		Wallets:  walletSvc,
		Users:    identitySvc,
		Gateway:  gateway,
		Notifier: notifier,
		Metrics:  m,
		Clock:    d.Clock,
		Logger:   d.Logger,
	}, funding.Config{
		WebhookSecret:  d.Cfg.PaystackSecret,
		MinDeposit:     d.Cfg.MinDeposit,
		GatewayTimeout: d.Cfg.GatewayTimeout,
	})
	if err != nil {
		return err
	}
	tokens := auth.NewTokens(d.Cfg.JWTSecret, d.Cfg.AppName, d.Cfg.TokenTTL, d.Clock)

	fundingHandler := funding.NewHandler(fundingSvc)
	paymentHandler := payments.NewHandler(paymentSvc)
	walletHandler := wallet.NewHandler(walletSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	limit := func(scope string) fiber.Handler { return middleware.RateLimit(d.Cache, scope, d.Cfg.RateLimit) }
	RegisterIdentityRoutes(api, identitySvc, walletSvc, tokens, d.Logger, limit)

	// Middleware is attached per route: the webhook shares the /wallet
	// prefix and must stay reachable without a token.
	jwt := middleware.JWTAuth(tokens, identitySvc)
	mutating := []fiber.Handler{jwt, middleware.RateLimit(d.Cache, "wallet", d.Cfg.RateLimit)}
	if d.Cache != nil {
		mutating = append(mutating, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterWalletMeRoute(api, jwt, walletSvc, identitySvc)
	RegisterWalletRoutes(api, jwt, walletHandler)
	RegisterFundingRoutes(api, fundingHandler, mutating...)
	RegisterPaymentRoutes(api, paymentHandler, mutating...)

	return nil
}
