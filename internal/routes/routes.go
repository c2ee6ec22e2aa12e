package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/congo_ledger/internal/account"
	"github.com/congo-pay/congo_ledger/internal/config"
	"github.com/congo-pay/congo_ledger/internal/funding"
	"github.com/congo-pay/congo_ledger/internal/gateway"
	"github.com/congo-pay/congo_ledger/internal/ledger"
	"github.com/congo-pay/congo_ledger/internal/metrics"
	"github.com/congo-pay/congo_ledger/internal/middleware"
	"github.com/congo-pay/congo_ledger/internal/notification"
	"github.com/congo-pay/congo_ledger/internal/payments"
	"github.com/congo-pay/congo_ledger/internal/pin"
	"github.com/congo-pay/congo_ledger/internal/reconcile"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Gateway overrides the gateway built from Cfg. Used by tests.
	Gateway gateway.Gateway
	// Store overrides the store built from DB. Used by tests.
	Store ledger.Store
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(d.Metrics.Middleware())
	app.Use(middleware.Audit(d.Logger))

	// Health and metrics
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", d.Metrics.Handler())

	// Services and handlers
	store := d.Store
	if store == nil {
		if d.DB != nil {
			store = ledger.NewPostgresStore(d.DB)
		} else {
			d.Logger.Warn("no database configured, using in-memory ledger store")
			store = ledger.NewInMemory()
		}
	}

	gw := d.Gateway
	if gw == nil {
		var err error
		if gw, err = newGateway(d); err != nil {
			return err
		}
	}

	guard := pin.NewGuard(store, 0)
	engine, err := ledger.NewEngine(ledger.EngineConfig{
		Store:           store,
		Guard:           guard,
		Provider:        gw,
		Observer:        d.Metrics,
		Logger:          d.Logger,
		ProviderTimeout: d.Cfg.Gateway.Timeout,
	})
	if err != nil {
		return err
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	accountSvc := account.NewService(store, guard, gw, d.Logger)
	fundingSvc, err := funding.NewService(funding.Config{
		Engine:      engine,
		Store:       store,
		Verifier:    gw,
		Notifier:    notifier,
		Logger:      d.Logger,
		CallbackURL: d.Cfg.Gateway.CallbackURL,
	})
	if err != nil {
		return err
	}
	paymentSvc := payments.NewService(engine, accountSvc, guard, notifier, d.Cfg.Fees, d.Logger)

	// Webhooks authenticate by signature, not by bearer token.
	if d.Cfg.Gateway.WebhookSecret != "" {
		webhooks, err := reconcile.NewHandler(reconcile.Config{
			Engine:   engine,
			Store:    store,
			Secret:   d.Cfg.Gateway.WebhookSecret,
			Notifier: notifier,
			Recorder: d.Metrics,
			Logger:   d.Logger,
		})
		if err != nil {
			return err
		}
		RegisterWebhookRoutes(app, webhooks)
	} else {
		d.Logger.Warn("no webhook secret configured, gateway webhooks disabled")
	}

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(d.Cfg.JWTSecret))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	limiter := middleware.RateLimit(d.Cache, "money", d.Cfg.RateLimit, d.Logger)

	RegisterAccountRoutes(protected, account.NewHandler(accountSvc))
	RegisterFundingRoutes(protected, funding.NewHandler(fundingSvc), limiter)
	RegisterPaymentRoutes(protected, payments.NewHandler(paymentSvc), limiter)

	return nil
}

func newGateway(d Deps) (gateway.Gateway, error) {
	if !d.Cfg.Gateway.Enabled() {
		d.Logger.Warn("no gateway secret configured, using static gateway")
		return gateway.NewStaticGateway(), nil
	}
	return gateway.NewClient(gateway.Config{
		BaseURL:   d.Cfg.Gateway.BaseURL,
		SecretKey: d.Cfg.Gateway.SecretKey,
		Timeout:   d.Cfg.Gateway.Timeout,
		Logger:    d.Logger,
		Recorder:  d.Metrics,
	})
}
