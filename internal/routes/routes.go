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

	"github.com/nexushub/timebank/internal/alerts"
	"github.com/nexushub/timebank/internal/audit"
	"github.com/nexushub/timebank/internal/config"
	"github.com/nexushub/timebank/internal/ledger"
	"github.com/nexushub/timebank/internal/logging"
	"github.com/nexushub/timebank/internal/membership"
	"github.com/nexushub/timebank/internal/middleware"
	"github.com/nexushub/timebank/internal/notification"
	"github.com/nexushub/timebank/internal/payments"
	"github.com/nexushub/timebank/internal/requests"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. Without a
// database the service runs on in-memory stores, which is only permitted in
// development.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(logging.Component(d.Logger, "http")))

	RegisterHealthRoutes(app, d)

	// Storage backends, with in-memory fallbacks for development.
	var ledgerBackend ledger.Ledger
	var memberRepo membership.Repository
	var requestRepo requests.Repository
	var recorder audit.Recorder
	var thresholds alerts.ThresholdStore
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		memberRepo = membership.NewPostgresRepository(d.DB)
		requestRepo = requests.NewPostgresRepository(d.DB)
		recorder = audit.NewPostgresRecorder(d.DB)
		thresholds = alerts.NewPostgresThresholdStore(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		memberRepo = membership.NewMemoryRepository()
		requestRepo = requests.NewMemoryRepository()
		recorder = audit.NewMemoryRecorder()
		thresholds = alerts.NewMemoryThresholdStore()
	}

	members := membership.NewService(memberRepo)
	notifier := notification.NewLoggerNotifier(logging.Component(d.Logger, "notification"))

	evaluator, err := alerts.NewEvaluator(thresholds, ledgerBackend, alerts.Thresholds{
		Low:      d.Cfg.DefaultLowThreshold,
		Critical: d.Cfg.DefaultCriticalThreshold,
	})
	if err != nil {
		return err
	}

	workflow := requests.NewWorkflow(requestRepo, ledgerBackend, members, recorder, notifier, logging.Component(d.Logger, "requests"))
	paymentSvc := payments.NewService(ledgerBackend, members, recorder, notifier, logging.Component(d.Logger, "payments"))

	walletHandler := payments.NewHandler(paymentSvc, ledgerBackend, members, evaluator, workflow)
	requestHandler := requests.NewHandler(workflow)
	auditHandler := audit.NewHandler(recorder, members)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Everything past here requires a resolved caller identity.
	authed := api.Group("", middleware.ActorContext())
	if d.Cache != nil {
		authed.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
		authed.Use(middleware.MutationRateLimit(d.Cache, d.Cfg.MutationRateLimit))
	}

	RegisterWalletRoutes(authed, walletHandler, evaluator, members)
	RegisterRequestRoutes(authed, requestHandler)
	RegisterAuditRoutes(authed, auditHandler)

	return nil
}
