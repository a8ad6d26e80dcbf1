package routes

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletsync/internal/config"
	"github.com/congo-pay/walletsync/internal/engine"
	"github.com/congo-pay/walletsync/internal/logging"
	"github.com/congo-pay/walletsync/internal/middleware"
)

// Deps aggregates what the control API needs.
type Deps struct {
	Cfg      config.Config
	Client   engine.Client
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// AccessLog receives the plain text access log; stdout when nil.
	AccessLog io.Writer
}

// Setup configures middlewares and all control routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Client == nil {
		return fmt.Errorf("control api needs a wallet client")
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if !d.Cfg.IsDev() && d.Cfg.ControlPINHash == "" {
		return fmt.Errorf("%s is required when APP_ENV=%s", "CONTROL_PIN_HASH", d.Cfg.AppEnv)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
		Output:     d.AccessLog,
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, d.Gatherer)

	api := app.Group("/api/v1", middleware.PINAuth(d.Cfg.ControlPINHash))
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	h := engine.NewHandler(d.Client)
	RegisterSessionRoutes(api, h, middleware.AuthRateLimit(d.Cache, d.Cfg.LoginRateLimit))
	RegisterTransferRoutes(api, h, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	return nil
}
