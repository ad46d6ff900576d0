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
	"github.com/redis/go-redis/v9"

	"github.com/panapagos/panapagos/internal/auth"
	"github.com/panapagos/panapagos/internal/billing"
	"github.com/panapagos/panapagos/internal/checkout"
	"github.com/panapagos/panapagos/internal/config"
	"github.com/panapagos/panapagos/internal/escrow"
	"github.com/panapagos/panapagos/internal/events"
	"github.com/panapagos/panapagos/internal/fraud"
	"github.com/panapagos/panapagos/internal/goldenalert"
	"github.com/panapagos/panapagos/internal/identity"
	"github.com/panapagos/panapagos/internal/ledger"
	"github.com/panapagos/panapagos/internal/middleware"
	"github.com/panapagos/panapagos/internal/notification"
	"github.com/panapagos/panapagos/internal/signature"
	"github.com/panapagos/panapagos/internal/transfers"
	"github.com/panapagos/panapagos/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Stores
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB, ledger.PostgresOpts{
			MaxWait:   d.Cfg.TxMaxWait,
			TxTimeout: d.Cfg.TxTimeout,
		})
	} else {
		store = ledger.NewMemoryStore()
	}
	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	var transferRepo transfers.Repository
	var billingRepo billing.Repository
	var escrowRepo escrow.Repository
	if d.DB != nil {
		transferRepo = transfers.NewPostgresRepository(d.DB)
		billingRepo = billing.NewPostgresRepository(d.DB)
		escrowRepo = escrow.NewPostgresRepository(d.DB)
	} else {
		transferRepo = transfers.NewMemoryRepository()
		billingRepo = billing.NewMemoryRepository()
		escrowRepo = escrow.NewMemoryRepository()
	}

	// Ledger engine with signing, alerts and event publishing.
	signer, err := signature.NewSigner(d.Cfg.LedgerSigningSecret)
	if err != nil {
		return err
	}
	var prefs goldenalert.PreferenceSource
	if d.Cache != nil {
		prefs = goldenalert.NewRedisPreferences(d.Cache)
	} else {
		prefs = goldenalert.StaticPreferences{}
	}
	var pushSender notification.Sender = notification.NewLoggerSender(notification.ChannelPush, d.Logger)
	if d.Cfg.WebhookURL != "" {
		pushSender = notification.NewWebhookSender(d.Cfg.WebhookURL, d.Cfg.WebhookSecret)
	}
	alerter := goldenalert.NewService(prefs, map[string]notification.Sender{
		notification.ChannelEmail: notification.NewLoggerSender(notification.ChannelEmail, d.Logger),
		notification.ChannelSMS:   notification.NewLoggerSender(notification.ChannelSMS, d.Logger),
		notification.ChannelPush:  pushSender,
	}, d.Logger)

	engineOpts := []ledger.EngineOption{
		ledger.WithAlerter(alerter),
		ledger.WithAlertThreshold(d.Cfg.AlertThresholdPercent),
	}
	if d.Publisher != nil {
		engineOpts = append(engineOpts, ledger.WithPublisher(d.Publisher))
	}
	engine, err := ledger.NewEngine(store, signer, d.Logger, engineOpts...)
	if err != nil {
		return err
	}

	// Services and handlers
	walletSvc := wallet.NewService(store)
	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(d.Cfg, identityRepo)
	authHandler := auth.NewHandler(identitySvc, authSvc, walletSvc)
	var codes *identity.CodeService
	var codeVerifier identity.CodeVerifier
	if d.Cache != nil {
		codes = identity.NewCodeService(d.Cache)
		codeVerifier = codes
	}
	transferSvc := transfers.NewService(engine, walletSvc, identityRepo, transferRepo, codeVerifier, d.Logger)
	billingSvc := billing.NewService(engine, walletSvc, billing.NewStaticConnector(), billingRepo, d.Logger)
	escrowSvc := escrow.NewService(engine, walletSvc, escrowRepo, d.Logger)
	velocity := fraud.NewVelocityChecker(d.Cache, d.Logger)
	checkoutSvc := checkout.NewService(engine, walletSvc, nil, velocity, d.Logger)

	transferHandler := transfers.NewHandler(transferSvc)
	billingHandler := billing.NewHandler(billingSvc)
	escrowHandler := escrow.NewHandler(escrowSvc)
	checkoutHandler := checkout.NewHandler(checkoutSvc)
	walletHandler := wallet.NewHandler(walletSvc)
	ledgerHandler := ledger.NewHandler(engine)

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

	// Public routes
	RegisterIdentityRoutes(api, identitySvc, walletSvc, d.Logger)
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)

	// Protected routes
	jwtmw := middleware.JWTAuth(d.Cfg, identityRepo)
	protected := api.Group("", jwtmw)
	protected.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		if uid == "" {
			return c.SendStatus(http.StatusUnauthorized)
		}
		user, err := identityRepo.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return c.JSON(fiber.Map{
			"user_id":            user.ID,
			"email":              user.Email,
			"first_name":         user.FirstName,
			"last_name":          user.LastName,
			"two_factor_enabled": user.TwoFactorEnabled,
			"token_version":      user.TokenVersion,
			"created_at":         user.CreatedAt,
			"last_login":         user.LastLogin,
		})
	})
	protected.Post("/me/two-factor", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if err := identitySvc.EnableTwoFactor(c.UserContext(), uid, req.Enabled); err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"two_factor_enabled": req.Enabled})
	})
	protected.Post("/me/two-factor/code", func(c *fiber.Ctx) error {
		if codes == nil {
			return fiber.NewError(http.StatusServiceUnavailable, "two-factor codes require redis")
		}
		uid, _ := c.Locals("user_id").(string)
		user, err := identityRepo.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		code, err := codes.Issue(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		sender := notification.NewLoggerSender(notification.ChannelEmail, d.Logger)
		_ = sender.Send(c.UserContext(), notification.Message{
			Kind:        notification.ChannelEmail,
			Destination: user.Email,
			Body:        fmt.Sprintf("Tu código de verificación es %s", code),
		})
		return c.JSON(fiber.Map{"sent": true})
	})
	RegisterWalletRoutes(protected, walletHandler)
	RegisterTransferRoutes(protected, transferHandler)
	RegisterBillingRoutes(protected, billingHandler)
	RegisterEscrowRoutes(protected, escrowHandler)
	RegisterCheckoutRoutes(protected, checkoutHandler)
	RegisterLedgerRoutes(protected, ledgerHandler, walletSvc)

	return nil
}
