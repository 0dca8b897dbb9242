package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"gorm.io/gorm"

	"gridpick_backend/internal/controller"
	"gridpick_backend/internal/middleware"
	"gridpick_backend/internal/model"
	"gridpick_backend/internal/store"
	"gridpick_backend/pkg/billing"
	"gridpick_backend/pkg/config"
	"gridpick_backend/pkg/cron"
	"gridpick_backend/pkg/database"
	"gridpick_backend/pkg/metrics"
	"gridpick_backend/pkg/subscription"
	"gridpick_backend/pkg/utils/cloudflare"
)

type server struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *logrus.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	subs     *store.SubscriptionStore
	profiles *store.ProfileStore
	events   *store.WebhookEventStore
	archive  controller.PayloadArchive
	mode     middleware.GateMode
}

func setupRoutes(app *fiber.App, s *server) {
	gate := middleware.NewAccessGate(s.subs, middleware.GateOptions{
		Mode:        s.mode,
		LoginPath:   s.cfg.Gate.LoginPath,
		PricingPath: s.cfg.Gate.PricingPath,
		Logger:      s.log,
		Metrics:     s.metrics,
	})

	webhooks := controller.NewWebhookController(controller.WebhookDeps{
		Verifier:   billing.NewVerifier(s.cfg.Stripe.WebhookSecret),
		Reconciler: billing.NewReconciler(s.subs, s.profiles, subscription.NewPlans(s.cfg.Stripe.ProProductIDs, s.cfg.Stripe.ProPriceIDs), s.log),
		Events:     s.events,
		Archive:    s.archive,
		Metrics:    s.metrics,
		Logger:     s.log,
	})

	subs := controller.NewSubscriptionController(controller.SubscriptionDeps{
		Subscriptions: s.subs,
		Mode:          s.mode,
		PriceID:       s.cfg.Stripe.PriceID,
		AppURL:        s.cfg.Server.AppURL,
		PricingPath:   s.cfg.Gate.PricingPath,
		Logger:        s.log,
	})

	app.Get("/healthz", controller.Health(s.db, s.log))
	app.Get("/metrics", metrics.Handler(s.registry))

	// Dashboard
	app.Get("/dashboard", middleware.Authenticate(s.cfg.JWT.Secret), gate.Handler(), subs.GetDashboard)

	api := app.Group("/api")

	// Stripe webhook
	api.Post("/webhooks/stripe", webhooks.HandleStripeWebhook)

	// Subscription routes
	subscriptions := api.Group("/subscription")
	subscriptions.Get("/check", subs.CheckSubscription)

	requireAuth := middleware.RequireAuth(s.cfg.JWT.Secret)
	subscriptions.Post("/checkout", requireAuth, subs.CreateCheckoutSession)
	subscriptions.Get("/me", requireAuth, subs.GetMySubscription)
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}

func main() {
	cfg := config.Load()
	log := setupLogger(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}

// run returns instead of exiting so the deferred cleanup runs.
func run(cfg *config.Config, log *logrus.Logger) error {
	mode, err := middleware.ParseGateMode(cfg.Gate.Mode)
	if err != nil {
		log.WithError(err).Warn("Falling back to strict gate mode")
	}

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET is not set, every webhook will be rejected")
	}
	stripe.Key = cfg.Stripe.SecretKey

	db, err := database.InitDB(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	err = database.MigrateDatabase(db, log,
		&model.Subscription{},
		&model.Profile{},
		&model.WebhookEvent{},
	)
	if err != nil {
		log.WithError(err).Warn("Migration warning")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &server{
		cfg:      cfg,
		db:       db,
		log:      log,
		registry: registry,
		metrics:  metrics.NewMetrics(registry),
		subs:     store.NewSubscriptionStore(db),
		profiles: store.NewProfileStore(db),
		events:   store.NewWebhookEventStore(db),
		mode:     mode,
	}

	if cfg.R2.Enabled() {
		client, err := cloudflare.NewR2Client(context.Background(), cfg.R2)
		if err != nil {
			log.WithError(err).Warn("Webhook payload archive disabled")
		} else {
			s.archive = cloudflare.NewArchive(client, cfg.R2.Bucket)
		}
	}

	sync := cron.NewProfileSync(s.subs, s.profiles, s.metrics, log)
	scheduler, err := cron.InitProfileSyncCron(sync, cfg.Cron.ProfileSyncSchedule)
	if err != nil {
		log.WithError(err).Error("Could not initialize profile sync cron")
	} else {
		defer scheduler.Stop()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(s.metrics.Middleware())

	setupRoutes(app, s)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.WithFields(logrus.Fields{"port": cfg.Server.Port, "gate_mode": mode}).Info("Server is running")
	return serve(app, ":"+cfg.Server.Port, quit, log)
}

// serve listens until stop fires or the listener fails.
func serve(app *fiber.App, addr string, stop <-chan os.Signal, log logrus.FieldLogger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-stop:
	}

	log.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
