package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mariobeauty/salon-scheduling/cmd/mainconfig"
	"github.com/mariobeauty/salon-scheduling/internal/api/router"
	"github.com/mariobeauty/salon-scheduling/internal/appointments"
	"github.com/mariobeauty/salon-scheduling/internal/availability"
	appconfig "github.com/mariobeauty/salon-scheduling/internal/config"
	"github.com/mariobeauty/salon-scheduling/internal/events"
	"github.com/mariobeauty/salon-scheduling/internal/idempotency"
	"github.com/mariobeauty/salon-scheduling/internal/notify"
	"github.com/mariobeauty/salon-scheduling/internal/observability/metrics"
	"github.com/mariobeauty/salon-scheduling/internal/services"
	"github.com/mariobeauty/salon-scheduling/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting salon scheduling API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_store", cfg.UseMemoryStore,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	bookingMetrics := metrics.NewBookingMetrics(nil)

	var (
		store   appointments.Store
		avail   availability.Store
		catalog services.Catalog
		idem    *idempotency.Cache
	)

	if cfg.UseMemoryStore {
		store, avail, catalog = buildMemoryStack(cfg, logger)
	} else {
		if cfg.DatabaseURL == "" {
			logger.Error("DATABASE_URL is required unless USE_MEMORY_STORE is set")
			os.Exit(1)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}

		store = appointments.NewPostgresStore(pool, cfg.LockTimeout, logger)
		avail = availability.NewPostgresStore(pool)
		catalog = services.NewPostgresCatalog(pool)
		idem = buildIdempotencyCache(cfg, logger)

		startOutboxDeliverer(ctx, cfg, pool, logger)
	}

	manager := appointments.NewManager(store, avail, catalog, idem, bookingMetrics, logger, appointments.ManagerConfig{
		Granularity:     cfg.SlotGranularity,
		SuggestionLimit: cfg.SlotSuggestionLimit,
	})

	r := router.New(&router.Config{
		Logger:              logger,
		AppointmentsHandler: appointments.NewHandler(manager, logger),
		MetricsHandler:      promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildMemoryStack wires the in-memory stores with demo staff and the seed
// service list, for local development without Postgres.
func buildMemoryStack(cfg *appconfig.Config, logger *logging.Logger) (appointments.Store, availability.Store, services.Catalog) {
	avail := availability.NewMemoryStore()
	for range 2 {
		staffID := uuid.New()
		avail.AddStaff(staffID, time.UTC)
		avail.SetDailyWorkingHours(staffID, 9*time.Hour, 17*time.Hour)
		logger.Info("seeded demo staff", "staff_id", staffID)
	}

	catalog := services.NewMemoryCatalog()
	catalog.Add("Classic Manicure", 45*time.Minute, 15*time.Minute)
	catalog.Add("Gel Manicure", 60*time.Minute, 15*time.Minute)
	catalog.Add("Classic Pedicure", 50*time.Minute, 15*time.Minute)
	catalog.Add("Polish Change", 15*time.Minute, 10*time.Minute)

	bus := events.NewMemoryBus()
	store := appointments.NewMemoryStore(cfg.LockTimeout, bus)
	return store, avail, catalog
}

func buildIdempotencyCache(cfg *appconfig.Config, logger *logging.Logger) *idempotency.Cache {
	if cfg.RedisAddr == "" {
		return nil
	}
	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return idempotency.NewCache(redis.NewClient(opts), cfg.IdempotencyTTL, logger)
}

// startOutboxDeliverer launches the background poller that pushes committed
// booking events to SQS and the operator mailbox.
func startOutboxDeliverer(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) {
	var handlers []events.DeliveryHandler

	if cfg.EventsQueueURL != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config, SQS publishing disabled", "error", err)
		} else {
			handlers = append(handlers, events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.EventsQueueURL))
		}
	}
	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sender != nil && cfg.NotifyOperatorEmail != "" {
		handlers = append(handlers, notify.NewNotifier(sender, cfg.NotifyOperatorEmail, logger))
	}
	if len(handlers) == 0 {
		logger.Info("no event delivery handlers configured, outbox deliverer not started")
		return
	}

	deliverer := events.NewDeliverer(events.NewOutboxStore(pool), logger, handlers...).
		WithInterval(cfg.OutboxPollInterval)
	go deliverer.Start(ctx)
}
