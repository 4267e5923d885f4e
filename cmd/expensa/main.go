package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"expensa/internal/amqp"
	"expensa/internal/assistant"
	"expensa/internal/auth"
	"expensa/internal/cache"
	"expensa/internal/cli"
	"expensa/internal/config"
	"expensa/internal/core"
	apphttp "expensa/internal/http"
	"expensa/internal/log"
	"expensa/internal/services"
	"expensa/internal/worker"
)

const (
	cacheCleanupInterval = 5 * time.Minute
	sessionSweepInterval = 10 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	if err := run(logger, cfg); err != nil {
		logger.Error("Server exited with error", log.FieldError, err)
		os.Exit(1)
	}
}

func run(logger *log.Logger, cfg *config.Config) error {
	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	store, err := cli.OpenBackend(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	}()

	caches := cache.NewManager(logger)
	lists := cache.NewLRUCache[[]core.Expense](cfg.CacheSize, cfg.CacheTTL)
	transcripts := assistant.NewTranscripts(1000, 100, cfg.SessionTTL)
	caches.Register(lists)
	caches.Register(transcripts.Cache())
	caches.StartCleanup(cacheCleanupInterval)
	defer caches.Stop()

	// Without a broker each instance relies on its own invalidation and TTL.
	var (
		bus       *amqp.Client
		publisher services.Publisher
	)
	if cfg.AMQPURL != "" {
		bus, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, uuid.NewString(), logger)
		if err != nil {
			return err
		}
		defer bus.Close()
		logger.Info("Invalidation bus connected",
			"exchange", cfg.AMQPExchange,
			"instance", bus.InstanceID())
		publisher = bus
	}

	expenses := services.NewExpenseService(store.Store, store.Store, publisher, lists, logger)
	categories := services.NewCategoryService(store.Store, expenses, logger)
	reports := services.NewReportService(store.Store, expenses)
	authService := auth.NewService(store.Store, cfg.SessionTTL, logger)

	var model assistant.Model
	if cfg.AssistantEnabled() {
		gemini, err := assistant.NewGeminiModel(ctx, assistant.GeminiConfig{
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.GeminiModel,
			Endpoint: cfg.GeminiEndpoint,
		})
		if err != nil {
			return err
		}
		model = gemini
	} else {
		logger.Warn("Assistant disabled, GEMINI_API_KEY not set")
	}
	bridge := assistant.NewBridge(model, cfg.AssistantTimeout, logger)

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Location:           cfg.Location(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger.WithComponent(log.ComponentHTTP),
	}, apphttp.Dependencies{
		Auth:        authService,
		Expenses:    expenses,
		Categories:  categories,
		Reports:     reports,
		Assistant:   bridge,
		Transcripts: transcripts,
		Store:       store.Store,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting server",
			log.FieldOperation, log.OpStartup,
			"addr", srv.Addr,
			"backend", cfg.DataBackend,
			"assistant", cfg.AssistantEnabled(),
			"amqp", bus != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return cli.Shutdown(logger, shutdownTimeout, srv.Shutdown)
	})

	g.Go(func() error {
		return worker.NewSessionSweeper(authService, sessionSweepInterval, logger).Run(gctx)
	})

	if bus != nil {
		g.Go(func() error {
			return worker.NewInvalidationWorker(expenses, logger).Run(gctx, bus)
		})
	}

	return g.Wait()
}
