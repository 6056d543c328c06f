package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/adapters/http"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/adapters/messaging"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/app"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/repository"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/repository/memory"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/repository/postgres"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/platform/config"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/platform/database"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/platform/logger"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/platform/messagebroker"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/smsgateway"
)

const (
	serviceName     = "dispatch_service"
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel).With("service", serviceName)
	log.Info("Starting service...")

	if err := run(cfg, log); err != nil {
		log.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("Service shutdown complete.")
}

func run(cfg *config.Config, log *slog.Logger) error {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	startupCtx, startupCancel := context.WithTimeout(mainCtx, startupTimeout)
	defer startupCancel()

	messages, reports, closeStorage, err := openStorage(startupCtx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	session, err := openSession(startupCtx, cfg, log)
	if err != nil {
		return err
	}

	var natsClient *messagebroker.NATSClient
	var publisher app.EventPublisher
	if cfg.NATSUrl != "" {
		natsClient, err = messagebroker.NewNATSClient(cfg.NATSUrl, log, serviceName)
		if err != nil {
			return err
		}
		defer natsClient.Close()
		publisher = natsClient
		log.Info("NATS connection initialized", "url", cfg.NATSUrl)
	} else {
		log.Warn("NATS_URL is empty; ingest consumers and event publishing are disabled")
	}

	toggles := config.NewToggles(cfg.TogglesFile, log)

	gate := app.NewSessionGate(session, log)
	dispatcher := app.NewOutboundDispatcher(messages, session, gate, toggles, log, cfg.MaxBatchSize)
	reconciler := app.NewDeliveryReconciler(reports, messages, gate, toggles, publisher, log, app.ReconcilerConfig{
		MaxBatch:      cfg.MaxBatchSize,
		MaxRetries:    cfg.ReconcileMaxRetries,
		RetryInterval: cfg.ReconcileRetryInterval,
	})
	scheduler := app.NewScheduler(log,
		app.Job{Name: app.JobDispatch, Interval: cfg.DispatchInterval, Run: dispatcher.RunOnce},
		app.Job{Name: app.JobReconcile, Interval: cfg.ReconcileInterval, Run: reconciler.RunOnce},
		app.Job{Name: app.JobReconcileRetry, Interval: cfg.ReconcileRetryInterval, Run: reconciler.RetryDue},
	)

	var broker httpadapter.BrokerStatus
	if natsClient != nil {
		broker = natsClient
	}
	opsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           httpadapter.NewOpsRouter(session, broker, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return scheduler.Run(groupCtx)
	})

	if natsClient != nil {
		validate := validator.New()
		dlrConsumer := messaging.NewDLRIngestConsumer(natsClient, reports, validate, log)
		outboundConsumer := messaging.NewOutboundIngestConsumer(natsClient, messages, validate, log)
		g.Go(func() error {
			return dlrConsumer.StartConsuming(groupCtx, cfg.DLRSubject, cfg.DLRQueueGroup)
		})
		g.Go(func() error {
			return outboundConsumer.StartConsuming(groupCtx, cfg.OutboundSubject, serviceName+"_outbound")
		})
	}

	g.Go(func() error {
		log.Info("Ops HTTP server listening", "addr", opsServer.Addr)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return opsServer.Shutdown(shutdownCtx)
	})

	log.Info("Service components initialized and workers started. Service is ready.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var groupErr error
	select {
	case sig := <-sigCh:
		log.Info("Received termination signal", "signal", sig.String())
	case groupErr = <-watchGroup(g):
		log.Error("A critical component failed, initiating shutdown", "error", groupErr)
	}

	log.Info("Attempting graceful shutdown...")
	mainCancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-time.After(shutdownTimeout):
		return errors.New("graceful shutdown timed out")
	}
	return groupErr
}

func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (repository.OutboundMessageRepository, repository.DeliveryReportRepository, func(), error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn("Using in-memory storage; data is lost on restart")
		return memory.NewOutboundMessageRepository(), memory.NewDeliveryReportRepository(), func() {}, nil
	}

	if cfg.RunMigrations {
		if err := database.Migrate(cfg.PostgresDSN, log); err != nil {
			return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	log.Info("Database connection pool initialized")
	return postgres.NewPgOutboundMessageRepository(pool, log),
		postgres.NewPgDeliveryReportRepository(pool, log),
		pool.Close,
		nil
}

func openSession(ctx context.Context, cfg *config.Config, log *slog.Logger) (smsgateway.Session, error) {
	if cfg.GatewayDriver == config.GatewayDriverMock {
		log.Warn("Using mock gateway session")
		return smsgateway.NewMockSession(log, false), nil
	}

	session, err := smsgateway.NewHTTPSession(log, cfg.GatewayURL, cfg.GatewayHealthPath, cfg.GatewayAPIKey, nil)
	if err != nil {
		return nil, err
	}
	if err := session.Connect(ctx); err != nil {
		// not fatal: the session gate restarts it on the first tick
		log.Warn("Gateway not reachable at startup", "error", err)
	}
	return session, nil
}

// watchGroup reports the result of g.Wait on a channel.
func watchGroup(g *errgroup.Group) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
	}()
	return errCh
}
