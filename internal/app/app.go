package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amaumene/vodarr/internal/clients"
	"github.com/amaumene/vodarr/internal/config"
	"github.com/amaumene/vodarr/internal/domain"
	"github.com/amaumene/vodarr/internal/handler"
	"github.com/amaumene/vodarr/internal/service"
	"github.com/amaumene/vodarr/internal/storage"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

const (
	shutdownTimeout = 30 * time.Second
)

type App struct {
	cfg          *config.Config
	server       *fiber.App
	history      domain.HistoryRepository
	worker       *service.Worker
	orchestrator *Orchestrator
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log.SetLevel(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	history, err := storage.OpenHistory(cfg.HistoryPath(), cfg.DBFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	app := &App{
		cfg:     cfg,
		history: history,
	}
	app.wireServices()
	return app, nil
}

func (a *App) wireServices() {
	registry := storage.NewRegistry(a.cfg.RegistryPath())
	xtream := clients.NewXtreamClient(a.cfg.ProviderURL, a.cfg.ProviderUser, a.cfg.ProviderPass, a.cfg.HTTPTimeout)
	fetcher := a.createFetcher(xtream)

	queue := service.NewQueue(registry)
	a.worker = service.NewWorker(queue, registry, fetcher, a.history, service.WorkerOptions{
		DownloadDir: a.cfg.DownloadDir,
		RetryCount:  a.cfg.RetryCount,
		RetryDelay:  a.cfg.RetryDelay,
	})
	scanner := service.NewScanner(registry)

	httpHandler := handler.NewHTTPHandler(handler.Deps{
		Queue:        queue,
		Worker:       a.worker,
		Status:       service.NewStatusReporter(a.worker, queue),
		Scanner:      scanner,
		Library:      service.NewLibrary(xtream, registry),
		Registry:     registry,
		Catalog:      xtream,
		History:      a.history,
		DownloadDir:  a.cfg.DownloadDir,
		HistoryLimit: a.cfg.HistoryLimit,
	})
	a.server = handler.NewApp(httpHandler)
	a.orchestrator = NewOrchestrator(a.cfg, scanner, xtream)
}

func (a *App) createFetcher(locator clients.StreamLocator) domain.Fetcher {
	if a.cfg.FetchMode == config.FetchModeRanged {
		return clients.NewRangedFetcher(locator, 0)
	}
	return clients.NewStreamFetcher(locator)
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.worker.Start(ctx)
	go a.orchestrator.RunPeriodically(ctx)

	go a.startServer()

	return a.waitForShutdown(ctx, cancel)
}

func (a *App) startServer() {
	log.WithFields(log.Fields{
		"component":   "server",
		"address":     a.cfg.ServerPort,
		"downloadDir": a.cfg.DownloadDir,
		"fetchMode":   a.cfg.FetchMode,
	}).Info("http server listening")

	if err := a.server.Listen(a.cfg.ServerPort); err != nil {
		log.WithFields(log.Fields{
			"component": "server",
			"error":     err,
		}).Fatal("http server failed to start")
	}
}

func (a *App) waitForShutdown(ctx context.Context, cancel context.CancelFunc) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		log.WithField("reason", "context_cancelled").Info("initiating graceful shutdown")
	case sig := <-sigChan:
		log.WithField("signal", sig).Info("received shutdown signal")
	}

	cancel()
	return a.shutdown()
}

func (a *App) shutdown() error {
	log.Info("graceful shutdown started")

	if err := a.server.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.WithFields(log.Fields{
			"component": "server",
			"error":     err,
		}).Error("http server shutdown failed")
	}

	a.worker.Close()

	if err := a.history.Close(); err != nil {
		log.WithFields(log.Fields{
			"component": "database",
			"error":     err,
		}).Error("history store close failed")
		return err
	}

	log.Info("graceful shutdown completed")
	return nil
}
