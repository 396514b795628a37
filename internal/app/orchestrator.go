package app

import (
	"context"
	"time"

	"github.com/amaumene/vodarr/internal/config"
	"github.com/amaumene/vodarr/internal/domain"
	log "github.com/sirupsen/logrus"
)

type reconciler interface {
	Run(ctx context.Context, catalog domain.Catalog, dir string) (domain.ScanReport, error)
}

// Orchestrator runs the reconciliation scan on a fixed interval.
type Orchestrator struct {
	interval    time.Duration
	downloadDir string
	scanner     reconciler
	catalog     domain.Catalog
}

type orchestratorTask struct {
	name string
	run  func(context.Context) error
}

func NewOrchestrator(cfg *config.Config, scanner reconciler, catalog domain.Catalog) *Orchestrator {
	return &Orchestrator{
		interval:    cfg.ScanInterval,
		downloadDir: cfg.DownloadDir,
		scanner:     scanner,
		catalog:     catalog,
	}
}

// RunPeriodically blocks until ctx is done. A non positive interval disables
// the scheduler.
func (o *Orchestrator) RunPeriodically(ctx context.Context) {
	if o.interval <= 0 {
		log.WithField("component", "orchestrator").Debug("periodic scan disabled")
		return
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.runTasks(ctx)

	for {
		select {
		case <-ctx.Done():
			log.WithField("component", "orchestrator").Info("stopping background task scheduler")
			return
		case <-ticker.C:
			o.runTasks(ctx)
		}
	}
}

func (o *Orchestrator) runTasks(ctx context.Context) {
	tasks := []orchestratorTask{
		{name: "scan", run: o.reconcile},
	}

	for _, task := range tasks {
		if err := task.run(ctx); err != nil {
			log.WithFields(log.Fields{
				"task":  task.name,
				"error": err,
			}).Error("scheduled task failed")
		}
	}
}

func (o *Orchestrator) reconcile(ctx context.Context) error {
	report, err := o.scanner.Run(ctx, o.catalog, o.downloadDir)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"component": "orchestrator",
		"files":     report.FilesFound,
		"matched":   report.Matched,
	}).Info("scheduled scan completed")
	return nil
}
