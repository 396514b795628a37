package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amaumene/vodarr/internal/domain"
	log "github.com/sirupsen/logrus"
)

const historyWriteTimeout = 5 * time.Second

// Registrar records completed downloads.
type Registrar interface {
	Mark(id domain.ContentID, filename string, sizeMB float64) error
}

type WorkerOptions struct {
	DownloadDir string
	RetryCount  int
	RetryDelay  time.Duration
}

// WorkerSnapshot is a consistent copy of the worker counters.
type WorkerSnapshot struct {
	State       domain.WorkerState
	Current     *domain.Job
	Transferred int64
	Total       int64
	StartedAt   time.Time
	LastError   string
}

// Worker is the single sequential consumer of the queue. It is the only writer
// of its state; callers drive it through Pause, Resume and Stop.
type Worker struct {
	queue    *Queue
	registry Registrar
	fetcher  domain.Fetcher
	history  domain.HistoryRepository
	opts     WorkerOptions
	now      func() time.Time

	mu          sync.Mutex
	state       domain.WorkerState
	current     *domain.Job
	transferred int64
	total       int64
	startedAt   time.Time
	lastError   string
	cancelJob   context.CancelFunc
	cancelLoop  context.CancelFunc
	started     bool

	wake chan struct{}
	done chan struct{}
}

func NewWorker(queue *Queue, registry Registrar, fetcher domain.Fetcher, history domain.HistoryRepository, opts WorkerOptions) *Worker {
	return &Worker{
		queue:    queue,
		registry: registry,
		fetcher:  fetcher,
		history:  history,
		opts:     opts,
		now:      time.Now,
		state:    domain.StateIdle,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the consumer loop. Calling it more than once has no effect.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}
	w.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancelLoop = cancel
	go w.run(loopCtx)

	log.WithField("component", "worker").Info("download worker started")
}

// Close aborts any transfer in flight and waits for the loop to exit.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	cancel := w.cancelLoop
	w.mu.Unlock()

	cancel()
	<-w.done
	log.WithField("component", "worker").Info("download worker stopped")
}

// Pause withholds the next pop. A transfer in flight runs to completion.
func (w *Worker) Pause() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case domain.StatePaused:
		return nil
	case domain.StateStopping, domain.StateStopped:
		return fmt.Errorf("%w: cannot pause while %s", domain.ErrInvalidState, w.state)
	}

	w.state = domain.StatePaused
	w.logTransition("worker paused")
	return nil
}

func (w *Worker) Resume() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case domain.StateStopping:
		return fmt.Errorf("%w: cannot resume while %s", domain.ErrInvalidState, w.state)
	case domain.StatePaused, domain.StateStopped:
		w.state = domain.StateRunning
		w.logTransition("worker resumed")
	}

	w.signal()
	return nil
}

// Stop interrupts the transfer in flight. The interrupted job is dropped and
// never recorded as downloaded. Pending jobs stay queued until new work is
// enqueued or Resume is called.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case domain.StateStopping, domain.StateStopped:
		return nil
	}

	if w.current != nil && w.cancelJob != nil {
		w.state = domain.StateStopping
		w.cancelJob()
	} else {
		w.state = domain.StateStopped
		w.queue.drainNotify()
	}

	w.logTransition("worker stop requested")
	w.signal()
	return nil
}

func (w *Worker) State() domain.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) Snapshot() WorkerSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := WorkerSnapshot{
		State:       w.state,
		Transferred: w.transferred,
		Total:       w.total,
		StartedAt:   w.startedAt,
		LastError:   w.lastError,
	}
	if w.current != nil {
		job := *w.current
		snap.Current = &job
	}
	return snap
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	for {
		if ctx.Err() != nil {
			return
		}

		if !w.canPop() {
			if !w.waitForWork(ctx) {
				return
			}
			continue
		}

		job, ok := w.queue.Pop()
		if !ok {
			w.markIdle()
			if !w.waitForWork(ctx) {
				return
			}
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) canPop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == domain.StateIdle || w.state == domain.StateRunning
}

func (w *Worker) markIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == domain.StateRunning {
		w.state = domain.StateIdle
	}
}

func (w *Worker) waitForWork(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.wake:
		return true
	case <-w.queue.Notify():
		w.mu.Lock()
		if w.state == domain.StateStopped {
			w.state = domain.StateIdle
			w.logTransition("new work after stop")
		}
		w.mu.Unlock()
		return true
	}
}

func (w *Worker) process(ctx context.Context, job domain.Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !w.begin(job, cancel) {
		w.queue.Requeue(job)
		return
	}

	logger := log.WithFields(log.Fields{
		"component": "worker",
		"jobID":     job.ID,
		"contentID": job.ContentID.String(),
		"title":     job.Title,
	})
	logger.Info("download started")

	result, attempts, err := w.fetchWithRetry(jobCtx, job, logger)

	outcome := domain.OutcomeCompleted
	switch {
	case err != nil && jobCtx.Err() != nil:
		outcome = domain.OutcomeAborted
		logger.Warn("download aborted")
	case err != nil:
		outcome = domain.OutcomeFailed
		logger.WithField("error", err).Error("download failed, dropping job")
	default:
		if markErr := w.registry.Mark(job.ContentID, result.Filename, result.SizeMB); markErr != nil {
			outcome = domain.OutcomeFailed
			err = fmt.Errorf("recording download: %w", markErr)
			logger.WithField("error", err).Error("download finished but could not be recorded")
		} else {
			logger.WithFields(log.Fields{
				"filename": result.Filename,
				"sizeMB":   result.SizeMB,
			}).Info("download completed")
		}
	}

	w.queue.Done(job.ID)
	startedAt := w.finish(err)
	w.recordHistory(job, outcome, result, attempts, startedAt, err)
}

// begin claims the in-flight slot unless a control command arrived between
// the state check and the pop.
func (w *Worker) begin(job domain.Job, cancel context.CancelFunc) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != domain.StateIdle && w.state != domain.StateRunning {
		return false
	}

	w.state = domain.StateRunning
	w.current = &job
	w.cancelJob = cancel
	w.transferred = 0
	w.total = 0
	w.startedAt = w.now()
	return true
}

func (w *Worker) finish(err error) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	startedAt := w.startedAt
	w.current = nil
	w.cancelJob = nil
	if err != nil {
		w.lastError = err.Error()
	}
	if w.state == domain.StateStopping {
		w.state = domain.StateStopped
		w.queue.drainNotify()
		w.logTransition("worker stopped")
	}
	return startedAt
}

func (w *Worker) fetchWithRetry(ctx context.Context, job domain.Job, logger *log.Entry) (domain.FetchResult, int, error) {
	req := domain.FetchRequest{
		ContentID:   job.ContentID,
		Title:       job.Title,
		Extension:   job.Extension,
		Destination: w.opts.DownloadDir,
	}

	for attempt := 1; ; attempt++ {
		result, err := w.fetcher.Fetch(ctx, req, w.progress)
		if err == nil {
			return result, attempt, nil
		}
		if ctx.Err() != nil || attempt > w.opts.RetryCount {
			return result, attempt, err
		}

		logger.WithFields(log.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("download attempt failed, retrying")

		select {
		case <-ctx.Done():
			return domain.FetchResult{}, attempt, ctx.Err()
		case <-time.After(w.opts.RetryDelay):
		}
		w.progress(0, 0)
	}
}

func (w *Worker) progress(transferred, total int64) {
	w.mu.Lock()
	w.transferred = transferred
	w.total = total
	w.mu.Unlock()
}

func (w *Worker) recordHistory(job domain.Job, outcome domain.Outcome, result domain.FetchResult, attempts int, startedAt time.Time, err error) {
	if w.history == nil {
		return
	}

	entry := &domain.HistoryEntry{
		JobID:      job.ID,
		ContentID:  job.ContentID.String(),
		Title:      job.Title,
		Outcome:    outcome,
		Attempts:   attempts,
		StartedAt:  startedAt,
		FinishedAt: w.now(),
	}
	if outcome == domain.OutcomeCompleted {
		entry.Filename = result.Filename
		entry.SizeMB = result.SizeMB
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		entry.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	if err := w.history.Insert(ctx, entry); err != nil {
		log.WithFields(log.Fields{
			"component": "worker",
			"jobID":     job.ID,
			"error":     err,
		}).Warn("failed to record job history")
	}
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// logTransition must be called with mu held.
func (w *Worker) logTransition(msg string) {
	log.WithFields(log.Fields{
		"component": "worker",
		"state":     w.state,
	}).Info(msg)
}
