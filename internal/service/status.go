package service

import (
	"math"
	"time"

	"github.com/amaumene/vodarr/internal/domain"
)

const bytesPerMB = 1024 * 1024

type workerSnapshotter interface {
	Snapshot() WorkerSnapshot
}

type pendingCounter interface {
	Len() int
}

// StatusReporter projects worker counters into a domain.Status. It holds no
// state of its own.
type StatusReporter struct {
	worker workerSnapshotter
	queue  pendingCounter
	now    func() time.Time
}

func NewStatusReporter(worker *Worker, queue *Queue) *StatusReporter {
	return &StatusReporter{worker: worker, queue: queue, now: time.Now}
}

func (s *StatusReporter) Report() domain.Status {
	snap := s.worker.Snapshot()

	status := domain.Status{
		State:     snap.State,
		LastError: snap.LastError,
		Pending:   s.queue.Len(),
	}
	if snap.Current == nil {
		return status
	}

	status.Current = snap.Current
	status.TransferredMB = toMB(snap.Transferred)
	status.TotalMB = toMB(snap.Total)
	if snap.Total > 0 {
		status.Percent = int(snap.Transferred * 100 / snap.Total)
	}

	startedAt := snap.StartedAt
	status.StartedAt = &startedAt
	if elapsed := s.now().Sub(startedAt).Seconds(); elapsed > 0 {
		status.SpeedMBps = round2(status.TransferredMB / elapsed)
	}
	return status
}

func toMB(b int64) float64 {
	return round2(float64(b) / bytesPerMB)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
