package domain

import (
	"context"
	"time"
)

type Job struct {
	ID         string    `json:"job_id"`
	ContentID  ContentID `json:"content_id"`
	Title      string    `json:"display_title,omitempty"`
	Extension  string    `json:"file_extension"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Label is the human readable name used in logs and messages.
func (j Job) Label() string {
	if j.Title != "" {
		return j.Title
	}
	return j.ContentID.String()
}

type EnqueueRequest struct {
	ContentID ContentID
	Title     string
	Extension string
	// Force bypasses the registry check for an explicit re-download.
	Force bool
}

type DownloadRecord struct {
	ContentID    ContentID `json:"content_id"`
	DownloadedAt time.Time `json:"downloaded_at"`
	Filename     string    `json:"filename"`
	SizeMB       float64   `json:"size_mb"`
}

type WorkerState string

const (
	StateIdle     WorkerState = "idle"
	StateRunning  WorkerState = "running"
	StatePaused   WorkerState = "paused"
	StateStopping WorkerState = "stopping"
	StateStopped  WorkerState = "stopped"
)

type Status struct {
	State         WorkerState `json:"state"`
	Current       *Job        `json:"current,omitempty"`
	TransferredMB float64     `json:"progress_mb"`
	TotalMB       float64     `json:"total_mb"`
	Percent       int         `json:"percent"`
	SpeedMBps     float64     `json:"speed_mbps"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	LastError     string      `json:"last_error,omitempty"`
	Pending       int         `json:"pending"`
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
)

// HistoryEntry is the persisted trace of a job that left the worker.
type HistoryEntry struct {
	JobID      string
	ContentID  string `boltholdIndex:"ContentID"`
	Title      string
	Outcome    Outcome
	Error      string
	Filename   string
	SizeMB     float64
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
}

type HistoryRepository interface {
	Insert(ctx context.Context, entry *HistoryEntry) error
	Recent(ctx context.Context, limit int) ([]HistoryEntry, error)
	FindByContentID(ctx context.Context, id ContentID) ([]HistoryEntry, error)
	Close() error
}

type FetchRequest struct {
	ContentID   ContentID
	Title       string
	Extension   string
	Destination string
}

type FetchResult struct {
	Filename string
	SizeMB   float64
}

// ProgressFunc receives the bytes transferred so far and the total size, or 0
// when the total is unknown.
type ProgressFunc func(transferred, total int64)

// Fetcher performs the byte transfer of one job. Implementations must check
// ctx between data chunks and must not leave a completed file behind when the
// transfer is cancelled.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest, progress ProgressFunc) (FetchResult, error)
}
