package service

import (
	"testing"
	"time"

	"github.com/amaumene/vodarr/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSnapshotter struct {
	snap WorkerSnapshot
}

func (s stubSnapshotter) Snapshot() WorkerSnapshot { return s.snap }

type stubCounter int

func (c stubCounter) Len() int { return int(c) }

func TestStatusReporter_Report(t *testing.T) {
	now := time.Unix(1700000100, 0)
	started := now.Add(-10 * time.Second)
	job := &domain.Job{ID: "j1", ContentID: movie(100), Title: "Alpha", Extension: "mp4"}

	tests := []struct {
		name    string
		snap    WorkerSnapshot
		pending int
		want    domain.Status
	}{
		{
			name:    "idle",
			snap:    WorkerSnapshot{State: domain.StateIdle},
			pending: 0,
			want:    domain.Status{State: domain.StateIdle},
		},
		{
			name:    "stopped keeps last error",
			snap:    WorkerSnapshot{State: domain.StateStopped, LastError: "boom"},
			pending: 3,
			want:    domain.Status{State: domain.StateStopped, LastError: "boom", Pending: 3},
		},
		{
			name: "transferring with known size",
			snap: WorkerSnapshot{
				State:       domain.StateRunning,
				Current:     job,
				Transferred: 50 * bytesPerMB,
				Total:       200 * bytesPerMB,
				StartedAt:   started,
			},
			pending: 1,
			want: domain.Status{
				State:         domain.StateRunning,
				Current:       job,
				TransferredMB: 50,
				TotalMB:       200,
				Percent:       25,
				SpeedMBps:     5,
				StartedAt:     &started,
				Pending:       1,
			},
		},
		{
			name: "unknown size",
			snap: WorkerSnapshot{
				State:       domain.StatePaused,
				Current:     job,
				Transferred: 3 * bytesPerMB / 2,
				StartedAt:   started,
			},
			want: domain.Status{
				State:         domain.StatePaused,
				Current:       job,
				TransferredMB: 1.5,
				SpeedMBps:     0.15,
				StartedAt:     &started,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &StatusReporter{
				worker: stubSnapshotter{snap: tt.snap},
				queue:  stubCounter(tt.pending),
				now:    func() time.Time { return now },
			}
			got := r.Report()
			if tt.want.StartedAt != nil {
				require.NotNil(t, got.StartedAt)
				assert.True(t, tt.want.StartedAt.Equal(*got.StartedAt))
				got.StartedAt, tt.want.StartedAt = nil, nil
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
