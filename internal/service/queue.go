package service

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/amaumene/vodarr/internal/domain"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var extensionPattern = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// DownloadChecker reports whether content has already been downloaded.
type DownloadChecker interface {
	Contains(id domain.ContentID) bool
}

// Queue is the ordered list of pending jobs. The slice, the content index and
// the enqueue reservations are only touched under mu. A job handed to the worker through Pop occupies
// the in-flight slot until Done is called.
type Queue struct {
	mu       sync.RWMutex
	jobs     []domain.Job
	index    map[domain.ContentID]string
	reserved map[domain.ContentID]struct{}
	inFlight *domain.Job
	registry DownloadChecker
	notify   chan struct{}
	newID    func() string
	now      func() time.Time
}

func NewQueue(registry DownloadChecker) *Queue {
	return &Queue{
		index:    make(map[domain.ContentID]string),
		reserved: make(map[domain.ContentID]struct{}),
		registry: registry,
		notify:   make(chan struct{}, 1),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Notify is signalled after every successful Enqueue.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) Enqueue(req domain.EnqueueRequest) (string, error) {
	ext, err := validateEnqueue(req)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	if q.containsLocked(req.ContentID) {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s", domain.ErrAlreadyQueued, req.ContentID)
	}
	q.reserved[req.ContentID] = struct{}{}
	q.mu.Unlock()

	// The worker marks the registry before it releases the in-flight slot, so
	// once the content is reserved here the registry answer is final.
	downloaded := !req.Force && q.registry != nil && q.registry.Contains(req.ContentID)

	q.mu.Lock()
	delete(q.reserved, req.ContentID)
	if downloaded {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s", domain.ErrAlreadyDownloaded, req.ContentID)
	}

	job := domain.Job{
		ID:         q.newID(),
		ContentID:  req.ContentID,
		Title:      strings.TrimSpace(req.Title),
		Extension:  ext,
		EnqueuedAt: q.now(),
	}
	q.jobs = append(q.jobs, job)
	q.index[job.ContentID] = job.ID
	position := len(q.jobs)
	q.mu.Unlock()

	q.signal()

	log.WithFields(log.Fields{
		"jobID":     job.ID,
		"contentID": job.ContentID.String(),
		"title":     job.Title,
		"position":  position,
	}).Info("job enqueued")
	return job.ID, nil
}

func validateEnqueue(req domain.EnqueueRequest) (string, error) {
	if req.ContentID.IsZero() {
		return "", fmt.Errorf("%w: content id is required", domain.ErrValidation)
	}
	if err := req.ContentID.Validate(); err != nil {
		return "", err
	}
	if !req.ContentID.Kind.Downloadable() {
		return "", fmt.Errorf("%w: %s cannot be downloaded directly, enqueue its episodes", domain.ErrValidation, req.ContentID)
	}

	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(req.Extension), "."))
	if ext == "" {
		return "", fmt.Errorf("%w: file extension is required", domain.ErrValidation)
	}
	if !extensionPattern.MatchString(ext) {
		return "", fmt.Errorf("%w: invalid file extension %q", domain.ErrValidation, req.Extension)
	}
	return ext, nil
}

func (q *Queue) List() []domain.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	jobs := make([]domain.Job, len(q.jobs))
	copy(jobs, q.jobs)
	return jobs
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.jobs)
}

// Remove deletes a pending job and returns its label. The in-flight job cannot
// be removed; stop the worker instead.
func (q *Queue) Remove(jobID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, job := range q.jobs {
		if job.ID != jobID {
			continue
		}
		q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
		delete(q.index, job.ContentID)
		return job.Label(), nil
	}
	return "", fmt.Errorf("%w: job %s is not queued", domain.ErrNotFound, jobID)
}

// Reorder replaces the pending order. jobIDs must be exactly a permutation of
// the pending job ids.
func (q *Queue) Reorder(jobIDs []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(jobIDs) != len(q.jobs) {
		return fmt.Errorf("%w: got %d ids for %d queued jobs", domain.ErrInvalidPermutation, len(jobIDs), len(q.jobs))
	}

	byID := make(map[string]domain.Job, len(q.jobs))
	for _, job := range q.jobs {
		byID[job.ID] = job
	}

	reordered := make([]domain.Job, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: unknown or duplicated job id %q", domain.ErrInvalidPermutation, id)
		}
		delete(byID, id)
		reordered = append(reordered, job)
	}

	q.jobs = reordered
	return nil
}

func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.jobs)
	for _, job := range q.jobs {
		delete(q.index, job.ContentID)
	}
	q.jobs = nil
	return n
}

// Contains reports whether the content is pending or in flight.
func (q *Queue) Contains(id domain.ContentID) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.containsLocked(id)
}

func (q *Queue) containsLocked(id domain.ContentID) bool {
	if _, ok := q.index[id]; ok {
		return true
	}
	if _, ok := q.reserved[id]; ok {
		return true
	}
	return q.inFlight != nil && q.inFlight.ContentID == id
}

// Pop moves the head of the queue into the in-flight slot.
func (q *Queue) Pop() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 || q.inFlight != nil {
		return domain.Job{}, false
	}

	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	delete(q.index, job.ContentID)
	q.inFlight = &job
	return job, true
}

// Requeue puts a popped job that never started back at the head.
func (q *Queue) Requeue(job domain.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inFlight != nil && q.inFlight.ID == job.ID {
		q.inFlight = nil
	}
	if _, ok := q.index[job.ContentID]; ok {
		return
	}
	q.jobs = append([]domain.Job{job}, q.jobs...)
	q.index[job.ContentID] = job.ID
}

// Done releases the in-flight slot held by jobID.
func (q *Queue) Done(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inFlight != nil && q.inFlight.ID == jobID {
		q.inFlight = nil
	}
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drainNotify discards a pending signal so that only enqueues made after this
// call can wake a stopped worker.
func (q *Queue) drainNotify() {
	select {
	case <-q.notify:
	default:
	}
}
