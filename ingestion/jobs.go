package ingestion

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an asynchronous ingestion.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is a snapshot of an asynchronous ingestion.
type Job struct {
	ID         string
	PolicyID   string
	DocumentID string
	Status     JobStatus
	Report     *Report
	Err        error
	Created    time.Time
	Finished   time.Time
}

// JobTracker records the state of asynchronous ingestions. It is safe for
// concurrent use. Each Pipeline holds its own tracker.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobTracker creates an empty tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*Job)}
}

func (t *JobTracker) create(req Request) string {
	id := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = &Job{
		ID:         id,
		PolicyID:   req.PolicyID,
		DocumentID: req.DocumentID,
		Status:     JobPending,
		Created:    time.Now().UTC(),
	}
	return id
}

func (t *JobTracker) start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[id]; ok {
		job.Status = JobRunning
	}
}

func (t *JobTracker) finish(id string, report *Report, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return
	}
	job.Report = report
	job.Err = err
	job.Finished = time.Now().UTC()
	if err != nil {
		job.Status = JobFailed
	} else {
		job.Status = JobSucceeded
	}
}

// Get returns a copy of the job with the given id.
func (t *JobTracker) Get(id string) (Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return *job, nil
}

// Forget drops a finished job. Pending and running jobs are kept.
func (t *JobTracker) Forget(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok || job.Status == JobPending || job.Status == JobRunning {
		return false
	}
	delete(t.jobs, id)
	return true
}
