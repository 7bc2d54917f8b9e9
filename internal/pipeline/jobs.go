package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobKind selects which source directories a background job ingests.
type JobKind string

const (
	KindMarkdown JobKind = "md"
	KindPDF      JobKind = "pdf"
	KindAll      JobKind = "all"
)

// ParseJobKind validates a kind received from a client.
func ParseJobKind(s string) (JobKind, error) {
	switch k := JobKind(s); k {
	case KindMarkdown, KindPDF, KindAll:
		return k, nil
	}
	return "", fmt.Errorf("unknown ingest kind %q (want md, pdf or all)", s)
}

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusPartial   JobStatus = "partial"
	StatusFailed    JobStatus = "failed"
)

// Job tracks one background directory ingestion.
type Job struct {
	mu sync.Mutex

	ID   string
	Kind JobKind

	status    JobStatus
	phase     string
	progress  map[string]Stats
	errors    []string
	CreatedAt time.Time
	updatedAt time.Time
}

// NewJob creates a queued job with a fresh id.
func NewJob(kind JobKind) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		status:    StatusQueued,
		progress:  map[string]Stats{},
		CreatedAt: now,
		updatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes finished jobs idle for longer than the TTL. Queued and
// running jobs are kept.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if job.finished() && now.Sub(job.lastUpdate()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	j.phase = phase
	j.updatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.updatedAt = time.Now()
}

// SetStats records the result of one phase.
func (j *Job) SetStats(phase string, st Stats) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress[phase] = st
	j.updatedAt = time.Now()
}

func (j *Job) finished() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status == StatusCompleted || j.status == StatusPartial || j.status == StatusFailed
}

func (j *Job) lastUpdate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.updatedAt
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string           `json:"job_id"`
	Kind      JobKind          `json:"kind"`
	Status    JobStatus        `json:"status"`
	Phase     string           `json:"phase"`
	Progress  map[string]Stats `json:"progress"`
	Errors    []string         `json:"errors"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress := make(map[string]Stats, len(j.progress))
	for k, v := range j.progress {
		progress[k] = v
	}
	errs := append([]string{}, j.errors...)
	return JobSnapshot{
		ID:        j.ID,
		Kind:      j.Kind,
		Status:    j.status,
		Phase:     j.phase,
		Progress:  progress,
		Errors:    errs,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.updatedAt,
	}
}
