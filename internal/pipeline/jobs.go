package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// JobStatus represents the state of an ingest job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusFetching  JobStatus = "fetching"
	StatusIndexing  JobStatus = "indexing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusPartial   JobStatus = "partial"
	StatusSkipped   JobStatus = "already_indexed"
)

// Request describes which filings of one filer to ingest.
type Request struct {
	CIK        string   `json:"cik"`
	FormType   string   `json:"form_type,omitempty"`
	Accessions []string `json:"accessions,omitempty"` // Restrict to these filings
	Limit      int      `json:"limit,omitempty"`      // Most recent N filings; 0 means all
	Force      bool     `json:"force,omitempty"`      // Re-index filings already stored
}

// Job tracks the ingestion of one filer's filings.
type Job struct {
	mu sync.Mutex

	ID      string    `json:"job_id"`
	Request Request   `json:"request"`
	Status  JobStatus `json:"status"`
	Phase   string    `json:"phase"`
	Company string    `json:"company"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	errors []string
}

// Progress tracks processing progress.
type Progress struct {
	FilingsTotal     int            `json:"filings_total"`
	FilingsProcessed int            `json:"filings_processed"`
	FilingsSkipped   int            `json:"filings_skipped"`
	FilingsFailed    int            `json:"filings_failed"`
	ChunksIndexed    int            `json:"chunks_indexed"`
	ImagesIndexed    int            `json:"images_indexed"`
	TablesStored     int            `json:"tables_stored"`
	Filings          []FilingReport `json:"filings"`
	Errors           []string       `json:"errors"`
}

// FilingReport summarizes one processed filing.
type FilingReport struct {
	Accession     string `json:"accession"`
	FilingDate    string `json:"filing_date"`
	ContentHash   string `json:"content_hash,omitempty"`
	Skipped       bool   `json:"skipped,omitempty"`
	Sections      int    `json:"sections"`
	ChunksIndexed int    `json:"chunks_indexed"`
	ChunksFailed  int    `json:"chunks_failed"`
	ImagesIndexed int    `json:"images_indexed"`
	TablesStored  int    `json:"tables_stored"`
	Error         string `json:"error,omitempty"`
}

// NewJob returns a queued job for req.
func NewJob(id string, req Request) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		Request:   req,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

// NewJobStore returns a store whose Cleanup drops jobs idle longer than ttl.
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

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetCompany records the filer name from its submissions.
func (j *Job) SetCompany(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Company = name
	j.UpdatedAt = time.Now()
}

// SetFilingsTotal records how many filings the job will process.
func (j *Job) SetFilingsTotal(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.FilingsTotal = n
	j.UpdatedAt = time.Now()
}

// RecordFiling folds one filing's outcome into the job totals.
func (j *Job) RecordFiling(r FilingReport) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.FilingsProcessed++
	switch {
	case r.Error != "":
		j.Progress.FilingsFailed++
	case r.Skipped:
		j.Progress.FilingsSkipped++
	}
	j.Progress.ChunksIndexed += r.ChunksIndexed
	j.Progress.ImagesIndexed += r.ImagesIndexed
	j.Progress.TablesStored += r.TablesStored
	j.Progress.Filings = append(j.Progress.Filings, r)
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	Request   Request   `json:"request"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Company   string    `json:"company"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.Progress
	p.Errors = append([]string{}, j.Progress.Errors...)
	p.Filings = append([]FilingReport{}, j.Progress.Filings...)
	return JobSnapshot{
		ID:        j.ID,
		Request:   j.Request,
		Status:    j.Status,
		Phase:     j.Phase,
		Company:   j.Company,
		Progress:  p,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
