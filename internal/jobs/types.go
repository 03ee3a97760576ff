package jobs

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeComputeMetrics represents a metrics run.
	JobTypeComputeMetrics JobType = "compute_metrics"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries applies when a job does not set MaxRetries.
const DefaultMaxRetries = 3

// ComputeMetricsJob represents one requested metrics run.
type ComputeMetricsJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// AsOf is the evaluation month; zero means the latest month with data.
	AsOf civil.Date `json:"as_of"`

	// From is the first month read; zero means the default history.
	From civil.Date `json:"from"`

	// Source names the data source: bigquery, postgres or csv.
	Source string `json:"source"`

	History bool `json:"history"`
	Enrich  bool `json:"enrich"`
	Export  bool `json:"export"`
	Narrate bool `json:"narrate"`

	// RunIDs lists the metric_runs rows written by each attempt.
	RunIDs []string `json:"run_ids,omitempty"`

	// Reports lists the report URIs of the successful attempt.
	Reports []string `json:"reports,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ComputeMetricsJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ComputeMetricsJob) GetType() JobType {
	return JobTypeComputeMetrics
}

// GetStatus implements the Job interface.
func (j *ComputeMetricsJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishComputeMetrics publishes a metrics run job.
	PublishComputeMetrics(ctx context.Context, job *ComputeMetricsJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
// Errors wrapped with Permanent are not retried.
type JobHandler func(ctx context.Context, job Job) error

// ErrPermanent marks a failure that a retry cannot fix.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{e.err, ErrPermanent} }

// Permanent wraps err so the queue does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ErrJobNotFound is returned by a JobStore for an unknown ID.
var ErrJobNotFound = errors.New("job not found")

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ComputeMetricsJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ComputeMetricsJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ComputeMetricsJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Source filters jobs by data source.
	Source string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
