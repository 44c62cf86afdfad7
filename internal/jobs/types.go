package jobs

import (
	"context"
	"time"

	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/media"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeExtraction represents a media extraction job.
	JobTypeExtraction JobType = "extraction"
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
	// JobStatusFailed indicates the job failed. Jobs are never retried; the
	// user re-submits the file instead, and the content-addressed upload
	// makes the re-submission idempotent.
	JobStatusFailed JobStatus = "failed"
)

// ExtractionJob represents one asynchronous receipt or voice extraction.
// The raw payload travels with the job; it is dropped once the job reaches a
// terminal status so completed jobs stay small.
type ExtractionJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// UserID is the owner of the extraction.
	UserID string `json:"user_id"`

	// Kind is the media kind (image or audio).
	Kind media.Kind `json:"kind"`

	// Payload is the raw uploaded blob. Never serialized in API responses.
	Payload media.RawMedia `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Draft is the extraction result for completed jobs.
	Draft *domain.DraftTransaction `json:"draft,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
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
func (j *ExtractionJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ExtractionJob) GetType() JobType {
	return JobTypeExtraction
}

// GetStatus implements the Job interface.
func (j *ExtractionJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
// This abstraction allows for different queue implementations (in-memory, Cloud Tasks, Pub/Sub).
type Publisher interface {
	// PublishExtraction publishes a media extraction job.
	PublishExtraction(ctx context.Context, job *ExtractionJob) error

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

// JobHandler processes one extraction job and returns the draft, or an error
// when the pipeline failed. Errors are terminal.
type JobHandler func(ctx context.Context, job *ExtractionJob) (domain.DraftTransaction, error)

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ExtractionJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ExtractionJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ExtractionJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// UserID filters jobs by owner.
	UserID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
