package inmemory

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/jobs"
	"github.com/akovalev/expenso/internal/media"
	"github.com/akovalev/expenso/internal/pipeline"
)

func waitForStatus(t *testing.T, store jobs.JobStore, jobID string, want jobs.JobStatus) *jobs.ExtractionJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s never reached status %s, last seen: %+v", jobID, want, job)
	return nil
}

func TestQueue_CompletedJobCarriesDraft(t *testing.T) {
	store := NewStore()
	queue := NewQueue(4, 2, store)
	defer queue.Close()

	handler := func(ctx context.Context, job *jobs.ExtractionJob) (domain.DraftTransaction, error) {
		return domain.DraftTransaction{
			Name:       "Market",
			Amount:     decimal.NewFromInt(45000),
			CategoryID: "food",
		}, nil
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ExtractionJob{
		UserID:  "user-1",
		Kind:    media.KindImage,
		Payload: media.RawMedia{Data: []byte("jpeg"), MIMEType: "image/jpeg"},
	}
	if err := queue.PublishExtraction(context.Background(), job); err != nil {
		t.Fatalf("PublishExtraction() error = %v", err)
	}
	if job.JobID == "" {
		t.Fatal("PublishExtraction() did not assign a job ID")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.Draft == nil || done.Draft.Name != "Market" {
		t.Errorf("completed job draft = %+v, want Market", done.Draft)
	}
	if done.Error != "" {
		t.Errorf("completed job error = %q, want empty", done.Error)
	}
	if len(done.Payload.Data) != 0 {
		t.Error("completed job still carries the raw payload")
	}
}

func TestQueue_FailedJobIsTerminal(t *testing.T) {
	store := NewStore()
	queue := NewQueue(4, 1, store)
	defer queue.Close()

	var attempts atomic.Int64
	handler := func(ctx context.Context, job *jobs.ExtractionJob) (domain.DraftTransaction, error) {
		attempts.Add(1)
		return domain.DraftTransaction{}, fmt.Errorf("model unavailable")
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ExtractionJob{UserID: "user-1", Kind: media.KindImage}
	if err := queue.PublishExtraction(context.Background(), job); err != nil {
		t.Fatalf("PublishExtraction() error = %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.Error != "model unavailable" {
		t.Errorf("failed job error = %q, want model unavailable", failed.Error)
	}
	if failed.Draft != nil {
		t.Errorf("failed job carries a draft: %+v", failed.Draft)
	}

	// No retry: the single worker must not see the job again.
	time.Sleep(100 * time.Millisecond)
	if n := attempts.Load(); n != 1 {
		t.Errorf("handler attempts = %d, want 1", n)
	}
}

func TestQueue_NoTransactionDetectedMessage(t *testing.T) {
	store := NewStore()
	queue := NewQueue(4, 1, store)
	defer queue.Close()

	handler := func(ctx context.Context, job *jobs.ExtractionJob) (domain.DraftTransaction, error) {
		return domain.DraftTransaction{}, pipeline.ErrNoTransactionDetected
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ExtractionJob{UserID: "user-1", Kind: media.KindAudio}
	if err := queue.PublishExtraction(context.Background(), job); err != nil {
		t.Fatalf("PublishExtraction() error = %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.Error != "no transaction detected" {
		t.Errorf("failed job error = %q, want no transaction detected", failed.Error)
	}
}

func TestQueue_PublishedJobIsCallerSnapshot(t *testing.T) {
	store := NewStore()
	queue := NewQueue(4, 2, store)
	defer queue.Close()

	handler := func(ctx context.Context, job *jobs.ExtractionJob) (domain.DraftTransaction, error) {
		return domain.DraftTransaction{Name: "Market"}, nil
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		job := &jobs.ExtractionJob{
			UserID:  "user-1",
			Kind:    media.KindImage,
			Payload: media.RawMedia{Data: []byte("jpeg"), MIMEType: "image/jpeg"},
		}
		if err := queue.PublishExtraction(context.Background(), job); err != nil {
			t.Fatalf("PublishExtraction() error = %v", err)
		}
		// The caller reads its own struct while workers run. That read
		// must stay safe and reflect the state at publish time.
		if job.Status != jobs.JobStatusPending {
			t.Fatalf("published job status = %s, want pending", job.Status)
		}

		waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
		if job.Status != jobs.JobStatusPending {
			t.Errorf("caller's job mutated to %s after completion", job.Status)
		}
		if len(job.Payload.Data) == 0 {
			t.Error("caller's payload was zeroed by a worker")
		}
	}
}

func TestQueue_PublishAfterCloseFails(t *testing.T) {
	queue := NewQueue(1, 1, NewStore())
	if err := queue.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err := queue.PublishExtraction(context.Background(), &jobs.ExtractionJob{UserID: "user-1"})
	if err == nil {
		t.Fatal("PublishExtraction() on a closed queue succeeded")
	}
}

func TestStore_ListJobsFilters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	base := time.Now()
	seed := []*jobs.ExtractionJob{
		{JobID: "a", UserID: "u1", Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "b", UserID: "u1", Status: jobs.JobStatusFailed, CreatedAt: base.Add(time.Second)},
		{JobID: "c", UserID: "u2", Status: jobs.JobStatusCompleted, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, j := range seed {
		if err := store.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob(%s) error = %v", j.JobID, err)
		}
	}

	got, err := store.ListJobs(ctx, jobs.JobFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(got) != 2 || got[0].JobID != "b" || got[1].JobID != "a" {
		t.Errorf("ListJobs(u1) = %v, want [b a] newest first", jobIDs(got))
	}

	got, err = store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(got) != 2 || got[0].JobID != "c" || got[1].JobID != "a" {
		t.Errorf("ListJobs(completed) = %v, want [c a]", jobIDs(got))
	}

	got, err = store.ListJobs(ctx, jobs.JobFilter{UserID: "u1", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(got) != 1 || got[0].JobID != "a" {
		t.Errorf("ListJobs(u1, limit 1, offset 1) = %v, want [a]", jobIDs(got))
	}
}

func jobIDs(list []*jobs.ExtractionJob) []string {
	ids := make([]string, len(list))
	for i, j := range list {
		ids[i] = j.JobID
	}
	return ids
}
