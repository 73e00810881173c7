package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campaignforge/internal/adapter/repo"
	"campaignforge/internal/domain"
)

type completingProcessor struct {
	jobs   domain.JobStore
	mu     sync.Mutex
	seen   []string
	cancel context.CancelFunc
	stopAt int
}

func (p *completingProcessor) Process(ctx context.Context, jobID string) {
	p.mu.Lock()
	p.seen = append(p.seen, jobID)
	n := len(p.seen)
	p.mu.Unlock()
	if _, err := p.jobs.MarkRunning(ctx, jobID); err == nil {
		_ = p.jobs.Update(ctx, jobID, domain.StatusUpdate(domain.JobStatusCompleted))
	}
	if n == p.stopAt {
		p.cancel()
	}
}

type countingPurger struct{ calls atomic.Int32 }

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 1, nil
}

func TestRunnerProcessesOldestFirst(t *testing.T) {
	t.Parallel()
	jobs := repo.NewMemoryJobStore()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := jobs.Create(ctx, domain.JobInput{BrandName: "b"}, domain.ModeImage)
		if err != nil {
			t.Fatalf("Create error: %v", err)
		}
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	runCtx, stop := context.WithCancel(ctx)
	proc := &completingProcessor{jobs: jobs, cancel: stop, stopAt: 3}
	purger := &countingPurger{}
	r, err := NewRunner(RunnerOptions{Jobs: jobs, Processor: proc, Purger: purger, PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("NewRunner error: %v", err)
	}

	if err := r.Run(runCtx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if len(proc.seen) != 3 {
		t.Fatalf("processed %v", proc.seen)
	}
	for i, id := range ids {
		if proc.seen[i] != id {
			t.Fatalf("job %d = %s, want %s", i, proc.seen[i], id)
		}
	}
	if purger.calls.Load() != 1 {
		t.Fatalf("purge calls = %d, want 1", purger.calls.Load())
	}
}

type idleProcessor struct{ calls atomic.Int32 }

func (p *idleProcessor) Process(context.Context, string) { p.calls.Add(1) }

func TestRunnerBacksOffOnStuckJob(t *testing.T) {
	t.Parallel()
	jobs := repo.NewMemoryJobStore()
	if _, err := jobs.Create(context.Background(), domain.JobInput{BrandName: "b"}, domain.ModeImage); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	proc := &idleProcessor{}
	r, err := NewRunner(RunnerOptions{Jobs: jobs, Processor: proc, PollInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewRunner error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run error = %v", err)
	}
	if n := proc.calls.Load(); n == 0 || n > 10 {
		t.Fatalf("process calls = %d, want a handful", n)
	}
}

func TestNewRunnerRequiresCollaborators(t *testing.T) {
	t.Parallel()
	if _, err := NewRunner(RunnerOptions{}); err == nil {
		t.Fatalf("expected error")
	}
}
