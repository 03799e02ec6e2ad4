package jobs

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/crlx1q/antimat/internal/config"
	"github.com/crlx1q/antimat/internal/queue"
)

type recordingQueue struct {
	mu    sync.Mutex
	types []queue.JobType
}

func (q *recordingQueue) Enqueue(_ context.Context, typ queue.JobType, _ any) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.types = append(q.types, typ)
	return "id", nil
}

func TestSchedulerRegistersBothJobs(t *testing.T) {
	q := &recordingQueue{}
	s := NewScheduler(q, config.JobsConfig{
		ReconcileSchedule: "0 30 3 * * *",
		SweepSchedule:     "0 0 */1 * * *",
	}, zerolog.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if got := len(s.cron.Entries()); got != 2 {
		t.Fatalf("entries = %d, want 2", got)
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&recordingQueue{}, config.JobsConfig{ReconcileSchedule: "every night"}, zerolog.Nop())
	if err := s.Start(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnqueueUsesJobType(t *testing.T) {
	q := &recordingQueue{}
	s := NewScheduler(q, config.JobsConfig{}, zerolog.Nop())

	s.enqueue(queue.JobSweepOrphans)()
	s.enqueue(queue.JobReconcileDebts)()

	if len(q.types) != 2 || q.types[0] != queue.JobSweepOrphans || q.types[1] != queue.JobReconcileDebts {
		t.Fatalf("enqueued = %v", q.types)
	}
}
