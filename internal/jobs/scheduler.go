package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/crlx1q/antimat/internal/config"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/service"
)

// Scheduler enqueues the periodic maintenance jobs. The work itself runs in
// the stream consumer, so several worker replicas do not race each other.
type Scheduler struct {
	cron  *cron.Cron
	queue service.JobQueue
	cfg   config.JobsConfig
	log   zerolog.Logger
}

func NewScheduler(q service.JobQueue, cfg config.JobsConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:  c,
		queue: q,
		cfg:   cfg,
		log:   log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if s.cfg.ReconcileSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.ReconcileSchedule, s.enqueue(queue.JobReconcileDebts)); err != nil {
			return err
		}
	}
	if s.cfg.SweepSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.enqueue(queue.JobSweepOrphans)); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop waits up to five seconds for a running enqueue to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueue(typ queue.JobType) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		id, err := s.queue.Enqueue(ctx, typ, nil)
		if err != nil {
			s.log.Error().Err(err).Str("type", string(typ)).Msg("enqueue scheduled job failed")
			return
		}
		s.log.Debug().Str("type", string(typ)).Str("job_id", id).Msg("scheduled job enqueued")
	}
}
