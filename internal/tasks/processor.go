package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crlx1q/antimat/internal/metrics"
	"github.com/crlx1q/antimat/internal/push"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/service"
)

// Notifier is the push side of the worker. *push.Dispatcher implements it.
type Notifier interface {
	ChatMessage(ctx context.Context, job push.ChatMessageJob) error
	Presence(ctx context.Context, job push.PresenceJob) error
	Broadcast(ctx context.Context, job push.BroadcastJob) (push.Result, error)
}

type DebtReconciler interface {
	ReconcileDebts(ctx context.Context) (int, error)
}

type OrphanSweeper interface {
	SweepOrphans(ctx context.Context) (service.SweepReport, error)
}

type Processor struct {
	notifier Notifier
	debts    DebtReconciler
	sweeper  OrphanSweeper
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewProcessor(notifier Notifier, debts DebtReconciler, sweeper OrphanSweeper, m *metrics.Metrics, logger zerolog.Logger) *Processor {
	return &Processor{
		notifier: notifier,
		debts:    debts,
		sweeper:  sweeper,
		metrics:  m,
		logger:   logger,
	}
}

// Handle implements queue.MessageHandler. Malformed and unknown jobs are
// logged and acknowledged; a returned error leaves the message pending for
// another attempt.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	job, err := queue.DecodeJob(msg.Values)
	if err != nil {
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping malformed job")
		p.count("unknown", "malformed")
		return nil
	}

	log := p.logger.With().Str("job_id", job.ID).Str("type", string(job.Type)).Logger()

	err = p.dispatch(ctx, job, log)
	switch {
	case err == nil:
		p.count(string(job.Type), "success")
	case errIsPermanent(err):
		log.Warn().Err(err).Msg("dropping job")
		p.count(string(job.Type), "dropped")
		return nil
	default:
		p.count(string(job.Type), "error")
	}
	return err
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func errIsPermanent(err error) bool {
	var perm permanentError
	return errors.As(err, &perm)
}

func (p *Processor) bind(job queue.Job, out any) error {
	if err := job.Bind(out); err != nil {
		return permanentError{fmt.Errorf("decode %s payload: %w", job.Type, err)}
	}
	return nil
}

func (p *Processor) dispatch(ctx context.Context, job queue.Job, log zerolog.Logger) error {
	switch job.Type {
	case queue.JobChatMessage:
		var payload push.ChatMessageJob
		if err := p.bind(job, &payload); err != nil {
			return err
		}
		return p.notifier.ChatMessage(ctx, payload)

	case queue.JobPresence:
		var payload push.PresenceJob
		if err := p.bind(job, &payload); err != nil {
			return err
		}
		return p.notifier.Presence(ctx, payload)

	case queue.JobBroadcast:
		var payload push.BroadcastJob
		if err := p.bind(job, &payload); err != nil {
			return err
		}
		result, err := p.notifier.Broadcast(ctx, payload)
		if err != nil {
			return err
		}
		log.Info().Int("success", result.Success).Int("failure", result.Failure).Msg("broadcast delivered")
		return nil

	case queue.JobReconcileDebts:
		fixed, err := p.debts.ReconcileDebts(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("corrected", fixed).Msg("debts reconciled")
		return nil

	case queue.JobSweepOrphans:
		report, err := p.sweeper.SweepOrphans(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Int64("user_refs", report.UserRefsPulled).
			Int64("penalties", report.PenaltiesRemoved).
			Int64("messages", report.MessagesRemoved).
			Int64("memberships", report.MembershipsPulled).
			Msg("orphans swept")
		return nil

	default:
		return permanentError{fmt.Errorf("unknown job type %q", job.Type)}
	}
}

func (p *Processor) count(typ, result string) {
	if p.metrics == nil {
		return
	}
	p.metrics.JobsProcessed.WithLabelValues(typ, result).Inc()
}
