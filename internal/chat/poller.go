package chat

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/models"
)

type MessageSource interface {
	After(ctx context.Context, groupID primitive.ObjectID, seq int64, limit int) ([]models.ChatMessage, error)
	Latest(ctx context.Context, groupID primitive.ObjectID, limit int) ([]models.ChatMessage, error)
}

type Waker interface {
	Subscribe(groupID string) (<-chan struct{}, func())
}

type PollResult struct {
	Messages       []models.ChatMessage
	HasNewMessages bool
}

// Poller implements the deferred chat read. It re-checks storage whenever
// the waker signals and at least once per interval.
type Poller struct {
	source   MessageSource
	waker    Waker
	interval time.Duration
	// grace is how long a hole in the sequence is treated as an insert still
	// in flight rather than a lost sequence number. It stays below interval
	// so a lost number never delays later messages past one poll period.
	grace time.Duration
	limit int
	now   func() time.Time
}

func NewPoller(source MessageSource, waker Waker, interval time.Duration, limit int) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if limit <= 0 {
		limit = 50
	}
	return &Poller{
		source:   source,
		waker:    waker,
		interval: interval,
		grace:    interval / 2,
		limit:    limit,
		now:      time.Now,
	}
}

// Poll waits up to timeout for messages newer than afterSeq. A nil afterSeq
// means the client has no cursor and gets the most recent page.
// Cancelling ctx ends the wait with ctx.Err().
func (p *Poller) Poll(ctx context.Context, groupID primitive.ObjectID, afterSeq *int64, timeout time.Duration) (PollResult, error) {
	// Subscribe before the first check so a message stored in between is
	// not missed.
	wake, cancel := p.waker.Subscribe(groupID.Hex())
	defer cancel()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	recheck := time.NewTimer(0)
	stopTimer(recheck)
	defer recheck.Stop()

	for {
		messages, held, err := p.check(ctx, groupID, afterSeq)
		if err != nil {
			return PollResult{}, err
		}
		if len(messages) > 0 {
			return PollResult{Messages: messages, HasNewMessages: true}, nil
		}
		// Messages behind a fresh hole are due once the hole's grace runs
		// out, which may fall between two ticks.
		stopTimer(recheck)
		if held > 0 {
			recheck.Reset(held)
		}

		select {
		case <-ctx.Done():
			return PollResult{}, ctx.Err()
		case <-deadline.C:
			return PollResult{Messages: []models.ChatMessage{}, HasNewMessages: false}, nil
		case <-wake:
		case <-ticker.C:
		case <-recheck.C:
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// check returns the deliverable messages and, when a fresh hole held some
// back, how long until they become deliverable.
func (p *Poller) check(ctx context.Context, groupID primitive.ObjectID, afterSeq *int64) ([]models.ChatMessage, time.Duration, error) {
	if afterSeq == nil {
		messages, err := p.source.Latest(ctx, groupID, p.limit)
		return messages, 0, err
	}
	messages, err := p.source.After(ctx, groupID, *afterSeq, p.limit)
	if err != nil {
		return nil, 0, err
	}
	kept, held := trimGaps(messages, *afterSeq, p.now(), p.grace)
	return kept, held, nil
}

// trimGaps cuts the batch at the first recent hole in the sequence. Without
// a transaction a message can take its number before an earlier one is
// stored; returning past the hole would move the client's cursor beyond it.
// The second result is the time left before the first held message's hole
// counts as permanent, or zero when nothing was held.
func trimGaps(messages []models.ChatMessage, afterSeq int64, now time.Time, grace time.Duration) ([]models.ChatMessage, time.Duration) {
	expected := afterSeq + 1
	for i, m := range messages {
		if age := now.Sub(m.CreatedAt); m.Seq != expected && age < grace {
			return messages[:i], grace - age
		}
		expected = m.Seq + 1
	}
	return messages, 0
}
