package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/repository"
)

// Transactor runs fn atomically where the deployment allows it.
// *database.Mongo implements it.
type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// isolates reports whether tx really isolates fn. Transactors that cannot
// tell are assumed not to.
func isolates(tx Transactor) bool {
	t, ok := tx.(interface{ SupportsTransactions() bool })
	return ok && t.SupportsTransactions()
}

// JobQueue hands work to the worker. *queue.Producer implements it.
type JobQueue interface {
	Enqueue(ctx context.Context, typ queue.JobType, payload any) (string, error)
}

// ChatPublisher wakes long-pollers of a group. *chat.Hub implements it.
type ChatPublisher interface {
	Publish(ctx context.Context, groupID string, seq int64) error
}

// ParseID converts a path or body identifier.
func ParseID(s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return id, nil
}

// chatWriter appends messages and wakes pollers. Inserts may run inside a
// transaction; notify must only be called once the writes are committed.
type chatWriter struct {
	messages  *repository.MessageRepository
	publisher ChatPublisher
	logger    zerolog.Logger
}

func (w chatWriter) insert(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return w.messages.Insert(ctx, msg)
}

func (w chatWriter) notify(ctx context.Context, msgs ...models.ChatMessage) {
	if w.publisher == nil {
		return
	}
	for _, m := range msgs {
		if err := w.publisher.Publish(ctx, m.Group.Hex(), m.Seq); err != nil {
			w.logger.Warn().Err(err).Str("group_id", m.Group.Hex()).Msg("publish chat wake-up failed")
		}
	}
}

// enqueue never fails the caller; push and background work are best effort.
func enqueue(ctx context.Context, q JobQueue, logger zerolog.Logger, typ queue.JobType, payload any) {
	if q == nil {
		return
	}
	if _, err := q.Enqueue(ctx, typ, payload); err != nil {
		logger.Warn().Err(err).Str("job_type", string(typ)).Msg("enqueue failed")
	}
}

func hexIDs(ids []primitive.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// normalizePage clamps client supplied paging to sane values.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func newPagination(page, limit int, total int64) Pagination {
	pages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}
