package push

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/metrics"
)

// ChatMessageJob is enqueued by the API when a chat message is sent.
type ChatMessageJob struct {
	Recipients []string `json:"recipients"`
	GroupID    string   `json:"groupId"`
	GroupName  string   `json:"groupName"`
	SenderName string   `json:"senderName"`
	MessageID  string   `json:"messageId"`
	Text       string   `json:"text"`
	CreatedAt  string   `json:"createdAt"`
}

// PresenceJob announces a status change to the other members of a group.
type PresenceJob struct {
	Recipients []string `json:"recipients"`
	GroupID    string   `json:"groupId"`
	UserID     string   `json:"userId"`
	Status     string   `json:"status"`
}

// BroadcastJob goes to every user with a registered token.
type BroadcastJob struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type TokenStore interface {
	PushTokens(ctx context.Context, ids []primitive.ObjectID) ([]string, error)
	AllPushTokens(ctx context.Context) ([]string, error)
	ClearPushTokens(ctx context.Context, tokens []string) (int64, error)
}

// Dispatcher resolves recipients to tokens and hands messages to a Sender.
// It runs in the worker.
type Dispatcher struct {
	tokens  TokenStore
	sender  Sender
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewDispatcher(tokens TokenStore, sender Sender, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{tokens: tokens, sender: sender, metrics: m, logger: logger, now: time.Now}
}

func (d *Dispatcher) ChatMessage(ctx context.Context, job ChatMessageJob) error {
	sender := job.SenderName
	if sender == "" {
		sender = "Участник"
	}
	msg := Message{
		Title: job.GroupName,
		Body:  sender + ": " + job.Text,
		Data: map[string]string{
			"type":       "chat_message",
			"groupId":    job.GroupID,
			"groupName":  job.GroupName,
			"senderName": job.SenderName,
			"messageId":  job.MessageID,
			"text":       job.Text,
			"createdAt":  job.CreatedAt,
		},
	}
	_, err := d.toUsers(ctx, "chat_message", job.Recipients, msg)
	return err
}

// Presence pushes are data-only so the client updates silently.
func (d *Dispatcher) Presence(ctx context.Context, job PresenceJob) error {
	msg := Message{Data: map[string]string{
		"type":    "presence",
		"groupId": job.GroupID,
		"userId":  job.UserID,
		"status":  job.Status,
	}}
	_, err := d.toUsers(ctx, "presence", job.Recipients, msg)
	return err
}

func (d *Dispatcher) Broadcast(ctx context.Context, job BroadcastJob) (Result, error) {
	tokens, err := d.tokens.AllPushTokens(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load tokens: %w", err)
	}
	msg := Message{
		Title: job.Title,
		Body:  job.Body,
		Data: map[string]string{
			"type": "test",
			"ts":   strconv.FormatInt(d.now().UnixMilli(), 10),
		},
	}
	return d.deliver(ctx, "broadcast", tokens, msg)
}

func (d *Dispatcher) toUsers(ctx context.Context, kind string, recipients []string, msg Message) (Result, error) {
	ids := make([]primitive.ObjectID, 0, len(recipients))
	for _, r := range recipients {
		id, err := primitive.ObjectIDFromHex(r)
		if err != nil {
			d.logger.Warn().Str("recipient", r).Msg("skipping malformed recipient id")
			continue
		}
		ids = append(ids, id)
	}
	tokens, err := d.tokens.PushTokens(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("load tokens: %w", err)
	}
	return d.deliver(ctx, kind, tokens, msg)
}

func (d *Dispatcher) deliver(ctx context.Context, kind string, tokens []string, msg Message) (Result, error) {
	if len(tokens) == 0 {
		return Result{}, nil
	}

	result, err := d.sender.Send(ctx, tokens, msg)
	if errors.Is(err, ErrDisabled) {
		return Result{}, nil
	}
	if err != nil {
		d.count(kind, "error", 1)
		return result, err
	}
	d.count(kind, "success", result.Success)
	d.count(kind, "failure", result.Failure)

	if len(result.Unregistered) > 0 {
		cleared, err := d.tokens.ClearPushTokens(ctx, result.Unregistered)
		if err != nil {
			d.logger.Error().Err(err).Msg("clear unregistered tokens failed")
		} else {
			d.logger.Info().Int64("cleared", cleared).Msg("removed unregistered push tokens")
		}
	}

	d.logger.Debug().
		Str("kind", kind).
		Int("success", result.Success).
		Int("failure", result.Failure).
		Msg("push delivered")
	return result, nil
}

func (d *Dispatcher) count(kind, result string, n int) {
	if d.metrics == nil || n == 0 {
		return
	}
	d.metrics.PushSent.WithLabelValues(kind, result).Add(float64(n))
}
