package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crlx1q/antimat/internal/ids"
)

// Producer appends jobs to the stream read by the worker.
type Producer struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewProducer(client *redis.Client, stream string, maxLen int64) *Producer {
	return &Producer{client: client, stream: stream, maxLen: maxLen}
}

func (p *Producer) Enqueue(ctx context.Context, typ JobType, payload any) (string, error) {
	if p == nil || p.client == nil {
		return "", nil
	}

	body := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("encode %s payload: %w", typ, err)
		}
		body = string(raw)
	}

	job := Job{
		ID:         ids.New(),
		Type:       typ,
		Payload:    body,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: job.Values(),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", typ, err)
	}
	return job.ID, nil
}
