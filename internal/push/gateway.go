// Package push delivers mobile notifications through Firebase Cloud
// Messaging.
package push

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/crlx1q/antimat/internal/config"
)

// multicastLimit is the FCM cap on tokens per multicast request.
const multicastLimit = 500

var ErrDisabled = errors.New("push delivery disabled")

type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Result aggregates per-token outcomes. Unregistered lists tokens the
// provider no longer recognises.
type Result struct {
	Success      int
	Failure      int
	Unregistered []string
}

type Sender interface {
	Send(ctx context.Context, tokens []string, msg Message) (Result, error)
}

type FirebaseSender struct {
	client *messaging.Client
}

func NewFirebaseSender(ctx context.Context, cfg config.PushConfig) (*FirebaseSender, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return &FirebaseSender{client: client}, nil
}

func (s *FirebaseSender) Send(ctx context.Context, tokens []string, msg Message) (Result, error) {
	var result Result
	for start := 0; start < len(tokens); start += multicastLimit {
		end := start + multicastLimit
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		mm := &messaging.MulticastMessage{
			Tokens: batch,
			Data:   msg.Data,
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
		}
		if msg.Title != "" || msg.Body != "" {
			mm.Notification = &messaging.Notification{Title: msg.Title, Body: msg.Body}
		}

		resp, err := s.client.SendEachForMulticast(ctx, mm)
		if err != nil {
			return result, fmt.Errorf("fcm multicast: %w", err)
		}
		result.Success += resp.SuccessCount
		result.Failure += resp.FailureCount
		for i, r := range resp.Responses {
			if r.Success || r.Error == nil {
				continue
			}
			if messaging.IsUnregistered(r.Error) {
				result.Unregistered = append(result.Unregistered, batch[i])
			}
		}
	}
	return result, nil
}

// NoopSender is used when push is disabled. It logs what would be sent.
type NoopSender struct {
	Logger zerolog.Logger
}

func (s NoopSender) Send(_ context.Context, tokens []string, msg Message) (Result, error) {
	s.Logger.Debug().
		Int("tokens", len(tokens)).
		Str("type", msg.Data["type"]).
		Msg("push disabled, dropping notification")
	return Result{}, ErrDisabled
}
