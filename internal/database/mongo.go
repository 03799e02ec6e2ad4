package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/crlx1q/antimat/internal/config"
)

// Mongo bundles the client with the application database. The driver keeps
// reconnecting on its own once the first connection succeeded.
type Mongo struct {
	Client *mongo.Client
	DB     *mongo.Database

	// transactions is cleared by the first request that learns the server
	// refuses them, while other requests read it.
	transactions atomic.Bool
}

// Connect dials MongoDB, retrying with a fixed delay until the server
// answers a ping. MaxRetries of zero retries until ctx is cancelled.
func Connect(ctx context.Context, cfg config.MongoConfig, logger zerolog.Logger) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		err = client.Ping(pingCtx, readpref.Primary())
		cancel()
		if err == nil {
			break
		}
		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("mongo ping after %d attempts: %w", attempt, err)
		}
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", cfg.RetryDelay).Msg("mongo unavailable")

		select {
		case <-ctx.Done():
			_ = client.Disconnect(context.Background())
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}

	m := &Mongo{Client: client, DB: client.Database(cfg.Database)}
	m.transactions.Store(detectTransactions(ctx, client))
	logger.Info().
		Str("database", cfg.Database).
		Bool("transactions", m.transactions.Load()).
		Msg("mongo connected")
	return m, nil
}

// Health pings the primary. It is cheap enough to run per health request.
func (m *Mongo) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return m.Client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *Mongo) SupportsTransactions() bool {
	return m.transactions.Load()
}

// RunInTransaction executes fn inside a multi-document transaction when the
// deployment allows it. On standalone servers fn runs once without a
// session. fn must be safe to re-run: the driver retries transient errors.
func (m *Mongo) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !m.transactions.Load() {
		return fn(ctx)
	}

	session, err := m.Client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			return fn(ctx)
		}
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	ran := false
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		ran = true
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		if ran {
			// The server refused the transaction after work was attempted;
			// everything inside was rolled back so a plain run is safe.
			m.transactions.Store(false)
		}
		return fn(ctx)
	}
	return err
}

func detectTransactions(ctx context.Context, client *mongo.Client) bool {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid"
}

// IsNotSupported reports whether err means the deployment cannot run
// sessions or multi-document transactions.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263:
			return true
		}
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "transaction") && strings.Contains(s, "replica set"):
		return true
	case strings.Contains(s, "session") && strings.Contains(s, "not supported"):
		return true
	case strings.Contains(s, "transaction") && strings.Contains(s, "session"):
		return true
	case strings.Contains(s, "illegal operation"):
		return true
	}
	return false
}

// IsDup reports a unique index violation (E11000).
func IsDup(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return mongo.IsDuplicateKeyError(err)
}
