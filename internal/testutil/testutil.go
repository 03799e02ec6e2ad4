// Package testutil provides MongoDB-backed helpers for integration tests.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/crlx1q/antimat/internal/config"
	"github.com/crlx1q/antimat/internal/database"
)

const defaultTestURI = "mongodb://127.0.0.1:27017"

func testURI() string {
	if uri := os.Getenv("ANTIMAT_TEST_MONGO_URI"); uri != "" {
		return uri
	}
	return defaultTestURI
}

// TestContext returns a context suitable for a single test step.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

// SetupTestDB returns a fresh database with indexes applied. The database
// is dropped when the test finishes. Tests are skipped when no server is
// reachable.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	return SetupTestMongo(t).DB
}

// SetupTestMongo is SetupTestDB for code that needs the transaction aware
// wrapper.
func SetupTestMongo(t *testing.T) *database.Mongo {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(testURI()).
		SetServerSelectionTimeout(2*time.Second))
	if err != nil {
		t.Skipf("mongo not available: %v", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("mongo not available: %v", err)
	}
	_ = client.Disconnect(context.Background())

	name := "antimat_test_" + sanitize(t.Name()) + "_" + time.Now().Format("150405.000000")
	name = strings.ReplaceAll(name, ".", "_")
	if len(name) > 60 {
		name = name[len(name)-60:]
	}

	m, err := database.Connect(context.Background(), config.MongoConfig{
		URI:            testURI(),
		Database:       name,
		ConnectTimeout: 3 * time.Second,
		RetryDelay:     100 * time.Millisecond,
		MaxRetries:     1,
	}, zerolog.Nop())
	if err != nil {
		t.Skipf("mongo not available: %v", err)
	}

	setupCtx, setupCancel := TestContext()
	defer setupCancel()
	if err := database.EnsureIndexes(setupCtx, m.DB); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := TestContext()
		defer cancel()
		_ = m.DB.Drop(ctx)
		_ = m.Close(ctx)
	})
	return m
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
