package chat

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub(client, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	select {
	case <-hub.Ready():
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("hub did not subscribe")
	}
	return hub, cancel
}

func TestHubWakesSubscribers(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	wake, unsubscribe := hub.Subscribe("g1")
	defer unsubscribe()
	other, unsubscribeOther := hub.Subscribe("g2")
	defer unsubscribeOther()

	if err := hub.Publish(context.Background(), "g1", 7); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-wake:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber of g1 was not woken")
	}

	select {
	case <-other:
		t.Fatal("subscriber of g2 must not be woken")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnsubscribeRemovesWaiter(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	_, unsubscribe := hub.Subscribe("g1")
	if got := hub.Waiting("g1"); got != 1 {
		t.Fatalf("Waiting = %d, want 1", got)
	}
	unsubscribe()
	if got := hub.Waiting("g1"); got != 0 {
		t.Fatalf("Waiting after unsubscribe = %d, want 0", got)
	}
}
