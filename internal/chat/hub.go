package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "chat:group:"

func channelFor(groupID string) string {
	return channelPrefix + groupID
}

// Hub wakes long-pollers when a message is stored. Every API instance keeps
// one pattern subscription and fans notifications out to local waiters, so
// a message sent through one instance wakes pollers on all of them.
type Hub struct {
	client *redis.Client
	logger zerolog.Logger

	mu      sync.Mutex
	waiters map[string]map[chan struct{}]struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

func NewHub(client *redis.Client, logger zerolog.Logger) *Hub {
	return &Hub{
		client:  client,
		logger:  logger,
		waiters: make(map[string]map[chan struct{}]struct{}),
		ready:   make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled. The go-redis PubSub reconnects on its
// own; notifications lost in between are covered by the poller's re-check.
func (h *Hub) Run(ctx context.Context) error {
	pubsub := h.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("chat hub subscribe: %w", err)
	}
	h.readyOnce.Do(func() { close(h.ready) })
	h.logger.Info().Msg("chat hub subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.wake(strings.TrimPrefix(msg.Channel, channelPrefix))
		}
	}
}

// Ready is closed once the subscription is active.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

func (h *Hub) Publish(ctx context.Context, groupID string, seq int64) error {
	return h.client.Publish(ctx, channelFor(groupID), strconv.FormatInt(seq, 10)).Err()
}

// Subscribe registers a local waiter for the group. The returned channel
// receives at most one pending signal; cancel must be called when done.
func (h *Hub) Subscribe(groupID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	set, ok := h.waiters[groupID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.waiters[groupID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.waiters[groupID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.waiters, groupID)
			}
		}
	}
}

func (h *Hub) wake(groupID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.waiters[groupID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Waiting reports how many pollers are parked on the group.
func (h *Hub) Waiting(groupID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters[groupID])
}
