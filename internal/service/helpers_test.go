package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/crlx1q/antimat/internal/chat"
	"github.com/crlx1q/antimat/internal/config"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/repository"
	"github.com/crlx1q/antimat/internal/testutil"
)

// localHub wakes pollers in process. It stands in for the Redis backed hub.
type localHub struct {
	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

func newLocalHub() *localHub {
	return &localHub{waiters: map[string][]chan struct{}{}}
}

func (h *localHub) Publish(_ context.Context, groupID string, _ int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.waiters[groupID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (h *localHub) Subscribe(groupID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.waiters[groupID] = append(h.waiters[groupID], ch)
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.waiters[groupID]
		for i, c := range list {
			if c == ch {
				h.waiters[groupID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

type recordedJob struct {
	Type    queue.JobType
	Payload any
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []recordedJob
}

func (q *fakeQueue) Enqueue(_ context.Context, typ queue.JobType, payload any) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, recordedJob{Type: typ, Payload: payload})
	return "job-" + string(typ), nil
}

func (q *fakeQueue) byType(typ queue.JobType) []recordedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []recordedJob
	for _, j := range q.jobs {
		if j.Type == typ {
			out = append(out, j)
		}
	}
	return out
}

// env wires every service against a throwaway database.
type env struct {
	fixtures  *testutil.Fixtures
	hub       *localHub
	jobs      *fakeQueue
	updates   *repository.UpdateRepository
	penalties *PenaltyService
	groups    *GroupService
	chat      *ChatService
	admin     *AdminService
	users     *UserService
	words     *WordService
	auth      *AuthService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	m := testutil.SetupTestMongo(t)
	fixtures := testutil.NewFixtures(t, m.DB)
	log := zerolog.Nop()
	hub := newLocalHub()
	jobs := &fakeQueue{}

	cfg := &config.AppConfig{
		Security: config.SecurityConfig{
			JWTSecret:     "test-secret",
			JWTTTL:        time.Hour,
			AdminSecret:   "admin-secret",
			AdminTTL:      time.Hour,
			AdminPassword: "letmein",
		},
		Chat: config.ChatConfig{
			PollTimeout:    2 * time.Second,
			PollInterval:   200 * time.Millisecond,
			PollMaxTimeout: 5 * time.Second,
			HistoryLimit:   50,
		},
		Words: config.WordsConfig{Defaults: []string{"сука", "блять"}},
	}

	updates := repository.NewUpdateRepository(m.DB)
	poller := chat.NewPoller(fixtures.Messages, hub, cfg.Chat.PollInterval, cfg.Chat.HistoryLimit)

	return &env{
		fixtures:  fixtures,
		hub:       hub,
		jobs:      jobs,
		updates:   updates,
		penalties: NewPenaltyService(m, fixtures.Users, fixtures.Groups, fixtures.Penalties, fixtures.Messages, hub, nil, log),
		groups:    NewGroupService(m, fixtures.Users, fixtures.Groups, fixtures.Penalties, fixtures.Messages, hub, "https://example.test", log),
		chat:      NewChatService(fixtures.Users, fixtures.Groups, fixtures.Messages, hub, poller, jobs, cfg.Chat, nil, log),
		admin:     NewAdminService(m, fixtures.Users, fixtures.Groups, fixtures.Penalties, fixtures.Messages, jobs, cfg.Security, log),
		users:     NewUserService(fixtures.Users, fixtures.Groups, jobs, log),
		words:     NewWordService(fixtures.Users, log),
		auth:      NewAuthService(fixtures.Users, cfg, log),
	}
}
