package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crlx1q/antimat/internal/config"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/storage"
	"github.com/crlx1q/antimat/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: contentType}, nil
}

func (s *memStore) Copy(_ context.Context, src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[src]
	if !ok {
		return storage.ErrObjectNotFound
	}
	s.objects[dst] = data
	return nil
}

func (s *memStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) Open(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *memStore) Health(context.Context) error { return nil }

// localHub wakes pollers inside the test process.
type localHub struct {
	mu      sync.Mutex
	waiters map[string][]chan struct{}
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

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, queue.JobType, any) (string, error) {
	return "job", nil
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	store  *memStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	m := testutil.SetupTestMongo(t)

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTSecret:     "test-secret",
			JWTTTL:        time.Hour,
			AdminSecret:   "admin-secret",
			AdminTTL:      time.Hour,
			AdminPassword: "letmein",
		},
		Chat: config.ChatConfig{
			PollTimeout:    time.Second,
			PollInterval:   100 * time.Millisecond,
			PollMaxTimeout: 2 * time.Second,
			HistoryLimit:   50,
		},
		Storage: config.StorageConfig{MaxUpload: 1 << 20},
		Words:   config.WordsConfig{Defaults: []string{"блин"}},
		Site:    config.SiteConfig{PublicBaseURL: "https://example.test"},
	}

	store := &memStore{objects: map[string][]byte{}}
	h := NewHandlerSet(zerolog.Nop(), cfg, Deps{
		Mongo: m,
		Cache: cache,
		Store: store,
		Hub:   &localHub{waiters: map[string][]chan struct{}{}},
		Jobs:  nopQueue{},
	})

	engine := gin.New()
	h.Register(engine)
	return &testServer{t: t, engine: engine, store: store}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(method, path, token string, body any) (int, response) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(req, token)
}

func (s *testServer) send(req *http.Request, token string) (int, response) {
	s.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			s.t.Fatalf("decode %s %s: %v (%s)", req.Method, req.URL.Path, err, rec.Body.String())
		}
	}
	return rec.Code, resp
}

func (s *testServer) register(name, email string) (string, string) {
	s.t.Helper()
	status, resp := s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email":    email,
		"password": "secret1",
		"name":     name,
	})
	if status != http.StatusCreated {
		s.t.Fatalf("register %s: %d %+v", email, status, resp)
	}
	var data struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decode(s.t, resp.Data, &data)
	return data.Token, data.User.ID
}

func decode(t *testing.T, raw json.RawMessage, out any) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode data %s: %v", raw, err)
	}
}
