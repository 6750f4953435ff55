package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mandir-erp/mandir-ledger/internal/shared"
)

type memoryGuard struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
}

func (g *memoryGuard) CheckAndInsert(_ context.Context, key, module string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed == nil {
		g.claimed = map[string]bool{}
	}
	if g.claimed[module+"|"+key] {
		return shared.ErrIdempotencyConflict
	}
	g.claimed[module+"|"+key] = true
	return nil
}

func (g *memoryGuard) Release(_ context.Context, key, module string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, module+"|"+key)
	g.released = append(g.released, key)
	return nil
}

func newSessions(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "mandir_session", time.Hour, false)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestActorMiddlewareRequiresSession(t *testing.T) {
	sessions := newSessions(t)
	h := ActorMiddleware(sessions, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a session")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActorMiddlewarePutsActorOnContext(t *testing.T) {
	sessions := newSessions(t)
	sess, err := sessions.Issue(context.Background(), shared.Actor{ID: 7, Role: shared.RoleAccountant})
	require.NoError(t, err)

	var seen shared.Actor
	h := ActorMiddleware(sessions, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+sess.ID)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, int64(7), seen.ID)
	require.True(t, seen.Privileged())
}

func TestIdempotencyMiddlewareRejectsReplay(t *testing.T) {
	guard := &memoryGuard{}
	calls := 0
	h := IdempotencyMiddleware(guard, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/journals", nil)
		req.Header.Set(IdempotencyHeader, "abc")
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: 3}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusCreated, send().Code)
	replay := send()
	require.Equal(t, http.StatusConflict, replay.Code)
	require.Equal(t, 1, calls)

	var body map[string]any
	require.NoError(t, json.Unmarshal(replay.Body.Bytes(), &body))
	require.Equal(t, "AlreadyProcessed", body["kind"])
}

func TestIdempotencyMiddlewareReleasesFailedRequests(t *testing.T) {
	guard := &memoryGuard{}
	status := http.StatusUnprocessableEntity
	h := IdempotencyMiddleware(guard, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/payments", nil)
		req.Header.Set(IdempotencyHeader, "k1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusUnprocessableEntity, send())
	require.Equal(t, []string{"0:k1"}, guard.released)

	status = http.StatusCreated
	require.Equal(t, http.StatusCreated, send())
}

func TestIdempotencyMiddlewareIgnoresReadsAndMissingKey(t *testing.T) {
	guard := &memoryGuard{}
	calls := 0
	h := IdempotencyMiddleware(guard, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/api/journals", nil)
		req.Header.Set(IdempotencyHeader, "same")
		h.ServeHTTP(httptest.NewRecorder(), req)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/journals", nil))
	}
	require.Equal(t, 4, calls)
	require.Empty(t, guard.claimed)
}

func TestRouterHealthAndProtectedAPI(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:   quietLogger(),
		Config:   &Config{RateLimit: 100},
		Sessions: newSessions(t),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
