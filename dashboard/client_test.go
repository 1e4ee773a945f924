package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsetrail/api/config"
	"pulsetrail/api/handlers"
	"pulsetrail/api/middleware"
	"pulsetrail/api/models"
	"pulsetrail/api/store"
	"pulsetrail/api/stream"
)

const operatorToken = "operator-secret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// apiServer runs the real router over a memory store and can inject failures.
type apiServer struct {
	*httptest.Server
	store *store.MemoryStore

	mu         sync.Mutex
	requests   map[string]int
	failStatus map[string]int
}

func newAPIServer(t *testing.T) *apiServer {
	t.Helper()
	mem := store.NewMemoryStore()
	router := handlers.NewRouter(handlers.Dependencies{
		Config: &config.Config{
			Server: config.ServerConfig{QueryTimeout: time.Second},
			Auth:   config.AuthConfig{AdminToken: operatorToken, JWTSecret: "jwt", JWTTTL: time.Hour},
			Track:  config.TrackConfig{IngestTimeout: time.Second},
		},
		Store:   mem,
		Feed:    stream.NewFeed(stream.NopPublisher{}, time.Second),
		Limiter: middleware.NewRateLimiter(0, 0),
	})

	s := &apiServer{store: mem, requests: map[string]int{}, failStatus: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.URL.Path]++
		status := s.failStatus[r.URL.Path]
		s.mu.Unlock()

		if status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error":"injected %d"}`, status)
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *apiServer) fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus[path] = status
}

func (s *apiServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

var base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// seedScenarioA stores three page views and two "Contact" clicks.
func (s *apiServer) seedScenarioA(t *testing.T) {
	t.Helper()
	events := []models.Event{
		{ID: "pv1", EventType: "page_view", PagePath: "/", SessionID: "s1"},
		{ID: "pv2", EventType: "page_view", PagePath: "/", SessionID: "s1"},
		{ID: "pv3", EventType: "page_view", PagePath: "/", SessionID: "s2"},
		{ID: "c1", EventType: "click", ElementText: "Contact", PagePath: "/", SessionID: "s1"},
		{ID: "c2", EventType: "click", ElementText: "Contact", PagePath: "/", SessionID: "s2"},
	}
	for i, e := range events {
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.store.Insert(context.Background(), e))
	}
}

func newClient(t *testing.T, s *apiServer, tokens TokenStore) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: s.URL + "/", Timeout: 2 * time.Second, Tokens: tokens})
	require.NoError(t, err)
	return c
}

func TestLogin_InvalidToken(t *testing.T) {
	s := newAPIServer(t)
	s.seedScenarioA(t)
	tokens := &MemoryTokenStore{}
	require.NoError(t, tokens.Save("stale"))
	c := newClient(t, s, tokens)

	err := c.Login(context.Background(), "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.ErrorIs(t, c.Err(), ErrUnauthorized)

	_, ok := c.Snapshot()
	assert.False(t, ok, "no data after a rejected token")
	saved, _ := tokens.Load()
	assert.Empty(t, saved, "the saved token slot is cleared")
}

func TestLogin_Success(t *testing.T) {
	s := newAPIServer(t)
	s.seedScenarioA(t)
	tokens := &MemoryTokenStore{}
	c := newClient(t, s, tokens)

	require.NoError(t, c.Login(context.Background(), "  "+operatorToken+"  "))
	assert.Equal(t, StateAuthenticated, c.State())
	assert.NoError(t, c.Err())

	snap, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 5, snap.Summary.TotalEvents)
	assert.Equal(t, map[string]int{"page_view": 3, "click": 2}, snap.Summary.EventTypes)
	assert.Equal(t, map[string]int{"Contact": 2}, snap.Summary.TopElements)

	saved, _ := tokens.Load()
	assert.Equal(t, operatorToken, saved)
}

func TestLogin_EmptyToken(t *testing.T) {
	s := newAPIServer(t)
	c := newClient(t, s, nil)

	assert.ErrorIs(t, c.Login(context.Background(), "   "), ErrEmptyToken)
	assert.Equal(t, 0, s.count("/api/analytics/data"))
}

func TestResume(t *testing.T) {
	s := newAPIServer(t)
	dir := t.TempDir()

	c := newClient(t, s, FileTokenStore{Dir: dir})
	require.NoError(t, c.Resume(context.Background()))
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Equal(t, 0, s.count("/api/analytics/data"), "nothing saved, nothing fetched")

	require.NoError(t, FileTokenStore{Dir: dir}.Save(operatorToken))
	c = newClient(t, s, FileTokenStore{Dir: dir})
	require.NoError(t, c.Resume(context.Background()))
	assert.Equal(t, StateAuthenticated, c.State())
}

func TestDeleteEvent_ScenariosBAndC(t *testing.T) {
	s := newAPIServer(t)
	s.seedScenarioA(t)
	c := newClient(t, s, nil)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, operatorToken))

	sent, err := c.DeleteEvent(ctx, "c1", AlwaysConfirm)
	require.NoError(t, err)
	require.True(t, sent)

	snap, _ := c.Snapshot()
	assert.Equal(t, map[string]int{"page_view": 3, "click": 1}, snap.Summary.EventTypes)
	assert.Equal(t, map[string]int{"Contact": 1}, snap.Summary.TopElements)
	assert.Equal(t, 4, snap.Summary.TotalEvents)
	assert.Equal(t, 4, snap.TotalEvents)
	assert.Equal(t, 1, s.count("/api/analytics/data"), "no refetch after a delete")

	_, err = c.DeleteEvent(ctx, "c2", AlwaysConfirm)
	require.NoError(t, err)

	snap, _ = c.Snapshot()
	assert.Equal(t, map[string]int{"page_view": 3}, snap.Summary.EventTypes)
	assert.Empty(t, snap.Summary.TopElements)

	assertMatchesServer(t, c)
}

func TestDeleteEvent_DeclinedConfirmation(t *testing.T) {
	s := newAPIServer(t)
	s.seedScenarioA(t)
	c := newClient(t, s, nil)
	require.NoError(t, c.Login(context.Background(), operatorToken))
	before, _ := c.Snapshot()

	var prompt string
	sent, err := c.DeleteEvent(context.Background(), "c1", ConfirmFunc(func(p string) bool {
		prompt = p
		return false
	}))
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, DeletePrompt, prompt)
	assert.Equal(t, 0, s.count("/api/analytics/delete"))

	after, _ := c.Snapshot()
	assert.Equal(t, before, after)
}

func TestDeleteEvent_FailureLeavesSnapshotUntouched(t *testing.T) {
	s := newAPIServer(t)
	s.seedScenarioA(t)
	c := newClient(t, s, nil)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, operatorToken))
	before, _ := c.Snapshot()

	s.fail("/api/analytics/delete", http.StatusInternalServerError)
	_, err := c.DeleteEvent(ctx, "c1", AlwaysConfirm)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Equal(t, "injected 500", statusErr.Message)
	assert.Equal(t, StateError, c.State())

	after, _ := c.Snapshot()
	assert.Equal(t, before, after, "a failed delete must not decrement anything")

	// Reset is the way back to a fresh login.
	require.NoError(t, c.Reset())
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.NoError(t, c.Err())
	_, ok := c.Snapshot()
	assert.False(t, ok)
}

func TestDeleteEvent_Unauthorized(t *testing.T) {
	s := newAPIServer(t)
	s.seedScenarioA(t)
	tokens := &MemoryTokenStore{}
	c := newClient(t, s, tokens)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, operatorToken))

	s.fail("/api/analytics/delete", http.StatusUnauthorized)
	_, err := c.DeleteEvent(ctx, "c1", AlwaysConfirm)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, StateUnauthenticated, c.State())
	saved, _ := tokens.Load()
	assert.Empty(t, saved)

	_, err = c.DeleteEvent(ctx, "c2", AlwaysConfirm)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestDeleteEvent_NetworkFailure(t *testing.T) {
	s := newAPIServer(t)
	s.seedScenarioA(t)
	c := newClient(t, s, nil)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, operatorToken))
	before, _ := c.Snapshot()

	s.Close()
	_, err := c.DeleteEvent(ctx, "c1", AlwaysConfirm)

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, "delete", transient.Op)
	assert.Equal(t, StateError, c.State())
	after, _ := c.Snapshot()
	assert.Equal(t, before, after)
}

func TestDeleteEvent_AlreadyDeletedOnServer(t *testing.T) {
	s := newAPIServer(t)
	s.seedScenarioA(t)
	c := newClient(t, s, nil)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, operatorToken))

	// Someone else removed the event after our fetch.
	_, err := s.store.Delete(ctx, "pv3")
	require.NoError(t, err)

	_, err = c.DeleteEvent(ctx, "pv3", AlwaysConfirm)
	require.NoError(t, err)
	assertMatchesServer(t, c)
}

// Concurrent deletes each apply against the latest cached state.
func TestDeleteEvent_Concurrent(t *testing.T) {
	s := newAPIServer(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("e%02d", i)
		ids = append(ids, id)
		require.NoError(t, s.store.Insert(ctx, models.Event{
			ID:          id,
			EventType:   []string{"page_view", "clicked"}[i%2],
			ElementText: []string{"", "Contact", "GitHub"}[i%3],
			PagePath:    []string{"/", "/blog"}[i%2],
			SessionID:   fmt.Sprintf("s%d", i%4),
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}))
	}

	c := newClient(t, s, nil)
	require.NoError(t, c.Login(ctx, operatorToken))

	var wg sync.WaitGroup
	for _, id := range ids[:15] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := c.DeleteEvent(ctx, id, AlwaysConfirm)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	snap, _ := c.Snapshot()
	assert.Len(t, snap.Events, 15)
	assertMatchesServer(t, c)
}

func TestClearAll(t *testing.T) {
	s := newAPIServer(t)
	s.seedScenarioA(t)
	c := newClient(t, s, nil)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, operatorToken))

	sent, err := c.ClearAll(ctx, AlwaysConfirm)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, 2, s.count("/api/analytics/data"), "purge is followed by a full fetch")

	snap, ok := c.Snapshot()
	require.True(t, ok)
	assert.Empty(t, snap.Events)
	assert.Equal(t, 0, snap.Summary.TotalEvents)
	assert.Empty(t, snap.Summary.EventTypes)
	assert.Equal(t, StateAuthenticated, c.State())
}

func TestClearAll_Declined(t *testing.T) {
	s := newAPIServer(t)
	c := newClient(t, s, nil)

	sent, err := c.ClearAll(context.Background(), ConfirmFunc(func(string) bool { return false }))
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, 0, s.count("/api/analytics/clear"))
}

func TestRefresh_ServerError(t *testing.T) {
	s := newAPIServer(t)
	c := newClient(t, s, nil)
	ctx := context.Background()

	assert.ErrorIs(t, c.Refresh(ctx), ErrNotAuthenticated)

	require.NoError(t, c.Login(ctx, operatorToken))
	s.fail("/api/analytics/data", http.StatusServiceUnavailable)

	err := c.Refresh(ctx)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, StateError, c.State())
	_, ok := c.Snapshot()
	assert.True(t, ok, "cached data survives a failed refresh")
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newAPIServer(t)
	s.seedScenarioA(t)
	c := newClient(t, s, nil)
	require.NoError(t, c.Login(context.Background(), operatorToken))

	snap, _ := c.Snapshot()
	snap.Summary.EventTypes["page_view"] = 99
	snap.Events[0].PagePath = "/changed"

	again, _ := c.Snapshot()
	assert.Equal(t, 3, again.Summary.EventTypes["page_view"])
	assert.Equal(t, "/", again.Events[0].PagePath)
}

func TestFileTokenStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	ts := FileTokenStore{Dir: dir}

	token, err := ts.Load()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, ts.Save("abc"))
	info, err := os.Stat(filepath.Join(dir, TokenSlot))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	token, err = ts.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, ts.Clear())
	require.NoError(t, ts.Clear(), "clearing twice is fine")
	token, err = ts.Load()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "State(9)", State(9).String())
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", ErrUnauthorized), models.ErrUnauthorized))
}

// assertMatchesServer checks the locally maintained data against a fresh fetch.
func assertMatchesServer(t *testing.T, c *Client) {
	t.Helper()
	local, ok := c.Snapshot()
	require.True(t, ok)
	require.NoError(t, c.Refresh(context.Background()))
	fresh, _ := c.Snapshot()
	assert.Equal(t, fresh, local)
}
