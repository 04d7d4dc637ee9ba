package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenBackend accepts only validToken and rotates it on /auth/refresh.
type tokenBackend struct {
	mu           sync.Mutex
	validToken   string
	nextToken    string
	failRefresh  bool
	rejectAll    bool
	refreshCalls atomic.Int32
	unauthorized atomic.Int32
	// refreshGate, when set, holds the refresh response until it is closed.
	refreshGate chan struct{}
	bodies      []string
}

func (b *tokenBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/auth/refresh" {
		b.refreshCalls.Add(1)
		if r.Header.Get("Authorization") != "" {
			http.Error(w, "refresh must be anonymous", http.StatusBadRequest)
			return
		}
		var body types.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if b.refreshGate != nil {
			<-b.refreshGate
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failRefresh || body.RefreshToken != "refresh-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":401,"message":"Refresh token expired"}`))
			return
		}
		b.validToken = b.nextToken
		_ = json.NewEncoder(w).Encode(types.AuthResponse{AccessToken: b.nextToken, RefreshToken: "refresh-2", CustomerID: "42"})
		return
	}

	raw, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	valid := !b.rejectAll && r.Header.Get("Authorization") == "Bearer "+b.validToken
	if valid {
		b.bodies = append(b.bodies, r.Method+" "+r.URL.RequestURI()+" "+string(raw))
	}
	b.mu.Unlock()
	if !valid {
		b.unauthorized.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func setupRefreshTest(t *testing.T, backend *tokenBackend, opts ...Option) (*Client, *session.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), session.Session{AccessToken: "access-1", RefreshToken: "refresh-1", PrincipalID: "42"}))
	client, err := New(srv.URL, store, opts...)
	require.NoError(t, err)
	return client, store
}

func TestExpiredTokenIsRefreshedAndReplayed(t *testing.T) {
	backend := &tokenBackend{validToken: "expired-elsewhere", nextToken: "access-2"}
	client, store := setupRefreshTest(t, backend)

	resp, err := client.Do(context.Background(), Request{
		Method: http.MethodPut,
		Path:   "/cart/update",
		Query:  map[string][]string{"force": {"true"}},
		Body:   map[string]int{"quantity": 3},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, int32(1), backend.refreshCalls.Load())

	sess, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, session.Session{AccessToken: "access-2", RefreshToken: "refresh-2", PrincipalID: "42"}, sess)

	require.Len(t, backend.bodies, 1)
	assert.Equal(t, `PUT /cart/update?force=true {"quantity":3}`, backend.bodies[0], "replay must keep method, query and body")
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const n = 8
	backend := &tokenBackend{validToken: "other", nextToken: "access-2", refreshGate: make(chan struct{})}
	client, _ := setupRefreshTest(t, backend)

	// Hold the refresh until every request has seen its 401.
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for backend.unauthorized.Load() < n && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		close(backend.refreshGate)
	}()

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Do(context.Background(), Request{Path: "/cart"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int32(1), backend.refreshCalls.Load(), "exactly one refresh call")
	assert.Len(t, backend.bodies, n, "every request replayed once")
}

func TestConcurrentUnauthorizedAllFailWithRefreshError(t *testing.T) {
	const n = 5
	backend := &tokenBackend{validToken: "other", failRefresh: true, refreshGate: make(chan struct{})}
	var ended atomic.Int32
	client, store := setupRefreshTest(t, backend, WithSessionEndedHandler(func(ctx context.Context, cause error) {
		ended.Add(1)
	}))

	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for backend.unauthorized.Load() < n && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		close(backend.refreshGate)
	}()

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Do(context.Background(), Request{Path: "/cart"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.Error(t, err, "request %d", i)
		assert.ErrorIs(t, err, pkgerrors.ErrSessionEnded)
		assert.True(t, pkgerrors.IsSessionEnding(err))
	}
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
	assert.GreaterOrEqual(t, ended.Load(), int32(1))
	_, ok, _ := store.Get(context.Background())
	assert.False(t, ok, "session must be cleared")
}

func TestSecondUnauthorizedAfterReplayFailsWithoutRefresh(t *testing.T) {
	backend := &tokenBackend{validToken: "other", nextToken: "access-2", rejectAll: true}
	var endedWith error
	client, store := setupRefreshTest(t, backend, WithSessionEndedHandler(func(ctx context.Context, cause error) {
		endedWith = cause
	}))

	_, err := client.Do(context.Background(), Request{Path: "/cart"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrSessionEnded)
	assert.Equal(t, int32(1), backend.refreshCalls.Load(), "no second refresh cycle")
	assert.Equal(t, int32(2), backend.unauthorized.Load(), "original plus one replay")
	assert.ErrorIs(t, endedWith, pkgerrors.ErrSessionEnded)
	_, ok, _ := store.Get(context.Background())
	assert.False(t, ok)
}

func TestMissingRefreshTokenEndsSessionWithoutNetworkCall(t *testing.T) {
	backend := &tokenBackend{validToken: "other", nextToken: "access-2"}
	reg := prometheus.NewRegistry()
	var ended atomic.Int32
	client, store := setupRefreshTest(t, backend,
		WithMetrics(metrics.NewClientMetrics(reg)),
		WithSessionEndedHandler(func(ctx context.Context, cause error) { ended.Add(1) }),
	)
	require.NoError(t, store.Set(context.Background(), session.Session{AccessToken: "access-1", PrincipalID: "42"}))

	_, err := client.Do(context.Background(), Request{Path: "/cart"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrSessionEnded)
	assert.Equal(t, int32(0), backend.refreshCalls.Load())
	assert.Equal(t, int32(1), ended.Load())
	_, ok, _ := store.Get(context.Background())
	assert.False(t, ok)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "storefront_token_refresh_total" {
			for _, m := range mf.GetMetric() {
				if m.GetLabel()[0].GetValue() == metrics.RefreshMissing {
					found = m.GetCounter().GetValue() == 1
				}
			}
		}
	}
	assert.True(t, found, "missing refresh token outcome recorded")
}

func TestLateUnauthorizedReusesCompletedRefresh(t *testing.T) {
	backend := &tokenBackend{validToken: "access-2", nextToken: "access-3"}
	client, store := setupRefreshTest(t, backend)

	// Another caller already rotated the pair; this request was sent with the
	// old token and must replay with the stored one instead of refreshing.
	renewed, err := client.refresh(context.Background(), "access-0")
	require.NoError(t, err)
	assert.Equal(t, "access-1", renewed.AccessToken)
	assert.Equal(t, int32(0), backend.refreshCalls.Load())

	require.NoError(t, store.Set(context.Background(), session.Session{AccessToken: "access-2", RefreshToken: "refresh-1"}))
	_, err = client.Do(context.Background(), Request{Path: "/cart"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), backend.refreshCalls.Load())
}

func TestWaiterCancellationDoesNotHang(t *testing.T) {
	backend := &tokenBackend{validToken: "other", nextToken: "access-2", refreshGate: make(chan struct{})}
	client, _ := setupRefreshTest(t, backend)
	defer close(backend.refreshGate)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Do(ctx, Request{Path: "/cart"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNetwork, pkgerrors.CodeOf(err))
}

func TestSessionFromAuthFallbacks(t *testing.T) {
	prev := session.Session{AccessToken: "old", RefreshToken: "keep", PrincipalID: "7"}
	got := SessionFromAuth(types.AuthResponse{AccessToken: "new"}, prev)
	assert.Equal(t, session.Session{AccessToken: "new", RefreshToken: "keep", PrincipalID: "7"}, got)

	got = SessionFromAuth(types.AuthResponse{AccessToken: "new", RefreshToken: "r2", CustomerID: "9"}, prev)
	assert.Equal(t, session.Session{AccessToken: "new", RefreshToken: "r2", PrincipalID: "9"}, got)
}
