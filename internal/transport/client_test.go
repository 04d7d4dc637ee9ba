package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, store session.Store, rt roundTripFunc, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(&http.Client{Transport: rt})}, opts...)
	client, err := New("http://backend.test/api", store, opts...)
	require.NoError(t, err)
	return client
}

func TestNewValidatesInputs(t *testing.T) {
	_, err := New("/relative", session.NewMemoryStore())
	assert.Error(t, err)
	_, err = New("http://ok.test", nil)
	assert.Error(t, err)
}

func TestWithTimeoutLeavesCallerClientUntouched(t *testing.T) {
	own := &http.Client{Timeout: time.Minute}
	client, err := New("http://ok.test", session.NewMemoryStore(), WithHTTPClient(own), WithTimeout(time.Second))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, own.Timeout)
	assert.Equal(t, time.Second, client.httpClient.Timeout)
	assert.NotSame(t, own, client.httpClient)

	untimed, err := New("http://ok.test", session.NewMemoryStore(), WithHTTPClient(own))
	require.NoError(t, err)
	assert.Same(t, own, untimed.httpClient)
}

func TestDoDecoratesAuthenticatedRequests(t *testing.T) {
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), session.Session{AccessToken: "tok", RefreshToken: "ref", PrincipalID: "42"}))

	var seen *http.Request
	var seenBody string
	client := newTestClient(t, store, func(req *http.Request) (*http.Response, error) {
		seen = req
		if req.Body != nil {
			raw, _ := io.ReadAll(req.Body)
			seenBody = string(raw)
		}
		return jsonResponse(http.StatusOK, `{"code":"c-1"}`), nil
	}, WithUserAgent("test-agent"))

	var cart types.Cart
	err := client.DoJSON(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/cart/add",
		Query:  map[string][]string{"x": {"1"}},
		Body:   types.CartEntryRequest{Product: "p-1", Quantity: 2},
	}, &cart)
	require.NoError(t, err)

	assert.Equal(t, "c-1", cart.Code)
	assert.Equal(t, "http://backend.test/api/cart/add?x=1", seen.URL.String())
	assert.Equal(t, "Bearer tok", seen.Header.Get("Authorization"))
	assert.Equal(t, "42", seen.Header.Get("X-Customer-Id"))
	assert.Equal(t, "application/json", seen.Header.Get("Content-Type"))
	assert.Equal(t, "test-agent", seen.Header.Get("User-Agent"))
	assert.NotEmpty(t, seen.Header.Get(HeaderRequestID))
	assert.JSONEq(t, `{"product":"p-1","quantity":2}`, seenBody)
}

func TestDoWithoutSessionOmitsCredentials(t *testing.T) {
	var seen *http.Request
	client := newTestClient(t, session.NewMemoryStore(), func(req *http.Request) (*http.Response, error) {
		seen = req
		return jsonResponse(http.StatusOK, `[]`), nil
	}, WithPrincipalHeader("X-Principal"))

	_, err := client.Do(context.Background(), Request{Path: "/orders/customer"})
	require.NoError(t, err)
	assert.Empty(t, seen.Header.Get("Authorization"))
	assert.Empty(t, seen.Header.Get("X-Principal"))
}

func TestAnonymousRequestsSkipCredentials(t *testing.T) {
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), session.Session{AccessToken: "tok", RefreshToken: "ref"}))

	calls := 0
	client := newTestClient(t, store, func(req *http.Request) (*http.Response, error) {
		calls++
		assert.Empty(t, req.Header.Get("Authorization"))
		return jsonResponse(http.StatusUnauthorized, `{"message":"Bad credentials"}`), nil
	})

	_, err := client.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login", Anonymous: true})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
	assert.Equal(t, 1, calls, "anonymous 401 must not trigger a refresh")
	_, ok, _ := store.Get(context.Background())
	assert.True(t, ok, "anonymous failures leave the session alone")
}

func TestForbiddenIsNeverRetried(t *testing.T) {
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), session.Session{AccessToken: "tok", RefreshToken: "ref"}))

	calls := 0
	client := newTestClient(t, store, func(req *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusForbidden, `{"status":403,"message":"Access denied","path":"/orders/1"}`), nil
	})

	_, err := client.Do(context.Background(), Request{Path: "/orders/1"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
	assert.Equal(t, "Access denied", typed.Message())
	assert.Equal(t, 1, calls)
}

func TestValidationErrorCarriesFieldErrors(t *testing.T) {
	client := newTestClient(t, session.NewMemoryStore(), func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"status":400,"message":"Validation failed","errorCode":"VALIDATION","fieldErrors":{"quantity":"must be positive"}}`), nil
	})

	_, err := client.Do(context.Background(), Request{Method: http.MethodPut, Path: "/cart/update"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, http.StatusBadRequest, typed.Status())
	details, ok := typed.Details().(types.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, "must be positive", details.FieldErrors["quantity"])
}

func TestNetworkFailurePropagatesUntouched(t *testing.T) {
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), session.Session{AccessToken: "tok", RefreshToken: "ref"}))

	dialErr := errors.New("connection refused")
	calls := 0
	client := newTestClient(t, store, func(req *http.Request) (*http.Response, error) {
		calls++
		return nil, dialErr
	})

	_, err := client.Do(context.Background(), Request{Path: "/cart"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNetwork, pkgerrors.CodeOf(err))
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.ErrorIs(t, err, dialErr)
	assert.Equal(t, 1, calls)
	_, ok, _ := store.Get(context.Background())
	assert.True(t, ok, "network failures must not end the session")
}

func TestTimeoutIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), session.Session{AccessToken: "tok", RefreshToken: "ref"}))
	client, err := New(srv.URL, store, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = client.Do(context.Background(), Request{Path: "/cart"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNetwork, pkgerrors.CodeOf(err))
	_, ok, _ := store.Get(context.Background())
	assert.True(t, ok, "a timeout is not a 401")
}

func TestRequestIDIsPreservedWhenProvided(t *testing.T) {
	var seen string
	client := newTestClient(t, session.NewMemoryStore(), func(req *http.Request) (*http.Response, error) {
		seen = req.Header.Get(HeaderRequestID)
		return jsonResponse(http.StatusNoContent, ``), nil
	})

	_, err := client.Do(context.Background(), Request{
		Method:  http.MethodDelete,
		Path:    "/cart/remove/e-1",
		Headers: http.Header{HeaderRequestID: []string{"req-7"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "req-7", seen)
}

func TestPrepareRejectsMissingPath(t *testing.T) {
	_, err := prepare(Request{Method: http.MethodGet})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}
