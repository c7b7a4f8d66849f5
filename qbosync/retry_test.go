package qbosync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	path   string
	auth   string
	method string
}

func newCaptureServer(statusFor map[string]int) (*httptest.Server, *[]capturedRequest) {
	var mu sync.Mutex
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		captured = append(captured, capturedRequest{
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			method: r.Method,
		})
		mu.Unlock()
		if code, ok := statusFor[r.URL.Path]; ok {
			w.WriteHeader(code)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	return srv, &captured
}

func TestRetryFailedSyncsDispatchesEveryRetryableType(t *testing.T) {
	srv, captured := newCaptureServer(nil)
	defer srv.Close()

	d := &RetryDispatcher{BaseURL: srv.URL, Token: "fn-token", HTTP: srv.Client()}
	results := d.RetryFailedSyncs(context.Background(), nil)

	require.Len(t, results, 4)
	for _, result := range results {
		assert.True(t, result.Dispatched, "entity type %s", result.EntityType)
		assert.Empty(t, result.Error)
	}

	paths := make([]string, 0, len(*captured))
	for _, req := range *captured {
		assert.Equal(t, http.MethodPost, req.method)
		assert.Equal(t, "Bearer fn-token", req.auth)
		paths = append(paths, req.path)
	}
	assert.Equal(t, []string{
		"/retry-vendor-sync",
		"/retry-bill-sync",
		"/retry-invoice-sync",
		"/retry-payment-sync",
	}, paths)
}

func TestRetryFailedSyncsSingleType(t *testing.T) {
	srv, captured := newCaptureServer(nil)
	defer srv.Close()

	et := models.EntityTypeBill
	d := &RetryDispatcher{BaseURL: srv.URL, HTTP: srv.Client()}
	results := d.RetryFailedSyncs(context.Background(), &et)

	require.Len(t, results, 1)
	assert.True(t, results[0].Dispatched)
	require.Len(t, *captured, 1)
	assert.Equal(t, "/retry-bill-sync", (*captured)[0].path)
	// No token configured, no Authorization header.
	assert.Empty(t, (*captured)[0].auth)
}

func TestRetryFailedSyncsContinuesPastNon2xx(t *testing.T) {
	srv, captured := newCaptureServer(map[string]int{
		"/retry-bill-sync": http.StatusBadGateway,
	})
	defer srv.Close()

	d := &RetryDispatcher{BaseURL: srv.URL, HTTP: srv.Client()}
	results := d.RetryFailedSyncs(context.Background(), nil)

	require.Len(t, results, 4)
	assert.True(t, results[0].Dispatched)
	assert.False(t, results[1].Dispatched)
	assert.Contains(t, results[1].Error, "Bad Gateway")
	assert.True(t, results[2].Dispatched)
	assert.True(t, results[3].Dispatched)
	// The failing type did not stop the remaining dispatches.
	assert.Len(t, *captured, 4)
}

type countingStore struct {
	fakeRecordStore
	mu        sync.Mutex
	remaining int64
}

func (s *countingStore) CountOpen(ctx context.Context, companyId string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.remaining
	if s.remaining > 0 {
		s.remaining--
	}
	return n, nil
}

func TestWaitForSettledReturnsWhenDrained(t *testing.T) {
	store := &countingStore{remaining: 2}

	err := WaitForSettled(context.Background(), store, "co-1", time.Millisecond, time.Second)
	assert.NoError(t, err)
}

func TestWaitForSettledHonorsContextCancel(t *testing.T) {
	store := &countingStore{remaining: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForSettled(ctx, store, "co-1", time.Millisecond, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
