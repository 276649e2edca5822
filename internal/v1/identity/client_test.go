package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/metrics"
)

func TestClient_Me(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/me", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "name": "alice", "language": "zh-CN"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	me, err := c.Me(context.Background(), "sometokensometokensometokensomet")
	require.NoError(t, err)
	assert.Equal(t, "Bearer sometokensometokensometokensomet", gotAuth)
	assert.Equal(t, int32(42), me.ID)
	assert.Equal(t, "alice", me.Name)
	assert.Equal(t, "zh-CN", me.Language)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.IdentityRequestDuration), 1)
}

func TestClient_Chart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chart/1234", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 1234, "name": "Rrhar'il"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	chart, err := c.Chart(context.Background(), 1234)
	require.NoError(t, err)
	assert.Equal(t, int32(1234), chart.ID)
	assert.Equal(t, "Rrhar'il", chart.Name)
}

func TestClient_Record(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/record/77", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 77, "player": 42, "score": 998877,
			"perfect": 600, "good": 12, "bad": 3, "miss": 1,
			"max_combo": 432, "accuracy": 0.987, "full_combo": false,
			"std": 31.5, "std_score": 950000.0
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	rec, err := c.Record(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, int32(77), rec.ID)
	assert.Equal(t, int32(42), rec.Player)
	assert.Equal(t, int32(998877), rec.Score)
	assert.Equal(t, int32(600), rec.Perfect)
	assert.Equal(t, int32(12), rec.Good)
	assert.Equal(t, int32(3), rec.Bad)
	assert.Equal(t, int32(1), rec.Miss)
	assert.Equal(t, int32(432), rec.MaxCombo)
	assert.InDelta(t, 0.987, rec.Accuracy, 1e-6)
	assert.False(t, rec.FullCombo)
	assert.InDelta(t, 31.5, rec.Std, 1e-6)
	assert.InDelta(t, 950000.0, rec.StdScore, 1e-3)
}

func TestClient_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Me(context.Background(), "badtoken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "not a number"`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Chart(context.Background(), 5)
	require.Error(t, err)
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	// gobreaker trips after more than five consecutive failures by default.
	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = c.Chart(context.Background(), 1)
		require.Error(t, lastErr)
	}
	assert.Contains(t, lastErr.Error(), "circuit breaker is open")
}

func TestClient_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL)
	_, err := c.Me(ctx, "token")
	require.Error(t, err)
}
