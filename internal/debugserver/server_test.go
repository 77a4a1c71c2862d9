package debugserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewbadge/pkg/logx"
)

func TestHealthz(t *testing.T) {
	s := New(Config{}, logx.Nop(), func(context.Context) any {
		return map[string]int{"reviews": 3}
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 3, got["reviews"])
}

func TestTokenRequired(t *testing.T) {
	s := New(Config{Token: "s3cret"}, logx.Nop(), nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/?token=s3cret", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckAddr(t *testing.T) {
	assert.NoError(t, CheckAddr("127.0.0.1:6060", ""))
	assert.NoError(t, CheckAddr("localhost:6060", ""))
	assert.NoError(t, CheckAddr("[::1]:6060", ""))
	assert.Error(t, CheckAddr("0.0.0.0:6060", ""))
	assert.NoError(t, CheckAddr("0.0.0.0:6060", "tok"))
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{Addr: "127.0.0.1:0"}, logx.Nop(), nil)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
