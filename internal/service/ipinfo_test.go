package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ffa-tycoon/ffa-tycoon/internal/errors"
)

func newVpnapiServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		if r.URL.Path == "/8.8.8.8" {
			w.Write([]byte(`{"ip":"8.8.8.8","security":{"vpn":false,"proxy":false,"tor":false,"relay":false},"location":{"country":"United States"}}`))
			return
		}
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIPInfoService_Lookup(t *testing.T) {
	t.Run("returns the report", func(t *testing.T) {
		var hits int32
		srv := newVpnapiServer(t, &hits)
		s := NewIPInfoService("secret", nil)
		s.baseURL = srv.URL + "/"

		info, err := s.Lookup(context.Background(), "8.8.8.8")
		require.NoError(t, err)
		assert.Equal(t, "8.8.8.8", info["ip"])
		security, ok := info["security"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, false, security["vpn"])
	})

	t.Run("upstream failure", func(t *testing.T) {
		var hits int32
		srv := newVpnapiServer(t, &hits)
		s := NewIPInfoService("secret", nil)
		s.baseURL = srv.URL + "/"

		_, err := s.Lookup(context.Background(), "1.1.1.1")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExternal))
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := NewIPInfoService("secret", nil).Lookup(context.Background(), "not-an-ip")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("disabled without key", func(t *testing.T) {
		s := NewIPInfoService("", nil)
		assert.False(t, s.Enabled())
		_, err := s.Lookup(context.Background(), "8.8.8.8")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExternal))
	})
}

func TestIPInfoService_RedisCache(t *testing.T) {
	// This test requires a running Redis instance
	opts, err := redis.ParseURL("redis://localhost:6379/15")
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available for testing")
	}
	client.Del(ctx, ipInfoKeyPrefix+"8.8.8.8")

	var hits int32
	srv := newVpnapiServer(t, &hits)
	s := NewIPInfoService("secret", client)
	s.baseURL = srv.URL + "/"

	for i := 0; i < 3; i++ {
		info, err := s.Lookup(ctx, "8.8.8.8")
		require.NoError(t, err)
		assert.Equal(t, "8.8.8.8", info["ip"])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
