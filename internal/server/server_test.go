package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/restful-users/apiserver/config"
	"github.com/restful-users/apiserver/internal/cache"
	"github.com/restful-users/apiserver/internal/handlers"
	"github.com/restful-users/apiserver/internal/mq"
	"github.com/restful-users/apiserver/internal/services"
	"github.com/restful-users/apiserver/internal/store/storetest"
	"github.com/restful-users/apiserver/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		UsersBasePath: "/v2/people/",
		CORSOrigin:    "https://app.example.com",
		Auth: config.AuthConfig{
			Enabled:       true,
			JWTSecret:     "secret",
			UserName:      "user",
			UserPassword:  "password",
			AdminName:     "admin",
			AdminPassword: "admin",
		},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
}

func newRouter(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	svc := services.NewUserService(storetest.NewMemoryUserRepository(), cache.New("users"), nil, zerolog.Nop())
	_, err := svc.SeedDefaults(context.Background())
	require.NoError(t, err)
	auth, err := handlers.NewAuthenticator(cfg.Auth)
	require.NoError(t, err)
	return NewRouter(cfg, svc, auth, nil, zerolog.Nop())
}

func TestNewRouter_Routes(t *testing.T) {
	router := newRouter(t, testConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health needs no credentials")

	req := httptest.NewRequest(http.MethodGet, "/v2/people/1", nil)
	req.SetBasicAuth("user", "password")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http://example.com/v2/people/1")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/people", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewRouter_CORS(t *testing.T) {
	router := newRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/v2/people", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRouter_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	router := newRouter(t, cfg)

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/v2/people/1", nil)
		req.SetBasicAuth("user", "password")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestEvictOnRemoteEvents(t *testing.T) {
	broker := mq.NewMemoryBroker()
	defer broker.Close()

	userCache := cache.New("users")
	svc := services.NewUserService(storetest.NewMemoryUserRepository(), userCache, nil, zerolog.Nop())

	local := mq.NewUserEvents(mq.New(broker, "memory"), "users.events", "local")
	remote := mq.NewUserEvents(mq.New(broker, "memory"), "users.events", "remote")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- EvictOnRemoteEvents(ctx, local, svc, zerolog.Nop()) }()
	require.Eventually(t, func() bool { return broker.Subscribers("users.events") == 1 }, time.Second, 5*time.Millisecond)

	userCache.Put("all", []types.User{})
	require.NoError(t, local.Publish(ctx, mq.UserCreated, types.User{ID: 1}))
	assert.Never(t, func() bool { return userCache.Len() == 0 }, 100*time.Millisecond, 5*time.Millisecond, "own events are ignored")

	require.NoError(t, remote.Publish(ctx, mq.UserDeleted, types.User{ID: 2}))

	assert.Eventually(t, func() bool { return userCache.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
