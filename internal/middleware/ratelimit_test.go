package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

// Feature: storefront-checkout, Property 14: Rate limiting blocks excessive requests
func TestProperty_RateLimitingBlocksExcessiveRequests(t *testing.T) {
	_, redisClient := newTestRedis(t)

	properties := gopter.NewProperties(nil)

	properties.Property("excessive requests are blocked with 429", prop.ForAll(
		func(requestsPerWindow int, excessRequests int) bool {
			config := RateLimitConfig{
				RequestsPerWindow: requestsPerWindow,
				Window:            time.Minute,
				KeyPrefix:         "rl:" + uuid.NewString(),
			}
			handler := RateLimitMiddleware(redisClient, config, zap.NewNop())(okHandler())

			successCount, blockedCount := 0, 0
			for i := 0; i < requestsPerWindow+excessRequests; i++ {
				req := httptest.NewRequest("GET", "/api/cart", nil)
				req.RemoteAddr = "192.168.1.100:51234"
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusOK:
					successCount++
				case http.StatusTooManyRequests:
					blockedCount++
				}
			}

			return successCount == requestsPerWindow && blockedCount == excessRequests
		},
		gen.IntRange(5, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimit_KeysByUserAndWindowResets(t *testing.T) {
	mr, redisClient := newTestRedis(t)
	config := RateLimitConfig{RequestsPerWindow: 1, Window: time.Second, KeyPrefix: "rl"}
	handler := RateLimitMiddleware(redisClient, config, zap.NewNop())(okHandler())

	send := func(user *domain.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/cart", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req = req.WithContext(WithUser(req.Context(), user))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	alice := &domain.User{ID: uuid.New(), Role: domain.RoleUser}
	bob := &domain.User{ID: uuid.New(), Role: domain.RoleUser}

	assert.Equal(t, http.StatusOK, send(alice).Code)
	blocked := send(alice)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, send(bob).Code, "same IP, different user")

	mr.FastForward(2 * time.Second)
	assert.Equal(t, http.StatusOK, send(alice).Code)
}

func TestRateLimit_FailsOpenWhenRedisIsDown(t *testing.T) {
	mr, redisClient := newTestRedis(t)
	mr.Close()

	handler := RateLimitMiddleware(redisClient, RateLimitConfig{RequestsPerWindow: 1, Window: time.Second, KeyPrefix: "rl"}, zap.NewNop())(okHandler())
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/cart", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
