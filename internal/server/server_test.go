package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/outbox"
	"storefront/internal/repository"
	"storefront/internal/transport"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubDB never connects; sql.Open only validates the driver name
type stubDB struct {
	db     *sql.DB
	status string
	closed bool
}

func (s *stubDB) Health() map[string]string { return map[string]string{"status": s.status} }
func (s *stubDB) DB() *sql.DB                { return s.db }
func (s *stubDB) Close() error {
	s.closed = true
	return s.db.Close()
}

func newTestServer(t *testing.T, status string) (*Server, *stubDB) {
	t.Helper()
	mr := miniredis.RunT(t)

	db, err := sql.Open("pgx", "postgres://nobody@127.0.0.1:1/none?sslmode=disable")
	require.NoError(t, err)
	stub := &stubDB{db: db, status: status}

	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "0", Env: "test"},
		JWT:       config.JWTConfig{Secret: "test-secret"},
		RateLimit: config.RateLimitConfig{Requests: 10, Window: time.Minute},
		Payment:   config.PaymentConfig{Provider: "simulated", Currency: "USD", CallbackSecret: "cb"},
		Outbox:    config.OutboxConfig{PollInterval: time.Second, BatchSize: 10},
	}
	srv, err := NewServer(cfg, zap.NewNop(), stub, redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	return srv, stub
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, "up")
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "up", body["status"])

	srv, _ = newTestServer(t, "down")
	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_ProtectedRoutesNeedToken(t *testing.T) {
	srv, _ := newTestServer(t, "up")

	for _, path := range []string{"/api/cart", "/api/orders", "/api/admin/orders/x/deliver"} {
		method := http.MethodGet
		if strings.HasPrefix(path, "/api/admin") {
			method = http.MethodPost
		}
		w := httptest.NewRecorder()
		srv.Handler.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestServer_CallbackChecksSecret(t *testing.T) {
	srv, _ := newTestServer(t, "up")
	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", strings.NewReader(`{}`))
	req.Header.Set(transport.CallbackSecretHeader, "wrong")

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_MetricsExposeHTTPRequests(t *testing.T) {
	srv, _ := newTestServer(t, "up")
	srv.Handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `storefront_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestServer_CloseReleasesResources(t *testing.T) {
	srv, stub := newTestServer(t, "up")
	require.NoError(t, srv.Close())
	assert.True(t, stub.closed)
}

func TestNewServer_RejectsUnknownPaymentProvider(t *testing.T) {
	mr := miniredis.RunT(t)
	db, err := sql.Open("pgx", "postgres://nobody@127.0.0.1:1/none")
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{Payment: config.PaymentConfig{Provider: "paypal"}}
	_, err = NewServer(cfg, zap.NewNop(), &stubDB{db: db}, redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	assert.Error(t, err)
}

// slowStore holds a flush open until its context is cancelled, then takes a
// little longer to finish
type slowStore struct {
	repository.Store
	entered  chan struct{}
	once     sync.Once
	finished atomic.Bool
}

func (s *slowStore) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	s.once.Do(func() { close(s.entered) })
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	s.finished.Store(true)
	return ctx.Err()
}

type closeRecorder struct {
	store              *slowStore
	flushedBeforeClose bool
}

func (p *closeRecorder) Publish(ctx context.Context, events []*domain.Event) error { return nil }

func (p *closeRecorder) Close() error {
	p.flushedBeforeClose = p.store.finished.Load()
	return nil
}

func TestServer_CloseWaitsForRelay(t *testing.T) {
	srv, stub := newTestServer(t, "up")
	store := &slowStore{entered: make(chan struct{})}
	publisher := &closeRecorder{store: store}
	srv.publisher = publisher
	srv.relay = outbox.NewRelay(store, publisher, config.OutboxConfig{PollInterval: 5 * time.Millisecond, BatchSize: 10}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	srv.StartRelay(ctx)
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("relay never flushed")
	}

	cancel()
	require.NoError(t, srv.Close())
	assert.True(t, publisher.flushedBeforeClose, "publisher closed while a flush was in flight")
	assert.True(t, stub.closed)
}
