package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/outbox"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config    *config.Config
	logger    *zap.Logger
	db        database.Service
	redis     *redis.Client
	publisher outbox.Publisher
	relay     *outbox.Relay
	relayWG   sync.WaitGroup
}

func NewServer(cfg *config.Config, log *zap.Logger, db database.Service, redisClient *redis.Client) (*Server, error) {
	router := chi.NewRouter()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.DB(), "storefront"),
	)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.ErrorHandlingMiddleware(log))
	router.Use(custommiddleware.LoggingMiddleware(logger.Component(log, "http")))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server))
	router.Use(httpMetrics.Middleware)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := db.Health()
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, health)
	})
	router.Handle("/metrics", metrics.Handler(registry))

	gateway, err := payment.NewGateway(cfg.Payment, logger.Component(log, "payment"))
	if err != nil {
		return nil, err
	}

	// Initialize services
	store := repository.NewStore(db.DB())
	orderService := service.NewOrderService(service.DefaultCancellationPolicy)
	checkoutService := checkout.NewService(checkout.Dependencies{
		Store:     store,
		Orders:    orderService,
		Inventory: service.NewInventoryService(),
		Payments:  service.NewPaymentService(gateway),
		Users:     service.NewUserService(orderService),
		Metrics:   metrics.NewCheckout(registry),
		Logger:    logger.Component(log, "checkout"),
	})

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, log)
	checkoutLimiter := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.Requests,
		Window:            cfg.RateLimit.Window,
		KeyPrefix:         "ratelimit:checkout",
	}, log)

	// Register routes
	handlerLog := logger.Component(log, "transport")
	transport.NewCartHandler(checkoutService, handlerLog).RegisterRoutes(router, authMiddleware)
	transport.NewOrderHandler(checkoutService, handlerLog).RegisterRoutes(router, authMiddleware, checkoutLimiter)
	transport.NewAdminHandler(checkoutService, handlerLog).RegisterRoutes(router, authMiddleware)
	transport.NewPaymentHandler(checkoutService, cfg.Payment.CallbackSecret, handlerLog).RegisterRoutes(router)

	publisher := newPublisher(cfg.Kafka, log)
	relay := outbox.NewRelay(store, publisher, cfg.Outbox, logger.Component(log, "outbox"))

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:    cfg,
		logger:    log,
		db:        db,
		redis:     redisClient,
		publisher: publisher,
		relay:     relay,
	}

	return server, nil
}

// newPublisher sends outbox events to Kafka when brokers are configured
func newPublisher(cfg config.KafkaConfig, log *zap.Logger) outbox.Publisher {
	if len(cfg.Brokers) == 0 {
		log.Info("No Kafka brokers configured, outbox events will be logged")
		return outbox.NewLogPublisher(logger.Component(log, "events"))
	}
	log.Info("Publishing outbox events to Kafka",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)
	return outbox.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

// StartRelay publishes outbox events in the background until ctx is cancelled
func (s *Server) StartRelay(ctx context.Context) {
	s.relayWG.Add(1)
	go func() {
		defer s.relayWG.Done()
		s.relay.Run(ctx)
	}()
}

// Close waits for a started relay to return, then releases the publisher,
// redis and the database. The relay's context must be cancelled first.
func (s *Server) Close() error {
	s.relayWG.Wait()
	s.logger.Info("Closing server resources")

	if err := s.publisher.Close(); err != nil {
		s.logger.Error("Failed to close event publisher", zap.Error(err))
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
