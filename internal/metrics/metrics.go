package metrics

import (
	"net/http"
	"strconv"
	"time"

	"storefront/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// HTTPMetrics counts requests and observes their latency per route pattern
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// Middleware records every request. Routes are labelled by their chi
// pattern so path parameters do not explode the label set.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Checkout counts business outcomes of the checkout service
type Checkout struct {
	ordersPlaced   *prometheus.CounterVec
	orderValue     *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	payments       *prometheus.CounterVec
	stockConflicts prometheus.Counter
}

func NewCheckout(reg prometheus.Registerer) *Checkout {
	m := &Checkout{
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "orders_placed_total",
			Help:      "Orders created from carts.",
		}, []string{"currency"}),
		orderValue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "order_value_total",
			Help:      "Sum of placed order totals.",
		}, []string{"currency"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "order_transitions_total",
			Help:      "Order status transitions after creation.",
		}, []string{"status"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "payments_total",
			Help:      "Charges and refunds by result.",
		}, []string{"kind", "result"}),
		stockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "stock_conflicts_total",
			Help:      "Checkouts rejected for insufficient stock.",
		}),
	}
	reg.MustRegister(m.ordersPlaced, m.orderValue, m.transitions, m.payments, m.stockConflicts)
	return m
}

func (m *Checkout) OrderPlaced(total domain.Money) {
	m.ordersPlaced.WithLabelValues(total.Currency()).Inc()
	m.orderValue.WithLabelValues(total.Currency()).Add(total.Amount().InexactFloat64())
}

func (m *Checkout) OrderTransitioned(to domain.OrderStatus) {
	m.transitions.WithLabelValues(string(to)).Inc()
}

func (m *Checkout) PaymentProcessed(kind domain.PaymentKind, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.payments.WithLabelValues(string(kind), result).Inc()
}

func (m *Checkout) StockConflict() {
	m.stockConflicts.Inc()
}

// Handler exposes the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
