package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Store mengumpulkan metrik siklus pembayaran. Semua method aman dipanggil pada nil receiver.
type Store struct {
	ordersCreated     *prometheus.CounterVec
	paymentsConfirmed *prometheus.CounterVec
	expired           *prometheus.CounterVec
	stockClaims       *prometheus.CounterVec
	gatewayRequests   *prometheus.CounterVec
	gatewayDuration   *prometheus.HistogramVec
}

var (
	defaultOnce  sync.Once
	defaultStore *Store
)

// Default mendaftarkan collector ke prometheus.DefaultRegisterer sekali per proses.
func Default() *Store {
	defaultOnce.Do(func() {
		defaultStore = New(prometheus.DefaultRegisterer)
	})
	return defaultStore
}

func New(registerer prometheus.Registerer) *Store {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	s := &Store{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_orders_created_total",
			Help: "Orders and topups created, by kind and payment method.",
		}, []string{"kind", "method"}),
		paymentsConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_payments_confirmed_total",
			Help: "PENDING to PAID transitions won, by kind and trigger source.",
		}, []string{"kind", "source"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_expired_total",
			Help: "PENDING to EXPIRED transitions won, by kind and trigger source.",
		}, []string{"kind", "source"}),
		stockClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_stock_claims_total",
			Help: "Stock claim attempts by pool and result.",
		}, []string{"pool", "result"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_gateway_requests_total",
			Help: "Payment gateway calls by operation and result.",
		}, []string{"op", "result"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "store_gateway_duration_seconds",
			Help:    "Payment gateway call latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"op"}),
	}
	registerer.MustRegister(
		s.ordersCreated,
		s.paymentsConfirmed,
		s.expired,
		s.stockClaims,
		s.gatewayRequests,
		s.gatewayDuration,
	)
	return s
}

func (s *Store) OrderCreated(kind, method string) {
	if s == nil {
		return
	}
	s.ordersCreated.WithLabelValues(kind, method).Inc()
}

func (s *Store) PaymentConfirmed(kind, source string) {
	if s == nil {
		return
	}
	s.paymentsConfirmed.WithLabelValues(kind, source).Inc()
}

func (s *Store) Expired(kind, source string) {
	if s == nil {
		return
	}
	s.expired.WithLabelValues(kind, source).Inc()
}

func (s *Store) StockClaim(pool string, ok bool) {
	if s == nil {
		return
	}
	result := "claimed"
	if !ok {
		result = "empty"
	}
	s.stockClaims.WithLabelValues(pool, result).Inc()
}

func (s *Store) GatewayCall(op string, started time.Time, err error) {
	if s == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.gatewayRequests.WithLabelValues(op, result).Inc()
	s.gatewayDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
