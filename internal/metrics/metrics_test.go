package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OrderCreated("order", "QRIS")
	m.OrderCreated("order", "QRIS")
	m.StockClaim("payload", true)
	m.StockClaim("payload", false)
	m.GatewayCall("detail", time.Now(), errors.New("boom"))

	require.Equal(t, 2.0, testutil.ToFloat64(m.ordersCreated.WithLabelValues("order", "QRIS")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.stockClaims.WithLabelValues("payload", "empty")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.gatewayRequests.WithLabelValues("detail", "error")))
}

func TestNilStoreIsNoop(t *testing.T) {
	var m *Store
	require.NotPanics(t, func() {
		m.OrderCreated("order", "BALANCE")
		m.PaymentConfirmed("topup", "webhook")
		m.Expired("order", "sweep")
		m.StockClaim("invite", true)
		m.GatewayCall("create", time.Now(), nil)
	})
}
