package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ariefcatur/go-qris-store.git/internal/delivery"
	"github.com/ariefcatur/go-qris-store.git/internal/metrics"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
	"github.com/ariefcatur/go-qris-store.git/internal/payment"
)

type fakePayments struct {
	err      error
	order    orders.Order
	view     payment.OrderView
	topup    orders.Topup
	balance  int64
	webhook  payment.WebhookResult
	gotCode  string
	gotTG    int64
	gotTotal int64
}

func (f *fakePayments) CreateOrder(_ context.Context, tg, _ int64) (orders.Order, error) {
	f.gotTG = tg
	return f.order, f.err
}
func (f *fakePayments) PayWithBalance(_ context.Context, tg, _ int64) (payment.OrderView, error) {
	f.gotTG = tg
	return f.view, f.err
}
func (f *fakePayments) GetOrder(_ context.Context, tg int64, code string) (orders.Order, error) {
	f.gotTG, f.gotCode = tg, code
	return f.order, f.err
}
func (f *fakePayments) CheckOrder(_ context.Context, tg int64, code string) (payment.OrderView, error) {
	f.gotTG, f.gotCode = tg, code
	return f.view, f.err
}
func (f *fakePayments) Retrieve(_ context.Context, tg int64, code string) (payment.OrderView, error) {
	f.gotTG, f.gotCode = tg, code
	return f.view, f.err
}
func (f *fakePayments) ContactAdmin(_ context.Context, _ int64, _ string) (string, error) {
	return "https://t.me/admin", f.err
}
func (f *fakePayments) CreateTopup(_ context.Context, _ int64, amount int64) (orders.Topup, error) {
	f.gotTotal = amount
	return f.topup, f.err
}
func (f *fakePayments) CheckTopup(_ context.Context, _ int64, _ string) (payment.TopupView, error) {
	return payment.TopupView{Topup: f.topup}, f.err
}
func (f *fakePayments) Balance(_ context.Context, _ int64) (int64, error) { return f.balance, f.err }
func (f *fakePayments) MyProducts(_ context.Context, _ int64) ([]orders.DeliveredItem, error) {
	return []orders.DeliveredItem{{OrderCode: "SSB-1", ProductName: "A | B", Payload: "secret"}}, f.err
}
func (f *fakePayments) ConfirmFromWebhook(_ context.Context, code string, amount int64, _ string) (payment.WebhookResult, error) {
	f.gotCode, f.gotTotal = code, amount
	return f.webhook, f.err
}

type fakeCatalog struct{ products []orders.Product }

func (c fakeCatalog) ListActiveProducts(context.Context) ([]orders.Product, error) { return c.products, nil }

type fakeStock struct {
	counts  orders.StockCounts
	added   int
	err     error
	payload string
}

func (s *fakeStock) AddInviteSlots(_ context.Context, _ int64, n int) (int, error) {
	if n <= 0 || n > orders.MaxStockBatch {
		return 0, fmt.Errorf("%w: count", orders.ErrInvalidInput)
	}
	s.added += n
	return n, s.err
}
func (s *fakeStock) AddPayload(_ context.Context, _ int64, p string) (int64, error) {
	s.payload = p
	return 7, s.err
}
func (s *fakeStock) DeleteInviteSlots(_ context.Context, _ int64, n int) (int, error) { return n, s.err }
func (s *fakeStock) DeleteOnePayload(context.Context, int64) (int64, error) {
	return 0, orders.ErrNotFound
}
func (s *fakeStock) Counts(context.Context, int64) (orders.StockCounts, error) { return s.counts, s.err }
func (s *fakeStock) Recent(context.Context, int) ([]orders.StockUnit, error) {
	return []orders.StockUnit{{ID: 1, ProductID: 5, Kind: orders.KindPayload, Code: "x"}, {ID: 2, ProductID: 6}}, nil
}

type fakeLedger struct{}

func (fakeLedger) CreditBalance(_ context.Context, tg, amount int64) (int64, error) {
	if tg <= 0 || amount <= 0 {
		return 0, orders.ErrInvalidInput
	}
	return 1000 + amount, nil
}
func (fakeLedger) Revenue(context.Context) (orders.Revenue, error) {
	return orders.Revenue{PaidOrders: 3, OrdersTotal: 30_150}, nil
}

func newServer(t *testing.T, p *fakePayments, stock *fakeStock) (http.Handler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)
	r := NewRouter(log)
	(&WebhookHandler{Payments: p, Log: log}).Register(r)
	(&OrdersHandler{
		Payments: p,
		Catalog:  fakeCatalog{products: []orders.Product{{ID: 5, Name: "Streaming | 1 Bulan", Price: 10_000, Type: orders.TypeAuto, IsActive: true}}},
		Stock:    stock,
		Log:      log,
	}).Register(r)
	(&AdminHandler{Stock: stock, Ledger: fakeLedger{}, Token: "s3cret", Log: log}).Register(r)
	return r, logs
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestHealth(t *testing.T) {
	h, _ := newServer(t, &fakePayments{}, &fakeStock{})
	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestMetricsExposeSweepCounters(t *testing.T) {
	metrics.Default().Expired("order", "sweep")
	r := NewRouter(zap.NewNop())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `store_expired_total{kind="order",source="sweep"}`)
}

func TestWebhook(t *testing.T) {
	p := &fakePayments{webhook: payment.WebhookPaid}
	h, logs := newServer(t, p, &fakeStock{})

	rec := do(t, h, http.MethodPost, "/webhook/pakasir", `{"amount":10042,"status":"completed"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/webhook/pakasir", `{"order_id":"SSB-1","status":"completed"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/webhook/pakasir", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/webhook/pakasir", `{"order_id":" SSB-1 ","amount":10042,"status":"completed","project":"store"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody(t, rec)["ok"])
	require.Equal(t, "SSB-1", p.gotCode)
	require.Equal(t, int64(10042), p.gotTotal)
	require.Equal(t, 1, logs.FilterMessage("webhook processed").Len())

	p.err = fmt.Errorf("%w: timeout", payment.ErrGateway)
	rec = do(t, h, http.MethodPost, "/webhook/pakasir", `{"order_id":"SSB-1","amount":10042,"status":"completed"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("webhook processing failed").Len())
}

func TestCreateOrder(t *testing.T) {
	p := &fakePayments{order: orders.Order{
		Code: "SSB-20260101-ABCDEF", ProductID: 5, BaseAmount: 10_000, UniqueSurcharge: 42, TotalAmount: 10_042,
		Method: orders.MethodQRIS, Status: orders.StatusPendingPayment, InternalExpiredAt: time.Now().Add(11 * time.Minute),
	}}
	h, _ := newServer(t, p, &fakeStock{})

	rec := do(t, h, http.MethodPost, "/orders", `{"telegram_id":111,"product_id":5}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "SSB-20260101-ABCDEF", body["code"])
	require.EqualValues(t, 10_042, body["total_amount"])
	require.EqualValues(t, 42, body["unique_code"])
	require.Equal(t, int64(111), p.gotTG)

	rec = do(t, h, http.MethodPost, "/orders", `{"telegram_id":111,"product_id":5,"method":"CARD"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/orders", `{"product_id":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayWithBalanceRoute(t *testing.T) {
	out := delivery.Outcome{Kind: delivery.OutcomeDelivered, Code: "SSB-1", Payloads: []string{"acc-1"}}
	p := &fakePayments{view: payment.OrderView{Order: orders.Order{Code: "SSB-1", Status: orders.StatusPaid, Method: orders.MethodBalance}, Outcome: &out}}
	h, _ := newServer(t, p, &fakeStock{})

	rec := do(t, h, http.MethodPost, "/orders", `{"telegram_id":111,"product_id":5,"method":"BALANCE"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "PAID", body["status"])
	require.Equal(t, "DELIVERED", body["delivery"].(map[string]any)["kind"])
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{orders.ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("%w: too small", payment.ErrInvalidAmount), http.StatusBadRequest},
		{orders.ErrNotFound, http.StatusNotFound},
		{payment.ErrProductUnavailable, http.StatusNotFound},
		{payment.ErrActiveTransaction, http.StatusConflict},
		{fmt.Errorf("%w: SSB-1", payment.ErrPendingExists), http.StatusConflict},
		{orders.ErrOutOfStock, http.StatusConflict},
		{orders.ErrInsufficientBalance, http.StatusConflict},
		{payment.ErrCheckCooldown, http.StatusTooManyRequests},
		{fmt.Errorf("%w: 503", payment.ErrGateway), http.StatusBadGateway},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			p := &fakePayments{err: tc.err}
			h, _ := newServer(t, p, &fakeStock{})
			rec := do(t, h, http.MethodPost, "/orders/SSB-1/check", `{"telegram_id":111}`)
			require.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestInternalErrorIsNotLeaked(t *testing.T) {
	p := &fakePayments{err: errors.New("pq: connection refused on 10.0.0.5")}
	h, logs := newServer(t, p, &fakeStock{})

	rec := do(t, h, http.MethodGet, "/orders/SSB-1?telegram_id=111", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "10.0.0.5")
	require.Equal(t, 1, logs.FilterMessage("request failed").Len())
}

func TestOrderRoutesPassCodeAndUser(t *testing.T) {
	p := &fakePayments{}
	h, _ := newServer(t, p, &fakeStock{})

	rec := do(t, h, http.MethodGet, "/orders/SSB-9", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/orders/SSB-9/retrieve", `{"telegram_id":222}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "SSB-9", p.gotCode)
	require.Equal(t, int64(222), p.gotTG)

	rec = do(t, h, http.MethodPost, "/orders/SSB-9/contact-admin", `{"telegram_id":222}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://t.me/admin", decodeBody(t, rec)["admin_contact"])
}

func TestProductsIncludeStock(t *testing.T) {
	h, _ := newServer(t, &fakePayments{}, &fakeStock{counts: orders.StockCounts{PayloadLeft: 4, InviteLeft: 9}})

	rec := do(t, h, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []productResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "Streaming", got[0].Category)
	require.Equal(t, "1 Bulan", got[0].Title)
	require.Equal(t, 4, got[0].Stock)
}

func TestTopupAndBalance(t *testing.T) {
	p := &fakePayments{topup: orders.Topup{Code: "TOPUP-1", BaseAmount: 5000, TotalAmount: 5013, Status: orders.StatusPendingPayment}, balance: 25_000}
	h, _ := newServer(t, p, &fakeStock{})

	rec := do(t, h, http.MethodPost, "/topups", `{"telegram_id":111,"amount":5000}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, int64(5000), p.gotTotal)

	rec = do(t, h, http.MethodGet, "/users/111/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 25_000, decodeBody(t, rec)["balance"])

	rec = do(t, h, http.MethodGet, "/users/abc/balance", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/users/111/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "secret")
}

func TestAdminRequiresToken(t *testing.T) {
	stock := &fakeStock{}
	h, _ := newServer(t, &fakePayments{}, stock)

	rec := do(t, h, http.MethodGet, "/admin/revenue", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodGet, "/admin/revenue", "", "X-Admin-Token", "wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/admin/revenue", "", "X-Admin-Token", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 30_150, decodeBody(t, rec)["orders_total"])

	r := chi.NewRouter()
	(&AdminHandler{Stock: stock, Ledger: fakeLedger{}, Log: zap.NewNop()}).Register(r)
	rec = do(t, r, http.MethodGet, "/admin/revenue", "", "X-Admin-Token", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminStock(t *testing.T) {
	stock := &fakeStock{counts: orders.StockCounts{InviteLeft: 2}}
	h, _ := newServer(t, &fakePayments{}, stock)
	tok := []string{"X-Admin-Token", "s3cret"}

	rec := do(t, h, http.MethodPost, "/admin/stock/5/invite", `{"count":3}`, tok...)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 3, stock.added)

	rec = do(t, h, http.MethodPost, "/admin/stock/5/invite", `{"count":501}`, tok...)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/admin/stock/5/payload", `{"payload":"user: a\npass: b"}`, tok...)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "user: a\npass: b", stock.payload)

	rec = do(t, h, http.MethodDelete, "/admin/stock/5/invite?count=2", "", tok...)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/admin/stock/5/payload", "", tok...)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/admin/stock/5", "", tok...)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.EqualValues(t, 2, body["invite_left"])
	require.Len(t, body["recent"], 1)

	rec = do(t, h, http.MethodGet, "/admin/stock/x", "", tok...)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/admin/balance", `{"telegram_id":111,"amount":500}`, tok...)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1500, decodeBody(t, rec)["balance"])
}
