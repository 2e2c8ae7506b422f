package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/orders"
	"github.com/ariefcatur/go-qris-store.git/internal/payment"
)

// Payments: operasi payment.Service yang diekspos ke storefront.
type Payments interface {
	CreateOrder(ctx context.Context, telegramID, productID int64) (orders.Order, error)
	PayWithBalance(ctx context.Context, telegramID, productID int64) (payment.OrderView, error)
	GetOrder(ctx context.Context, telegramID int64, code string) (orders.Order, error)
	CheckOrder(ctx context.Context, telegramID int64, code string) (payment.OrderView, error)
	Retrieve(ctx context.Context, telegramID int64, code string) (payment.OrderView, error)
	ContactAdmin(ctx context.Context, telegramID int64, code string) (string, error)
	CreateTopup(ctx context.Context, telegramID, amount int64) (orders.Topup, error)
	CheckTopup(ctx context.Context, telegramID int64, code string) (payment.TopupView, error)
	Balance(ctx context.Context, telegramID int64) (int64, error)
	MyProducts(ctx context.Context, telegramID int64) ([]orders.DeliveredItem, error)
}

type Catalog interface {
	ListActiveProducts(ctx context.Context) ([]orders.Product, error)
}

type StockCounter interface {
	Counts(ctx context.Context, productID int64) (orders.StockCounts, error)
}

type OrdersHandler struct {
	Payments Payments
	Catalog  Catalog
	Stock    StockCounter
	Log      *zap.Logger
}

type createOrderReq struct {
	TelegramID int64  `json:"telegram_id"`
	ProductID  int64  `json:"product_id"`
	Method     string `json:"method"`
}

type userReq struct {
	TelegramID int64 `json:"telegram_id"`
}

type createTopupReq struct {
	TelegramID int64 `json:"telegram_id"`
	Amount     int64 `json:"amount"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{code}", h.getOrder)
	r.Post("/orders/{code}/check", h.checkOrder)
	r.Post("/orders/{code}/retrieve", h.retrieve)
	r.Post("/orders/{code}/contact-admin", h.contactAdmin)
	r.Post("/topups", h.createTopup)
	r.Post("/topups/{code}/check", h.checkTopup)
	r.Get("/users/{telegram_id}/balance", h.balance)
	r.Get("/users/{telegram_id}/products", h.myProducts)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListActiveProducts(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	out := make([]productResp, 0, len(ps))
	for _, p := range ps {
		c, err := h.Stock.Counts(ctx, p.ID)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		out = append(out, toProduct(p, c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TelegramID <= 0 || req.ProductID <= 0 {
		writeMsg(w, http.StatusBadRequest, "missing fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	switch req.Method {
	case "", string(orders.MethodQRIS):
		o, err := h.Payments.CreateOrder(ctx, req.TelegramID, req.ProductID)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		// QR menyusul lewat event invoice.ready
		writeJSON(w, http.StatusAccepted, toOrder(o, nil))
	case string(orders.MethodBalance):
		v, err := h.Payments.PayWithBalance(ctx, req.TelegramID, req.ProductID)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrder(v.Order, v.Outcome))
	default:
		writeMsg(w, http.StatusBadRequest, "method must be QRIS or BALANCE")
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	tg, ok := parseID(r.URL.Query().Get("telegram_id"))
	if !ok {
		writeMsg(w, http.StatusBadRequest, "missing telegram_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Payments.GetOrder(ctx, tg, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o, nil))
}

// orderAction: kerangka bersama untuk POST /orders/{code}/... dengan body {telegram_id}.
func (h *OrdersHandler) orderAction(w http.ResponseWriter, r *http.Request, timeout time.Duration,
	do func(ctx context.Context, tg int64, code string) (payment.OrderView, error)) {
	var req userReq
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TelegramID <= 0 {
		writeMsg(w, http.StatusBadRequest, "missing telegram_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	v, err := do(ctx, req.TelegramID, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(v.Order, v.Outcome))
}

func (h *OrdersHandler) checkOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, 12*time.Second, h.Payments.CheckOrder)
}

func (h *OrdersHandler) retrieve(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, 5*time.Second, h.Payments.Retrieve)
}

func (h *OrdersHandler) contactAdmin(w http.ResponseWriter, r *http.Request) {
	var req userReq
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	contact, err := h.Payments.ContactAdmin(ctx, req.TelegramID, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"admin_contact": contact})
}

func (h *OrdersHandler) createTopup(w http.ResponseWriter, r *http.Request) {
	var req createTopupReq
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TelegramID <= 0 {
		writeMsg(w, http.StatusBadRequest, "missing telegram_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := h.Payments.CreateTopup(ctx, req.TelegramID, req.Amount)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toTopup(t, nil))
}

func (h *OrdersHandler) checkTopup(w http.ResponseWriter, r *http.Request) {
	var req userReq
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	v, err := h.Payments.CheckTopup(ctx, req.TelegramID, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toTopup(v.Topup, v.Balance))
}

func (h *OrdersHandler) balance(w http.ResponseWriter, r *http.Request) {
	tg, ok := parseID(chi.URLParam(r, "telegram_id"))
	if !ok {
		writeMsg(w, http.StatusBadRequest, "invalid telegram_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	bal, err := h.Payments.Balance(ctx, tg)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"telegram_id": tg, "balance": bal})
}

func (h *OrdersHandler) myProducts(w http.ResponseWriter, r *http.Request) {
	tg, ok := parseID(chi.URLParam(r, "telegram_id"))
	if !ok {
		writeMsg(w, http.StatusBadRequest, "invalid telegram_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Payments.MyProducts(ctx, tg)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	out := make([]itemResp, 0, len(items))
	for _, it := range items {
		out = append(out, itemResp{OrderCode: it.OrderCode, ProductName: it.ProductName, Payload: it.Payload, PaidAt: it.PaidAt})
	}
	writeJSON(w, http.StatusOK, out)
}
