package httpx

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

const recentStockLimit = 30

type StockAdmin interface {
	AddInviteSlots(ctx context.Context, productID int64, n int) (int, error)
	AddPayload(ctx context.Context, productID int64, payload string) (int64, error)
	DeleteInviteSlots(ctx context.Context, productID int64, n int) (int, error)
	DeleteOnePayload(ctx context.Context, productID int64) (int64, error)
	Counts(ctx context.Context, productID int64) (orders.StockCounts, error)
	Recent(ctx context.Context, limit int) ([]orders.StockUnit, error)
}

type Ledger interface {
	CreditBalance(ctx context.Context, telegramID, amount int64) (int64, error)
	Revenue(ctx context.Context) (orders.Revenue, error)
}

// AdminHandler: /admin/*, dilindungi header X-Admin-Token. Token kosong -> route dimatikan.
type AdminHandler struct {
	Stock  StockAdmin
	Ledger Ledger
	Token  string
	Log    *zap.Logger
}

type countReq struct {
	Count int `json:"count"`
}

type payloadReq struct {
	Payload string `json:"payload"`
}

type creditReq struct {
	TelegramID int64 `json:"telegram_id"`
	Amount     int64 `json:"amount"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireToken)
		r.Get("/stock/{product_id}", h.stock)
		r.Post("/stock/{product_id}/invite", h.addInvite)
		r.Post("/stock/{product_id}/payload", h.addPayload)
		r.Delete("/stock/{product_id}/invite", h.deleteInvite)
		r.Delete("/stock/{product_id}/payload", h.deletePayload)
		r.Post("/balance", h.credit)
		r.Get("/revenue", h.revenue)
	})
}

func (h *AdminHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Token == "" {
			writeMsg(w, http.StatusServiceUnavailable, "admin api disabled")
			return
		}
		got := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
			writeMsg(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func productParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := parseID(chi.URLParam(r, "product_id"))
	if !ok {
		writeMsg(w, http.StatusBadRequest, "invalid product_id")
	}
	return id, ok
}

func (h *AdminHandler) stock(w http.ResponseWriter, r *http.Request) {
	id, ok := productParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Stock.Counts(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	units, err := h.Stock.Recent(ctx, recentStockLimit)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	recent := make([]stockUnitResp, 0, len(units))
	for _, u := range units {
		if u.ProductID != id {
			continue
		}
		recent = append(recent, stockUnitResp{
			ID: u.ID, ProductID: u.ProductID, Kind: string(u.Kind), Code: u.Code,
			Used: u.IsUsed, UsedBy: u.UsedByOrder, UsedAt: u.UsedAt, CreatedAt: u.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id":   id,
		"invite_left":  c.InviteLeft,
		"payload_left": c.PayloadLeft,
		"recent":       recent,
	})
}

func (h *AdminHandler) addInvite(w http.ResponseWriter, r *http.Request) {
	id, ok := productParam(w, r)
	if !ok {
		return
	}
	var req countReq
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := h.Stock.AddInviteSlots(ctx, id, req.Count)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.Log.Info("invite slots added", zap.Int64("product_id", id), zap.Int("count", n))
	writeJSON(w, http.StatusCreated, map[string]int{"added": n})
}

func (h *AdminHandler) addPayload(w http.ResponseWriter, r *http.Request) {
	id, ok := productParam(w, r)
	if !ok {
		return
	}
	var req payloadReq
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	unitID, err := h.Stock.AddPayload(ctx, id, req.Payload)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	// payload rahasia: jangan di-log
	h.Log.Info("payload added", zap.Int64("product_id", id), zap.Int64("unit_id", unitID))
	writeJSON(w, http.StatusCreated, map[string]int64{"id": unitID})
}

func (h *AdminHandler) deleteInvite(w http.ResponseWriter, r *http.Request) {
	id, ok := productParam(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil {
		writeMsg(w, http.StatusBadRequest, "invalid count")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deleted, err := h.Stock.DeleteInviteSlots(ctx, id, n)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *AdminHandler) deletePayload(w http.ResponseWriter, r *http.Request) {
	id, ok := productParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	unitID, err := h.Stock.DeleteOnePayload(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted_id": unitID})
}

func (h *AdminHandler) credit(w http.ResponseWriter, r *http.Request) {
	var req creditReq
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	bal, err := h.Ledger.CreditBalance(ctx, req.TelegramID, req.Amount)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.Log.Info("balance credited by admin", zap.Int64("telegram_id", req.TelegramID), zap.Int64("amount", req.Amount))
	writeJSON(w, http.StatusOK, map[string]int64{"telegram_id": req.TelegramID, "balance": bal})
}

func (h *AdminHandler) revenue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rev, err := h.Ledger.Revenue(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"paid_orders":  rev.PaidOrders,
		"orders_total": rev.OrdersTotal,
		"paid_topups":  rev.PaidTopups,
		"topups_total": rev.TopupsTotal,
	})
}
