package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/payment"
)

type WebhookConfirmer interface {
	ConfirmFromWebhook(ctx context.Context, code string, amount int64, status string) (payment.WebhookResult, error)
}

// WebhookHandler menerima notifikasi Pakasir. Body tidak dipercaya: status diverifikasi ulang ke gateway.
type WebhookHandler struct {
	Payments WebhookConfirmer
	Log      *zap.Logger
}

type pakasirWebhook struct {
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	Project       string `json:"project"`
	PaymentMethod string `json:"payment_method"`
	CompletedAt   string `json:"completed_at"`
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhook/pakasir", h.pakasir)
}

func (h *WebhookHandler) pakasir(w http.ResponseWriter, r *http.Request) {
	var req pakasirWebhook
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" || req.Amount <= 0 {
		writeMsg(w, http.StatusBadRequest, "order_id and amount are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	res, err := h.Payments.ConfirmFromWebhook(ctx, req.OrderID, req.Amount, req.Status)
	if err != nil {
		// 5xx supaya gateway mengirim ulang
		h.Log.Error("webhook processing failed", zap.String("order_id", req.OrderID), zap.Error(err))
		writeMsg(w, http.StatusInternalServerError, "processing failed")
		return
	}
	h.Log.Info("webhook processed", zap.String("order_id", req.OrderID), zap.String("result", string(res)))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}
