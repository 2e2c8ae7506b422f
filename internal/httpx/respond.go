package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/delivery"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
	"github.com/ariefcatur/go-qris-store.git/internal/payment"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMsg(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor memetakan taksonomi error domain ke status HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrInvalidInput), errors.Is(err, payment.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, payment.ErrProductUnavailable):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrActiveTransaction),
		errors.Is(err, payment.ErrPendingExists),
		errors.Is(err, orders.ErrOutOfStock),
		errors.Is(err, orders.ErrInsufficientBalance),
		errors.Is(err, orders.ErrNotPaid),
		errors.Is(err, payment.ErrNotInvite),
		errors.Is(err, delivery.ErrNotRetrievable):
		return http.StatusConflict
	case errors.Is(err, payment.ErrCheckCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, payment.ErrGateway):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError: detail error internal hanya masuk log.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		writeMsg(w, code, "internal error")
		return
	}
	writeMsg(w, code, err.Error())
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid json")
	}
	return nil
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
