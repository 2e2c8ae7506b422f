package orders

import (
	"encoding/json"
	"time"
)

const (
	EventInvoiceReady    = "InvoiceReady"
	EventInvoiceFailed   = "InvoiceFailed"
	EventPaymentExpiring = "PaymentExpiring"
	EventPaymentExpired  = "PaymentExpired"
	EventPaymentPaid     = "PaymentPaid"
	EventOrderDelivered  = "OrderDelivered"
	EventPaymentLate     = "PaymentLate"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "qris-store-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // kode order/topup
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type InvoiceReadyPayload struct {
	Kind       Kind      `json:"kind"`
	Code       string    `json:"code"`
	TelegramID int64     `json:"telegram_id"`
	Total      int64     `json:"total"`
	PaymentRef string    `json:"payment_ref"` // QR string
	ExpiresAt  time.Time `json:"expires_at"`
}

type InvoiceFailedPayload struct {
	Kind       Kind   `json:"kind"`
	Code       string `json:"code"`
	TelegramID int64  `json:"telegram_id"`
	Reason     string `json:"reason"`
}

type PaymentExpiringPayload struct {
	Kind       Kind      `json:"kind"`
	Code       string    `json:"code"`
	TelegramID int64     `json:"telegram_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type PaymentExpiredPayload struct {
	Kind       Kind     `json:"kind"`
	Code       string   `json:"code"`
	TelegramID int64    `json:"telegram_id"`
	Source     string   `json:"source"` // timer | sweep | lazy
	// Cleanup: event_id pesan UI (invoice, peringatan) yang harus dihapus downstream.
	Cleanup    []string `json:"cleanup,omitempty"`
}

type PaymentPaidPayload struct {
	Kind       Kind     `json:"kind"`
	Code       string   `json:"code"`
	TelegramID int64    `json:"telegram_id"`
	Amount     int64    `json:"amount"`
	Source     string   `json:"source"`            // webhook | check | balance
	Balance    int64    `json:"balance,omitempty"` // saldo baru (topup)
	Cleanup    []string `json:"cleanup,omitempty"`
}

type OrderDeliveredPayload struct {
	Code        string      `json:"code"`
	TelegramID  int64       `json:"telegram_id"`
	ProductType ProductType `json:"product_type"`
	Outcome     string      `json:"outcome"`
}

// PaymentLatePayload: gateway melaporkan bayar untuk kode yang sudah EXPIRED -> ditangani admin manual.
type PaymentLatePayload struct {
	Kind   Kind   `json:"kind"`
	Code   string `json:"code"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}
