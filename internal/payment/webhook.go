package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/expiry"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

// WebhookResult menjelaskan apa yang terjadi pada satu webhook (untuk log & respons).
type WebhookResult string

const (
	WebhookPaid           WebhookResult = "paid"
	WebhookNotPaid        WebhookResult = "not_paid"
	WebhookUnknown        WebhookResult = "unknown_code"
	WebhookAmountMismatch WebhookResult = "amount_mismatch"
	WebhookAlreadyFinal   WebhookResult = "already_final"
	WebhookLate           WebhookResult = "late"
)

// ConfirmFromWebhook memvalidasi ulang lewat detail gateway lalu menerapkan PAID.
// Hanya error tak terduga yang dikembalikan; sisanya menjadi hasil yang di-ack.
func (s *Service) ConfirmFromWebhook(ctx context.Context, code string, amount int64, status string) (WebhookResult, error) {
	log := s.log.With(zap.String("code", code), zap.Int64("amount", amount), zap.String("status", status))

	var (
		kind    = orders.KindOfCode(code)
		total   int64
		current orders.Status
		overdue bool
		order   orders.Order
		topup   orders.Topup
		err     error
	)
	if kind == orders.KindTopup {
		topup, err = s.store.GetTopup(ctx, code)
		total, current, overdue = topup.TotalAmount, topup.Status, topup.Overdue(s.now())
	} else {
		order, err = s.store.GetOrder(ctx, code)
		total, current, overdue = order.TotalAmount, order.Status, order.Overdue(s.now())
	}
	if errors.Is(err, orders.ErrNotFound) {
		log.Warn("webhook for unknown code")
		return WebhookUnknown, nil
	}
	if err != nil {
		return "", err
	}
	if amount != total {
		log.Warn("webhook amount does not match stored total", zap.Int64("stored_total", total))
		return WebhookAmountMismatch, nil
	}

	d, err := s.gw.Detail(ctx, code, amount)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGateway, err)
	}
	if !strings.EqualFold(status, "completed") && !d.Paid {
		return WebhookNotPaid, nil
	}

	if current == orders.StatusPendingPayment && overdue {
		if err := s.expirer.Expire(ctx, code, expiry.SourceLazy); err != nil {
			return "", err
		}
		// bisa kalah race dengan konfirmasi lain; baca ulang status sebenarnya
		if current, err = s.statusOf(ctx, kind, code); err != nil {
			return "", err
		}
	}
	switch current {
	case orders.StatusExpired:
		s.late(ctx, kind, code, amount, status)
		return WebhookLate, nil
	case orders.StatusPaid:
		if kind == orders.KindOrder {
			// PAID tapi mungkin belum terkirim (stok habis sebelumnya): ulang delivery
			cur, err := s.store.GetOrder(ctx, code)
			if err != nil {
				return "", err
			}
			if _, err := s.deliver(ctx, cur); err != nil {
				return "", err
			}
		}
		return WebhookAlreadyFinal, nil
	}

	if kind == orders.KindTopup {
		v, err := s.confirmTopup(ctx, topup, "webhook")
		if err != nil {
			return "", err
		}
		return resultFor(v.Topup.Status), nil
	}
	v, err := s.confirmOrder(ctx, order, "webhook")
	if err != nil {
		return "", err
	}
	return resultFor(v.Order.Status), nil
}

func (s *Service) statusOf(ctx context.Context, kind orders.Kind, code string) (orders.Status, error) {
	if kind == orders.KindTopup {
		t, err := s.store.GetTopup(ctx, code)
		return t.Status, err
	}
	o, err := s.store.GetOrder(ctx, code)
	return o.Status, err
}

func resultFor(st orders.Status) WebhookResult {
	switch st {
	case orders.StatusPaid:
		return WebhookPaid
	case orders.StatusExpired:
		return WebhookLate
	}
	return WebhookNotPaid
}
