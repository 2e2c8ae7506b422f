package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/expiry"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

// TopupView: topup + saldo setelah kredit (jika baru saja PAID).
type TopupView struct {
	Topup   orders.Topup
	Balance *int64
}

func (s *Service) CreateTopup(ctx context.Context, telegramID, amount int64) (orders.Topup, error) {
	if amount < s.opts.MinTopup || (s.opts.MaxTopup > 0 && amount > s.opts.MaxTopup) {
		return orders.Topup{}, fmt.Errorf("%w: must be between %d and %d", ErrInvalidAmount, s.opts.MinTopup, s.opts.MaxTopup)
	}
	now := s.now()
	code := orders.NewTopupCode(now)
	if err := s.acquire(ctx, telegramID, code, s.lockTTL()); err != nil {
		return orders.Topup{}, err
	}
	keepLock := false
	defer func() {
		if !keepLock {
			s.releaseLock(ctx, telegramID, code)
		}
	}()

	user, err := s.store.GetOrCreateUser(ctx, telegramID)
	if err != nil {
		return orders.Topup{}, err
	}
	if pending, found, err := s.store.PendingTopup(ctx, user.ID); err != nil {
		return orders.Topup{}, err
	} else if found {
		return orders.Topup{}, fmt.Errorf("%w: %s", ErrPendingExists, pending)
	}

	alloc, err := s.alloc.Allocate(ctx, amount)
	if err != nil {
		return orders.Topup{}, err
	}
	if alloc.Collided {
		s.log.Warn("unique amount collided after retries", zap.Int64("total", alloc.Total), zap.String("code", code))
	}

	t := orders.Topup{
		Code:              code,
		UserID:            user.ID,
		TelegramID:        telegramID,
		BaseAmount:        amount,
		UniqueSurcharge:   alloc.Surcharge,
		TotalAmount:       alloc.Total,
		Status:            orders.StatusPendingPayment,
		InternalExpiredAt: now.Add(s.opts.ExpireAfter),
	}
	if err := s.store.InsertPendingTopup(ctx, &t); err != nil {
		return orders.Topup{}, err
	}
	keepLock = true
	s.metrics.OrderCreated(string(orders.KindTopup), string(orders.MethodQRIS))
	s.timers.Arm(t.Code, t.InternalExpiredAt)
	s.mintAsync(invoiceJob{kind: orders.KindTopup, code: t.Code, telegramID: telegramID, total: t.TotalAmount, deadline: t.InternalExpiredAt})

	s.log.Info("topup created", zap.String("code", t.Code), zap.Int64("amount", amount), zap.Int64("total", t.TotalAmount))
	return t, nil
}

func (s *Service) getTopup(ctx context.Context, telegramID int64, code string) (orders.Topup, error) {
	t, err := s.store.GetTopup(ctx, code)
	if err != nil {
		return orders.Topup{}, err
	}
	if t.TelegramID != telegramID {
		return orders.Topup{}, orders.ErrNotFound
	}
	return t, nil
}

func (s *Service) CheckTopup(ctx context.Context, telegramID int64, code string) (TopupView, error) {
	t, err := s.getTopup(ctx, telegramID, code)
	if err != nil {
		return TopupView{}, err
	}
	if t.Status.Terminal() {
		return TopupView{Topup: t}, nil
	}
	if t.Overdue(s.now()) {
		if err := s.expirer.Expire(ctx, t.Code, expiry.SourceLazy); err != nil {
			return TopupView{}, err
		}
		return s.reloadTopup(ctx, t.Code, nil)
	}

	if err := s.allowCheck(ctx, code); err != nil {
		return TopupView{}, err
	}
	d, err := s.gw.Detail(ctx, t.Code, t.TotalAmount)
	if err != nil {
		return TopupView{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	if !d.Paid {
		return TopupView{Topup: t}, nil
	}
	return s.confirmTopup(ctx, t, "check")
}

// confirmTopup: PAID + kredit saldo dalam satu transaksi; pemenang saja yang mengkredit.
func (s *Service) confirmTopup(ctx context.Context, t orders.Topup, source string) (TopupView, error) {
	won, balance, err := s.store.MarkTopupPaid(ctx, t.Code)
	if err != nil {
		return TopupView{}, err
	}
	if !won {
		cur, err := s.store.GetTopup(ctx, t.Code)
		if err != nil {
			return TopupView{}, err
		}
		if cur.Status == orders.StatusPendingPayment {
			// deadline lewat selama menunggu gateway
			if err := s.expirer.Expire(ctx, cur.Code, expiry.SourceLazy); err != nil {
				return TopupView{}, err
			}
			if cur, err = s.store.GetTopup(ctx, t.Code); err != nil {
				return TopupView{}, err
			}
		}
		if cur.Status == orders.StatusExpired {
			s.late(ctx, orders.KindTopup, cur.Code, cur.TotalAmount, source)
		}
		return TopupView{Topup: cur}, nil
	}

	s.metrics.PaymentConfirmed(string(orders.KindTopup), source)
	cleanup := s.expirer.Release(ctx, orders.Expired{Kind: orders.KindTopup, Code: t.Code, TelegramID: t.TelegramID})
	s.emit(ctx, orders.TopicPaymentPaid, orders.EventPaymentPaid, t.Code, orders.PaymentPaidPayload{
		Kind: orders.KindTopup, Code: t.Code, TelegramID: t.TelegramID, Amount: t.TotalAmount,
		Source: source, Balance: balance, Cleanup: cleanup,
	})
	s.log.Info("topup paid", zap.String("code", t.Code), zap.String("source", source), zap.Int64("credited", t.BaseAmount))
	return s.reloadTopup(ctx, t.Code, &balance)
}

func (s *Service) reloadTopup(ctx context.Context, code string, balance *int64) (TopupView, error) {
	cur, err := s.store.GetTopup(ctx, code)
	if err != nil {
		return TopupView{}, err
	}
	return TopupView{Topup: cur, Balance: balance}, nil
}
