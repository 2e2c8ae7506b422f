package payment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/metrics"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
	"github.com/ariefcatur/go-qris-store.git/internal/session"
)

type ExpiryStore interface {
	ExpireOrder(ctx context.Context, code string) (orders.Expired, bool, error)
	ExpireTopup(ctx context.Context, code string) (orders.Expired, bool, error)
}

// Expirer: efek samping expiry bersama untuk timer, sweep, dan lazy path.
// Dipakai api (dengan Timers) dan worker (tanpa Timers).
type Expirer struct {
	Store    ExpiryStore
	Lookup   Lookup
	Sessions session.Store
	Events   Events
	Timers   interface{ Cancel(code string) bool }
	Metrics  *metrics.Store
	Log      *zap.Logger
}

// Lookup dipakai Warn untuk memastikan record masih PENDING.
type Lookup interface {
	GetOrder(ctx context.Context, code string) (orders.Order, error)
	GetTopup(ctx context.Context, code string) (orders.Topup, error)
}

func (x *Expirer) log() *zap.Logger {
	if x.Log == nil {
		return zap.NewNop()
	}
	return x.Log
}

// Expire mencoba PENDING -> EXPIRED. Kalah race (sudah PAID/EXPIRED) bukan error.
func (x *Expirer) Expire(ctx context.Context, code, source string) error {
	expire := x.Store.ExpireOrder
	if orders.KindOfCode(code) == orders.KindTopup {
		expire = x.Store.ExpireTopup
	}
	e, won, err := expire(ctx, code)
	if err != nil {
		return err
	}
	if !won {
		if x.Timers != nil {
			x.Timers.Cancel(code)
		}
		return nil
	}
	x.AfterExpire(ctx, e, source)
	return nil
}

// AfterExpire dijalankan sekali oleh pemenang transisi ke EXPIRED.
func (x *Expirer) AfterExpire(ctx context.Context, e orders.Expired, source string) {
	cleanup := x.Release(ctx, e)
	x.Metrics.Expired(string(e.Kind), source)
	if _, err := x.Events.Emit(ctx, orders.TopicPaymentExpired, orders.EventPaymentExpired, e.Code, orders.PaymentExpiredPayload{
		Kind: e.Kind, Code: e.Code, TelegramID: e.TelegramID, Source: source, Cleanup: cleanup,
	}); err != nil {
		x.log().Warn("emit expired failed", zap.String("code", e.Code), zap.Error(err))
	}
	x.log().Info("payment expired", zap.String("code", e.Code), zap.String("kind", string(e.Kind)), zap.String("source", source))
}

// Release membersihkan state proses untuk record terminal: timer, lock user, referensi pesan UI.
func (x *Expirer) Release(ctx context.Context, e orders.Expired) []string {
	if x.Timers != nil {
		x.Timers.Cancel(e.Code)
	}
	if x.Sessions == nil {
		return nil
	}
	if err := x.Sessions.ReleaseLock(ctx, e.TelegramID, e.Code); err != nil {
		x.log().Warn("release lock failed", zap.String("code", e.Code), zap.Error(err))
	}
	refs, err := x.Sessions.TakeMessages(ctx, e.Code)
	if err != nil {
		x.log().Warn("take ui messages failed", zap.String("code", e.Code), zap.Error(err))
	}
	return refs
}

// Warn mengirim peringatan mendekati deadline jika record masih PENDING.
func (x *Expirer) Warn(ctx context.Context, code string, deadline time.Time) error {
	var (
		kind       = orders.KindOfCode(code)
		status     orders.Status
		telegramID int64
	)
	if kind == orders.KindTopup {
		t, err := x.Lookup.GetTopup(ctx, code)
		if err != nil {
			return err
		}
		status, telegramID = t.Status, t.TelegramID
	} else {
		o, err := x.Lookup.GetOrder(ctx, code)
		if err != nil {
			return err
		}
		status, telegramID = o.Status, o.TelegramID
	}
	if !orders.CanTransition(status, orders.StatusExpired) {
		return nil
	}

	id, err := x.Events.Emit(ctx, orders.TopicPaymentExpiring, orders.EventPaymentExpiring, code, orders.PaymentExpiringPayload{
		Kind: kind, Code: code, TelegramID: telegramID, ExpiresAt: deadline,
	})
	if err != nil {
		return err
	}
	if x.Sessions != nil {
		return x.Sessions.RememberMessage(ctx, code, id, time.Until(deadline)+time.Hour)
	}
	return nil
}
