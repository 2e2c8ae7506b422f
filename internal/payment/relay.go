package payment

import (
	"context"

	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-qris-store.git/internal/kafka"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

// OnExpiredEvent memproses store.payment.expired dari proses lain (worker sweep):
// batalkan timer lokal dan lepas state session. Idempotent; event milik sendiri ikut diproses tanpa efek.
func (x *Expirer) OnExpiredEvent(ctx context.Context, value []byte) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(value, &env); err != nil {
		x.log().Warn("drop undecodable expired event", zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventPaymentExpired {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.PaymentExpiredPayload](env.Payload)
	if err != nil {
		x.log().Warn("drop expired event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	x.Release(ctx, orders.Expired{Kind: p.Kind, Code: p.Code, TelegramID: p.TelegramID})
	return nil
}
