package payment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

type invoiceJob struct {
	kind       orders.Kind
	code       string
	telegramID int64
	total      int64
	deadline   time.Time
}

// mintAsync membuat intent QRIS di background supaya caller langsung dapat kode & nominal.
// Gagal -> event invoice.failed dan lock dilepas; record tetap PENDING sampai expiry.
func (s *Service) mintAsync(job invoiceJob) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mintTimeout+s.opts.InvoiceDelay)
		defer cancel()
		s.mint(ctx, job)
	}()
}

func (s *Service) mint(ctx context.Context, job invoiceJob) {
	log := s.log.With(zap.String("code", job.code), zap.String("kind", string(job.kind)))
	if s.opts.InvoiceDelay > 0 {
		select {
		case <-time.After(s.opts.InvoiceDelay):
		case <-ctx.Done():
			return
		}
	}

	intent, err := s.gw.CreateQRIS(ctx, job.code, job.total)
	if err != nil {
		log.Warn("create qris failed", zap.Error(err))
		s.emit(ctx, orders.TopicInvoiceFailed, orders.EventInvoiceFailed, job.code, orders.InvoiceFailedPayload{
			Kind: job.kind, Code: job.code, TelegramID: job.telegramID, Reason: err.Error(),
		})
		s.releaseLock(ctx, job.telegramID, job.code)
		return
	}

	setRef := s.store.SetOrderPaymentRef
	if job.kind == orders.KindTopup {
		setRef = s.store.SetTopupPaymentRef
	}
	if err := setRef(ctx, job.code, intent.PaymentNumber); err != nil {
		// QR tetap dikirim; cek status tidak butuh payment_ref
		log.Warn("store payment ref failed", zap.Error(err))
	}

	id := s.emit(ctx, orders.TopicInvoiceReady, orders.EventInvoiceReady, job.code, orders.InvoiceReadyPayload{
		Kind: job.kind, Code: job.code, TelegramID: job.telegramID, Total: job.total,
		PaymentRef: intent.PaymentNumber, ExpiresAt: job.deadline,
	})
	if id != "" {
		if err := s.sessions.RememberMessage(ctx, job.code, id, s.lockTTL()); err != nil {
			log.Warn("remember invoice message failed", zap.Error(err))
		}
	}
}
