package payment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/delivery"
	"github.com/ariefcatur/go-qris-store.git/internal/expiry"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

// CreateOrder membuat order QRIS PENDING. Intent gateway dibuat async (event invoice.ready / invoice.failed).
func (s *Service) CreateOrder(ctx context.Context, telegramID, productID int64) (orders.Order, error) {
	now := s.now()
	code := orders.NewOrderCode(now)
	if err := s.acquire(ctx, telegramID, code, s.lockTTL()); err != nil {
		return orders.Order{}, err
	}
	keepLock := false
	defer func() {
		if !keepLock {
			s.releaseLock(ctx, telegramID, code)
		}
	}()

	user, err := s.store.GetOrCreateUser(ctx, telegramID)
	if err != nil {
		return orders.Order{}, err
	}
	if pending, found, err := s.store.PendingOrder(ctx, user.ID); err != nil {
		return orders.Order{}, err
	} else if found {
		return orders.Order{}, fmt.Errorf("%w: %s", ErrPendingExists, pending)
	}

	p, err := s.availableProduct(ctx, productID)
	if err != nil {
		return orders.Order{}, err
	}

	alloc, err := s.alloc.Allocate(ctx, p.Price)
	if err != nil {
		return orders.Order{}, err
	}
	if alloc.Collided {
		s.log.Warn("unique amount collided after retries", zap.Int64("total", alloc.Total), zap.String("code", code))
	}

	o := orders.Order{
		Code:              code,
		UserID:            user.ID,
		TelegramID:        telegramID,
		ProductID:         p.ID,
		ProductName:       p.Name,
		ProductType:       p.Type,
		BaseAmount:        p.Price,
		UniqueSurcharge:   alloc.Surcharge,
		TotalAmount:       alloc.Total,
		Method:            orders.MethodQRIS,
		Status:            orders.StatusPendingPayment,
		InternalExpiredAt: now.Add(s.opts.ExpireAfter),
	}
	if err := s.store.InsertPendingOrder(ctx, &o); err != nil {
		return orders.Order{}, err
	}
	keepLock = true
	s.metrics.OrderCreated(string(orders.KindOrder), string(orders.MethodQRIS))
	s.timers.Arm(o.Code, o.InternalExpiredAt)
	s.mintAsync(invoiceJob{kind: orders.KindOrder, code: o.Code, telegramID: telegramID, total: o.TotalAmount, deadline: o.InternalExpiredAt})

	s.log.Info("order created", zap.String("code", o.Code), zap.Int64("product_id", p.ID), zap.Int64("total", o.TotalAmount))
	return o, nil
}

// availableProduct: produk aktif & (untuk tipe berstok) masih ada unit di pool-nya.
func (s *Service) availableProduct(ctx context.Context, productID int64) (orders.Product, error) {
	p, err := s.store.GetProduct(ctx, productID)
	if errors.Is(err, orders.ErrNotFound) {
		return orders.Product{}, ErrProductUnavailable
	}
	if err != nil {
		return orders.Product{}, err
	}
	if !p.IsActive {
		return orders.Product{}, ErrProductUnavailable
	}
	if p.Type.StockBacked() {
		c, err := s.stock.Counts(ctx, p.ID)
		if err != nil {
			return orders.Product{}, err
		}
		if c.Left(p.Type) == 0 {
			return orders.Product{}, orders.ErrOutOfStock
		}
	}
	return p, nil
}

// PayWithBalance: varian sinkron, debit + order PAID + klaim stok + delivered dalam satu transaksi.
func (s *Service) PayWithBalance(ctx context.Context, telegramID, productID int64) (OrderView, error) {
	code := orders.NewOrderCode(s.now())
	if err := s.acquire(ctx, telegramID, code, balanceLockTTL); err != nil {
		return OrderView{}, err
	}
	defer s.releaseLock(ctx, telegramID, code)

	user, err := s.store.GetOrCreateUser(ctx, telegramID)
	if err != nil {
		return OrderView{}, err
	}
	if pending, found, err := s.store.PendingOrder(ctx, user.ID); err != nil {
		return OrderView{}, err
	} else if found {
		return OrderView{}, fmt.Errorf("%w: %s", ErrPendingExists, pending)
	}
	p, err := s.availableProduct(ctx, productID)
	if err != nil {
		return OrderView{}, err
	}

	o, unit, err := s.store.PayWithBalance(ctx, telegramID, p, code)
	if err != nil {
		if errors.Is(err, orders.ErrOutOfStock) {
			s.metrics.StockClaim(string(p.Type.Pool()), false)
		}
		return OrderView{}, err
	}
	s.metrics.OrderCreated(string(orders.KindOrder), string(orders.MethodBalance))
	s.metrics.PaymentConfirmed(string(orders.KindOrder), "balance")
	if unit != nil {
		s.metrics.StockClaim(string(unit.Kind), true)
	}

	out := delivery.Outcome{Code: o.Code, ProductType: o.ProductType}
	switch {
	case o.ProductType == orders.TypeInvite:
		out.Kind = delivery.OutcomeInviteReserved
		out.AdminContact = s.opts.AdminContact
	case unit != nil:
		out.Kind = delivery.OutcomeDelivered
		out.Payloads = []string{unit.Code}
	default:
		out.Kind = delivery.OutcomeAcknowledged
	}

	s.emit(ctx, orders.TopicPaymentPaid, orders.EventPaymentPaid, o.Code, orders.PaymentPaidPayload{
		Kind: orders.KindOrder, Code: o.Code, TelegramID: telegramID, Amount: o.TotalAmount, Source: "balance",
	})
	s.emitDelivered(ctx, o, out)
	return OrderView{Order: o, Outcome: &out}, nil
}

// GetOrder: hanya pemilik yang boleh melihat order.
func (s *Service) GetOrder(ctx context.Context, telegramID int64, code string) (orders.Order, error) {
	o, err := s.store.GetOrder(ctx, code)
	if err != nil {
		return orders.Order{}, err
	}
	if o.TelegramID != telegramID {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

// CheckOrder: cek manual ke gateway. Lewat deadline -> expire lazy tanpa panggil gateway.
// Cooldown hanya dipasang untuk pemilik, tepat sebelum gateway dipanggil.
func (s *Service) CheckOrder(ctx context.Context, telegramID int64, code string) (OrderView, error) {
	o, err := s.GetOrder(ctx, telegramID, code)
	if err != nil {
		return OrderView{}, err
	}

	switch o.Status {
	case orders.StatusExpired:
		return OrderView{Order: o}, nil
	case orders.StatusPaid:
		return s.deliver(ctx, o)
	}

	if o.Overdue(s.now()) {
		return s.expireLazy(ctx, o)
	}

	if err := s.allowCheck(ctx, code); err != nil {
		return OrderView{}, err
	}
	d, err := s.gw.Detail(ctx, o.Code, o.TotalAmount)
	if err != nil {
		return OrderView{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	if !d.Paid {
		return OrderView{Order: o}, nil
	}
	return s.confirmOrder(ctx, o, "check")
}

func (s *Service) expireLazy(ctx context.Context, o orders.Order) (OrderView, error) {
	if err := s.expirer.Expire(ctx, o.Code, expiry.SourceLazy); err != nil {
		return OrderView{}, err
	}
	cur, err := s.store.GetOrder(ctx, o.Code)
	if err != nil {
		return OrderView{}, err
	}
	return OrderView{Order: cur}, nil
}

// confirmOrder menerapkan PAID (bersyarat) lalu delivery. Konfirmasi kedua hanya mengulang delivery idempotent.
func (s *Service) confirmOrder(ctx context.Context, o orders.Order, source string) (OrderView, error) {
	won, err := s.store.MarkOrderPaid(ctx, o.Code)
	if err != nil {
		return OrderView{}, err
	}
	if won {
		s.metrics.PaymentConfirmed(string(orders.KindOrder), source)
		cleanup := s.expirer.Release(ctx, orders.Expired{Kind: orders.KindOrder, Code: o.Code, TelegramID: o.TelegramID})
		s.emit(ctx, orders.TopicPaymentPaid, orders.EventPaymentPaid, o.Code, orders.PaymentPaidPayload{
			Kind: orders.KindOrder, Code: o.Code, TelegramID: o.TelegramID, Amount: o.TotalAmount, Source: source, Cleanup: cleanup,
		})
		s.log.Info("order paid", zap.String("code", o.Code), zap.String("source", source))
	}

	cur, err := s.store.GetOrder(ctx, o.Code)
	if err != nil {
		return OrderView{}, err
	}
	if !won && cur.Status == orders.StatusPendingPayment {
		// deadline lewat selama menunggu gateway: PAID ditolak, record di-expire lalu masuk jalur late
		if err := s.expirer.Expire(ctx, cur.Code, expiry.SourceLazy); err != nil {
			return OrderView{}, err
		}
		if cur, err = s.store.GetOrder(ctx, o.Code); err != nil {
			return OrderView{}, err
		}
	}
	switch cur.Status {
	case orders.StatusPaid:
		return s.deliver(ctx, cur)
	case orders.StatusExpired:
		s.late(ctx, orders.KindOrder, cur.Code, cur.TotalAmount, source)
	}
	return OrderView{Order: cur}, nil
}

func (s *Service) deliver(ctx context.Context, o orders.Order) (OrderView, error) {
	wasDelivered := o.Delivered()
	out, err := s.dispatcher.Deliver(ctx, o)
	if err != nil {
		return OrderView{}, err
	}
	if !wasDelivered && out.Kind != delivery.OutcomeReadyToRetrieve {
		s.emitDelivered(ctx, o, out)
	}
	return OrderView{Order: o, Outcome: &out}, nil
}

func (s *Service) emitDelivered(ctx context.Context, o orders.Order, out delivery.Outcome) {
	s.emit(ctx, orders.TopicOrderDelivered, orders.EventOrderDelivered, o.Code, orders.OrderDeliveredPayload{
		Code: o.Code, TelegramID: o.TelegramID, ProductType: o.ProductType, Outcome: string(out.Kind),
	})
}

// late: gateway bilang lunas tapi record sudah EXPIRED. Tidak dipulihkan otomatis; admin yang menangani.
func (s *Service) late(ctx context.Context, kind orders.Kind, code string, amount int64, status string) {
	s.log.Warn("payment confirmed for expired record", zap.String("code", code), zap.Int64("amount", amount))
	s.emit(ctx, orders.TopicPaymentLate, orders.EventPaymentLate, code, orders.PaymentLatePayload{
		Kind: kind, Code: code, Amount: amount, Status: status,
	})
}

// Retrieve: AUTO/LICENSE, klaim + ungkap payload. Ulangan mengembalikan payload yang sama.
func (s *Service) Retrieve(ctx context.Context, telegramID int64, code string) (OrderView, error) {
	o, err := s.GetOrder(ctx, telegramID, code)
	if err != nil {
		return OrderView{}, err
	}
	if o.Status != orders.StatusPaid {
		return OrderView{}, orders.ErrNotPaid
	}
	wasDelivered := o.Delivered()
	out, err := s.dispatcher.Retrieve(ctx, o)
	if err != nil {
		return OrderView{}, err
	}
	if !wasDelivered && out.Kind == delivery.OutcomeDelivered {
		s.emitDelivered(ctx, o, out)
	}
	return OrderView{Order: o, Outcome: &out}, nil
}

// ContactAdmin: order INVITE yang sudah PAID diarahkan ke kontak admin.
func (s *Service) ContactAdmin(ctx context.Context, telegramID int64, code string) (string, error) {
	o, err := s.GetOrder(ctx, telegramID, code)
	if err != nil {
		return "", err
	}
	if o.ProductType != orders.TypeInvite {
		return "", ErrNotInvite
	}
	if o.Status != orders.StatusPaid {
		return "", orders.ErrNotPaid
	}
	return s.opts.AdminContact, nil
}
