// Package payment mengorkestrasi siklus order & topup: buat intent, cek status, konfirmasi webhook,
// bayar pakai saldo, dan expiry. Kebenaran (tidak dobel bayar/kirim) dijaga update bersyarat di store;
// lock session hanya throttle UX.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/delivery"
	"github.com/ariefcatur/go-qris-store.git/internal/gateway"
	"github.com/ariefcatur/go-qris-store.git/internal/metrics"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
	"github.com/ariefcatur/go-qris-store.git/internal/session"
)

var (
	ErrActiveTransaction  = errors.New("user already has an active transaction")
	ErrPendingExists      = errors.New("pending payment already exists")
	ErrCheckCooldown      = errors.New("status check is cooling down")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrGateway            = errors.New("payment gateway error")
	ErrNotInvite          = errors.New("order is not an invite product")
)

const (
	myProductsLimit = 20
	mintTimeout     = 30 * time.Second
	balanceLockTTL  = 30 * time.Second
)

// Store: subset orders.Repo yang dipakai service.
type Store interface {
	orders.TotalChecker
	GetOrCreateUser(ctx context.Context, telegramID int64) (orders.User, error)
	GetProduct(ctx context.Context, id int64) (orders.Product, error)

	PendingOrder(ctx context.Context, userID int64) (string, bool, error)
	InsertPendingOrder(ctx context.Context, o *orders.Order) error
	SetOrderPaymentRef(ctx context.Context, code, ref string) error
	GetOrder(ctx context.Context, code string) (orders.Order, error)
	MarkOrderPaid(ctx context.Context, code string) (bool, error)
	PayWithBalance(ctx context.Context, telegramID int64, p orders.Product, code string) (orders.Order, *orders.StockUnit, error)
	DeliveredItems(ctx context.Context, telegramID int64, limit int) ([]orders.DeliveredItem, error)

	PendingTopup(ctx context.Context, userID int64) (string, bool, error)
	InsertPendingTopup(ctx context.Context, t *orders.Topup) error
	SetTopupPaymentRef(ctx context.Context, code, ref string) error
	GetTopup(ctx context.Context, code string) (orders.Topup, error)
	MarkTopupPaid(ctx context.Context, code string) (bool, int64, error)

	ExpiryStore
}

type StockCounter interface {
	Counts(ctx context.Context, productID int64) (orders.StockCounts, error)
}

type Gateway interface {
	CreateQRIS(ctx context.Context, orderID string, amount int64) (gateway.Intent, error)
	Detail(ctx context.Context, orderID string, amount int64) (gateway.Detail, error)
}

// Events: publish envelope lifecycle; mengembalikan event_id.
type Events interface {
	Emit(ctx context.Context, topic, eventType, code string, payload any) (string, error)
}

type Timers interface {
	Arm(code string, deadline time.Time)
	Cancel(code string) bool
}

type Deliverer interface {
	Deliver(ctx context.Context, o orders.Order) (delivery.Outcome, error)
	Retrieve(ctx context.Context, o orders.Order) (delivery.Outcome, error)
}

type Options struct {
	ExpireAfter   time.Duration
	CheckCooldown time.Duration
	InvoiceDelay  time.Duration
	MinTopup      int64
	MaxTopup      int64
	AdminContact  string
}

type Deps struct {
	Store      Store
	Stock      StockCounter
	Gateway    Gateway
	Events     Events
	Sessions   session.Store
	Timers     Timers
	Dispatcher Deliverer
	Expirer    *Expirer
	Metrics    *metrics.Store
	Log        *zap.Logger
}

type Service struct {
	store      Store
	stock      StockCounter
	gw         Gateway
	events     Events
	sessions   session.Store
	timers     Timers
	dispatcher Deliverer
	expirer    *Expirer
	alloc      *orders.Allocator
	metrics    *metrics.Store
	log        *zap.Logger
	opts       Options
	now        func() time.Time

	// invoice yang sedang dibuat di background; ditunggu saat shutdown
	inflight sync.WaitGroup
}

func NewService(d Deps, opts Options) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if opts.ExpireAfter <= 0 {
		opts.ExpireAfter = 11 * time.Minute
	}
	return &Service{
		store:      d.Store,
		stock:      d.Stock,
		gw:         d.Gateway,
		events:     d.Events,
		sessions:   d.Sessions,
		timers:     d.Timers,
		dispatcher: d.Dispatcher,
		expirer:    d.Expirer,
		alloc:      orders.NewAllocator(d.Store),
		metrics:    d.Metrics,
		log:        d.Log.Named("payment"),
		opts:       opts,
		now:        time.Now,
	}
}

// Wait menunggu goroutine pembuatan invoice selesai (graceful shutdown).
func (s *Service) Wait() { s.inflight.Wait() }

// OrderView: order + hasil delivery (jika sudah PAID).
type OrderView struct {
	Order   orders.Order
	Outcome *delivery.Outcome
}

func (s *Service) emit(ctx context.Context, topic, eventType, code string, payload any) string {
	id, err := s.events.Emit(ctx, topic, eventType, code, payload)
	if err != nil {
		s.log.Warn("emit event failed", zap.String("event", eventType), zap.String("code", code), zap.Error(err))
	}
	return id
}

func (s *Service) lockTTL() time.Duration { return s.opts.ExpireAfter + time.Minute }

// releaseLock dipakai di jalur gagal; ctx caller bisa sudah batal.
func (s *Service) releaseLock(ctx context.Context, telegramID int64, code string) {
	if err := s.sessions.ReleaseLock(context.WithoutCancel(ctx), telegramID, code); err != nil {
		s.log.Warn("release lock failed", zap.Int64("telegram_id", telegramID), zap.String("code", code), zap.Error(err))
	}
}

func (s *Service) acquire(ctx context.Context, telegramID int64, code string, ttl time.Duration) error {
	if telegramID <= 0 {
		return orders.ErrInvalidInput
	}
	ok, err := s.sessions.AcquireLock(ctx, telegramID, code, ttl)
	if err != nil {
		return err
	}
	if !ok {
		if holder, err := s.sessions.LockHolder(ctx, telegramID); err == nil && holder != "" {
			return fmt.Errorf("%w: %s", ErrActiveTransaction, holder)
		}
		return ErrActiveTransaction
	}
	return nil
}

func (s *Service) allowCheck(ctx context.Context, code string) error {
	if s.opts.CheckCooldown <= 0 {
		return nil
	}
	ok, err := s.sessions.AllowCheck(ctx, code, s.opts.CheckCooldown)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCheckCooldown
	}
	return nil
}

func (s *Service) Balance(ctx context.Context, telegramID int64) (int64, error) {
	if telegramID <= 0 {
		return 0, orders.ErrInvalidInput
	}
	u, err := s.store.GetOrCreateUser(ctx, telegramID)
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}

// MyProducts: payload AUTO/LICENSE terakhir yang sudah terkirim ke user.
func (s *Service) MyProducts(ctx context.Context, telegramID int64) ([]orders.DeliveredItem, error) {
	if telegramID <= 0 {
		return nil, orders.ErrInvalidInput
	}
	return s.store.DeliveredItems(ctx, telegramID, myProductsLimit)
}
