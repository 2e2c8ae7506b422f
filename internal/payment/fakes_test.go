package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-qris-store.git/internal/gateway"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeStore meniru orders.Repo: transisi bersyarat & klaim stok di bawah satu mutex.
type fakeStore struct {
	mu       sync.Mutex
	clock    *testClock
	nextID   int64
	users    map[int64]*orders.User
	products map[int64]orders.Product
	orders   map[string]*orders.Order
	topups   map[string]*orders.Topup
	payloads map[int64][]string
	invites  map[int64]int
	claimed  map[string][]string
}

func newFakeStore(clock *testClock) *fakeStore {
	return &fakeStore{
		clock:    clock,
		users:    map[int64]*orders.User{},
		products: map[int64]orders.Product{},
		orders:   map[string]*orders.Order{},
		topups:   map[string]*orders.Topup{},
		payloads: map[int64][]string{},
		invites:  map[int64]int{},
		claimed:  map[string][]string{},
	}
}

func (f *fakeStore) id() int64 { f.nextID++; return f.nextID }

func (f *fakeStore) addProduct(p orders.Product) orders.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.id()
	p.IsActive = true
	f.products[p.ID] = p
	return p
}

func (f *fakeStore) TotalInUse(_ context.Context, total int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.now()
	for _, o := range f.orders {
		if o.Status == orders.StatusPendingPayment && o.InternalExpiredAt.After(now) && o.TotalAmount == total {
			return true, nil
		}
	}
	for _, t := range f.topups {
		if t.Status == orders.StatusPendingPayment && t.InternalExpiredAt.After(now) && t.TotalAmount == total {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetOrCreateUser(_ context.Context, tg int64) (orders.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[tg]
	if !ok {
		u = &orders.User{ID: f.id(), TelegramID: tg, CreatedAt: f.clock.now()}
		f.users[tg] = u
	}
	return *u, nil
}

func (f *fakeStore) balance(tg int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[tg]; ok {
		return u.Balance
	}
	return 0
}

func (f *fakeStore) GetProduct(_ context.Context, id int64) (orders.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return orders.Product{}, orders.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) PendingOrder(_ context.Context, userID int64) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.UserID == userID && o.Status == orders.StatusPendingPayment && o.InternalExpiredAt.After(f.clock.now()) {
			return o.Code, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeStore) InsertPendingOrder(_ context.Context, o *orders.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.ID = f.id()
	o.CreatedAt = f.clock.now()
	cp := *o
	f.orders[o.Code] = &cp
	return nil
}

func (f *fakeStore) SetOrderPaymentRef(_ context.Context, code, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[code]
	if !ok {
		return orders.ErrNotFound
	}
	o.PaymentRef = ref
	return nil
}

func (f *fakeStore) GetOrder(_ context.Context, code string) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[code]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return *o, nil
}

func (f *fakeStore) MarkOrderPaid(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.now()
	o, ok := f.orders[code]
	if !ok || o.Status != orders.StatusPendingPayment || !o.InternalExpiredAt.After(now) {
		return false, nil
	}
	o.Status, o.PaidAt = orders.StatusPaid, &now
	return true, nil
}

// claimLocked: caller memegang f.mu.
func (f *fakeStore) claimLocked(p orders.Product, code string) (*orders.StockUnit, bool) {
	switch p.Type.Pool() {
	case orders.KindInviteSlot:
		if f.invites[p.ID] == 0 {
			return nil, false
		}
		f.invites[p.ID]--
		return &orders.StockUnit{ProductID: p.ID, Kind: orders.KindInviteSlot, Code: "INVITE_SLOT_x", IsUsed: true}, true
	default:
		left := f.payloads[p.ID]
		if len(left) == 0 {
			return nil, false
		}
		f.payloads[p.ID] = left[1:]
		f.claimed[code] = append(f.claimed[code], left[0])
		return &orders.StockUnit{ProductID: p.ID, Kind: orders.KindPayload, Code: left[0], IsUsed: true}, true
	}
}

func (f *fakeStore) PayWithBalance(_ context.Context, tg int64, p orders.Product, code string) (orders.Order, *orders.StockUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[tg]
	if !ok || u.Balance < p.Price {
		return orders.Order{}, nil, orders.ErrInsufficientBalance
	}
	var unit *orders.StockUnit
	if p.Type.StockBacked() {
		un, ok := f.claimLocked(p, code)
		if !ok {
			return orders.Order{}, nil, orders.ErrOutOfStock
		}
		unit = un
	}
	u.Balance -= p.Price
	now := f.clock.now()
	o := &orders.Order{
		ID: f.id(), Code: code, UserID: u.ID, TelegramID: tg, ProductID: p.ID, ProductName: p.Name, ProductType: p.Type,
		BaseAmount: p.Price, TotalAmount: p.Price, Method: orders.MethodBalance, Status: orders.StatusPaid,
		InternalExpiredAt: now, PaidAt: &now, DeliveredAt: &now, CreatedAt: now,
	}
	f.orders[code] = o
	return *o, unit, nil
}

func (f *fakeStore) DeliverOrder(_ context.Context, code string) (orders.DeliveryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[code]
	if !ok {
		return orders.DeliveryResult{}, orders.ErrNotFound
	}
	if o.Status != orders.StatusPaid {
		return orders.DeliveryResult{}, orders.ErrNotPaid
	}
	res := orders.DeliveryResult{ProductType: o.ProductType}
	if o.DeliveredAt != nil {
		res.AlreadyDelivered = true
		res.Payloads = f.claimed[code]
		return res, nil
	}
	if o.ProductType.StockBacked() {
		p, ok := f.products[o.ProductID]
		if !ok {
			return orders.DeliveryResult{}, orders.ErrOutOfStock
		}
		p.Type = o.ProductType
		unit, ok := f.claimLocked(p, code)
		if !ok {
			return orders.DeliveryResult{}, orders.ErrOutOfStock
		}
		res.Unit = unit
	}
	now := f.clock.now()
	o.DeliveredAt = &now
	return res, nil
}

func (f *fakeStore) Counts(_ context.Context, productID int64) (orders.StockCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return orders.StockCounts{InviteLeft: f.invites[productID], PayloadLeft: len(f.payloads[productID])}, nil
}

func (f *fakeStore) DeliveredItems(_ context.Context, tg int64, limit int) ([]orders.DeliveredItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []orders.DeliveredItem
	for code, ps := range f.claimed {
		o := f.orders[code]
		if o == nil || o.TelegramID != tg || o.DeliveredAt == nil {
			continue
		}
		for _, p := range ps {
			out = append(out, orders.DeliveredItem{OrderCode: code, ProductName: o.ProductName, Payload: p, PaidAt: o.PaidAt})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) PendingTopup(_ context.Context, userID int64) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.topups {
		if t.UserID == userID && t.Status == orders.StatusPendingPayment && t.InternalExpiredAt.After(f.clock.now()) {
			return t.Code, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeStore) InsertPendingTopup(_ context.Context, t *orders.Topup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = f.id()
	t.CreatedAt = f.clock.now()
	cp := *t
	f.topups[t.Code] = &cp
	return nil
}

func (f *fakeStore) SetTopupPaymentRef(_ context.Context, code, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.topups[code]
	if !ok {
		return orders.ErrNotFound
	}
	t.PaymentRef = ref
	return nil
}

func (f *fakeStore) GetTopup(_ context.Context, code string) (orders.Topup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.topups[code]
	if !ok {
		return orders.Topup{}, orders.ErrNotFound
	}
	return *t, nil
}

func (f *fakeStore) MarkTopupPaid(_ context.Context, code string) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.now()
	t, ok := f.topups[code]
	if !ok || t.Status != orders.StatusPendingPayment || !t.InternalExpiredAt.After(now) {
		return false, 0, nil
	}
	t.Status, t.PaidAt = orders.StatusPaid, &now
	for _, u := range f.users {
		if u.ID == t.UserID {
			u.Balance += t.BaseAmount
			return true, u.Balance, nil
		}
	}
	return false, 0, fmt.Errorf("user %d missing", t.UserID)
}

func (f *fakeStore) ExpireOrder(_ context.Context, code string) (orders.Expired, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[code]
	if !ok || o.Status != orders.StatusPendingPayment {
		return orders.Expired{}, false, nil
	}
	o.Status = orders.StatusExpired
	return orders.Expired{Kind: orders.KindOrder, Code: code, TelegramID: o.TelegramID}, true, nil
}

func (f *fakeStore) ExpireTopup(_ context.Context, code string) (orders.Expired, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.topups[code]
	if !ok || t.Status != orders.StatusPendingPayment {
		return orders.Expired{}, false, nil
	}
	t.Status = orders.StatusExpired
	return orders.Expired{Kind: orders.KindTopup, Code: code, TelegramID: t.TelegramID}, true, nil
}

type createCall struct {
	code  string
	total int64
}

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	detailErr error
	paid      map[string]bool
	created   []createCall
	details   int
	// onDetail dipanggil di setiap Detail, mis. untuk memajukan jam di tengah konfirmasi.
	onDetail func()
}

func newFakeGateway() *fakeGateway { return &fakeGateway{paid: map[string]bool{}} }

func (g *fakeGateway) setPaid(code string) {
	g.mu.Lock()
	g.paid[code] = true
	g.mu.Unlock()
}

func (g *fakeGateway) CreateQRIS(_ context.Context, code string, total int64) (gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, createCall{code, total})
	if g.createErr != nil {
		return gateway.Intent{}, g.createErr
	}
	return gateway.Intent{PaymentNumber: "QR-" + code}, nil
}

func (g *fakeGateway) Detail(_ context.Context, code string, _ int64) (gateway.Detail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.details++
	if g.onDetail != nil {
		g.onDetail()
	}
	if g.detailErr != nil {
		return gateway.Detail{}, g.detailErr
	}
	return gateway.Detail{Paid: g.paid[code], Recognized: true}, nil
}

func (g *fakeGateway) detailCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.details
}

type emitted struct {
	topic, eventType, code string
	payload                any
}

type fakeEvents struct {
	mu  sync.Mutex
	all []emitted
}

func (e *fakeEvents) Emit(_ context.Context, topic, eventType, code string, payload any) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, emitted{topic, eventType, code, payload})
	return fmt.Sprintf("evt-%d", len(e.all)), nil
}

func (e *fakeEvents) byType(eventType string) []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emitted
	for _, x := range e.all {
		if x.eventType == eventType {
			out = append(out, x)
		}
	}
	return out
}

type fakeTimers struct {
	mu       sync.Mutex
	armed    map[string]time.Time
	canceled []string
}

func newFakeTimers() *fakeTimers { return &fakeTimers{armed: map[string]time.Time{}} }

func (t *fakeTimers) Arm(code string, deadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed[code] = deadline
}

func (t *fakeTimers) Cancel(code string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.armed[code]
	delete(t.armed, code)
	t.canceled = append(t.canceled, code)
	return ok
}

func (t *fakeTimers) isArmed(code string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.armed[code]
	return ok
}
