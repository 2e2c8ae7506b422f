package orders

import "time"

type ProductType string

const (
	TypeAuto    ProductType = "AUTO"
	TypeLicense ProductType = "LICENSE"
	TypeInvite  ProductType = "INVITE"
)

// StockBacked: tipe yang wajib mengonsumsi satu unit stok saat delivery.
func (t ProductType) StockBacked() bool {
	return t == TypeAuto || t == TypeLicense || t == TypeInvite
}

// Pool menentukan pool stok yang dipakai tipe produk ini.
func (t ProductType) Pool() StockKind {
	if t == TypeInvite {
		return KindInviteSlot
	}
	return KindPayload
}

type StockKind string

const (
	KindInviteSlot StockKind = "INVITE_SLOT"
	KindPayload    StockKind = "PAYLOAD"
)

type PayMethod string

const (
	MethodQRIS    PayMethod = "QRIS"
	MethodBalance PayMethod = "BALANCE"
)

type User struct {
	ID         int64
	TelegramID int64
	Balance    int64
	CreatedAt  time.Time
}

type Product struct {
	ID        int64
	Name      string // "kategori | judul"
	Category  string
	Price     int64
	Type      ProductType
	IsActive  bool
	CreatedAt time.Time
}

func (p Product) Title() string { return TitleFromName(p.Name) }

type StockUnit struct {
	ID          int64
	ProductID   int64
	Kind        StockKind
	Code        string // payload rahasia atau marker INVITE_SLOT_*
	IsUsed      bool
	UsedByOrder *string
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// StockCounts: sisa unit per pool untuk satu produk.
type StockCounts struct {
	InviteLeft  int
	PayloadLeft int
}

// Left mengembalikan sisa unit pada pool yang dipakai tipe produk.
func (c StockCounts) Left(t ProductType) int {
	if t.Pool() == KindInviteSlot {
		return c.InviteLeft
	}
	return c.PayloadLeft
}

type Order struct {
	ID                int64
	Code              string
	UserID            int64
	TelegramID        int64
	ProductID         int64
	ProductName       string
	ProductType       ProductType
	BaseAmount        int64
	UniqueSurcharge   int64
	TotalAmount       int64
	Method            PayMethod
	Status            Status
	PaymentRef        string
	InternalExpiredAt time.Time
	PaidAt            *time.Time
	DeliveredAt       *time.Time
	CreatedAt         time.Time
}

func (o Order) Delivered() bool { return o.DeliveredAt != nil }

// Deadline lewat & masih PENDING -> harus di-expire (lazy path).
func (o Order) Overdue(now time.Time) bool {
	return o.Status == StatusPendingPayment && !now.Before(o.InternalExpiredAt)
}

// Topup: seperti Order tanpa produk; saat PAID base_amount dikreditkan sekali.
type Topup struct {
	ID                int64
	Code              string
	UserID            int64
	TelegramID        int64
	BaseAmount        int64
	UniqueSurcharge   int64
	TotalAmount       int64
	Status            Status
	PaymentRef        string
	InternalExpiredAt time.Time
	PaidAt            *time.Time
	CreatedAt         time.Time
}

func (t Topup) Overdue(now time.Time) bool {
	return t.Status == StatusPendingPayment && !now.Before(t.InternalExpiredAt)
}

// Expired: hasil transisi PENDING -> EXPIRED yang dimenangkan caller.
type Expired struct {
	Kind       Kind
	Code       string
	TelegramID int64
}

// DeliveredItem untuk daftar "produk saya".
type DeliveredItem struct {
	OrderCode   string
	ProductName string
	Payload     string
	PaidAt      *time.Time
}

type Revenue struct {
	PaidOrders  int64
	OrdersTotal int64
	PaidTopups  int64
	TopupsTotal int64
}

// Deadline: kode transaksi PENDING dan batas waktunya.
type Deadline struct {
	Code string
	At   time.Time
}
