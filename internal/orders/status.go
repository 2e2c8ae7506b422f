package orders

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusExpired        Status = "EXPIRED"
)

// Delivered bukan status: dicatat lewat delivered_at supaya delivery bisa di-retry tanpa charge ulang.
var validNext = map[Status]map[Status]bool{
	StatusPendingPayment: {StatusPaid: true, StatusExpired: true},
	StatusPaid:           {},
	StatusExpired:        {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusExpired
}

// Kind membedakan order produk dan topup saldo (tabel berbeda, status sama).
type Kind string

const (
	KindOrder Kind = "order"
	KindTopup Kind = "topup"
)
