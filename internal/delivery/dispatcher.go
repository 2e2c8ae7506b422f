// Package delivery memetakan order PAID ke aksi fulfillment sesuai tipe produk.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/metrics"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

type OutcomeKind string

const (
	// INVITE: slot sudah diklaim & order ditandai terkirim; user lanjut kontak admin.
	OutcomeInviteReserved OutcomeKind = "INVITE_RESERVED"
	// AUTO/LICENSE: stok tersedia, payload diambil saat user menekan retrieve.
	OutcomeReadyToRetrieve OutcomeKind = "READY_TO_RETRIEVE"
	// Payload sudah diungkap ke user.
	OutcomeDelivered OutcomeKind = "DELIVERED"
	// Tipe tanpa stok: cukup ditandai terkirim.
	OutcomeAcknowledged OutcomeKind = "ACKNOWLEDGED"
	// Order tetap PAID belum terkirim, perlu admin.
	OutcomeStockExhausted OutcomeKind = "STOCK_EXHAUSTED"
)

type Outcome struct {
	Kind         OutcomeKind        `json:"kind"`
	Code         string             `json:"code"`
	ProductType  orders.ProductType `json:"product_type,omitempty"`
	Payloads     []string           `json:"payloads,omitempty"`
	AdminContact string             `json:"admin_contact,omitempty"`
}

var ErrNotRetrievable = errors.New("order has no retrievable payload")

// Store: transaksi klaim + delivered_at (orders.Repo).
type Store interface {
	DeliverOrder(ctx context.Context, code string) (orders.DeliveryResult, error)
}

type StockCounter interface {
	Counts(ctx context.Context, productID int64) (orders.StockCounts, error)
}

type Dispatcher struct {
	store        Store
	stock        StockCounter
	adminContact string
	metrics      *metrics.Store
	log          *zap.Logger
}

func NewDispatcher(store Store, stock StockCounter, adminContact string, m *metrics.Store, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{store: store, stock: stock, adminContact: adminContact, metrics: m, log: log.Named("delivery")}
}

// Deliver dipanggil tepat setelah order menang transisi ke PAID (atau saat user mengulang).
func (d *Dispatcher) Deliver(ctx context.Context, o orders.Order) (Outcome, error) {
	if o.Status != orders.StatusPaid {
		return Outcome{}, orders.ErrNotPaid
	}
	switch o.ProductType {
	case orders.TypeInvite:
		res, err := d.store.DeliverOrder(ctx, o.Code)
		if errors.Is(err, orders.ErrOutOfStock) {
			return d.exhausted(o), nil
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("deliver invite %s: %w", o.Code, err)
		}
		if !res.AlreadyDelivered {
			d.metrics.StockClaim(string(orders.KindInviteSlot), true)
		}
		return Outcome{Kind: OutcomeInviteReserved, Code: o.Code, ProductType: o.ProductType, AdminContact: d.adminContact}, nil

	case orders.TypeAuto, orders.TypeLicense:
		if o.Delivered() {
			return d.Retrieve(ctx, o)
		}
		c, err := d.stock.Counts(ctx, o.ProductID)
		if err != nil {
			return Outcome{}, fmt.Errorf("count stock %d: %w", o.ProductID, err)
		}
		if c.PayloadLeft == 0 {
			return d.exhausted(o), nil
		}
		return Outcome{Kind: OutcomeReadyToRetrieve, Code: o.Code, ProductType: o.ProductType}, nil

	case "":
		// tipe tidak diketahui: jangan tandai terkirim tanpa stok, serahkan ke admin
		return d.exhausted(o), nil

	default:
		if _, err := d.store.DeliverOrder(ctx, o.Code); err != nil {
			return Outcome{}, fmt.Errorf("deliver %s: %w", o.Code, err)
		}
		return Outcome{Kind: OutcomeAcknowledged, Code: o.Code, ProductType: o.ProductType}, nil
	}
}

// Retrieve: klaim + ungkap + tandai terkirim dalam satu transaksi. Ulangan mengembalikan payload yang sama.
func (d *Dispatcher) Retrieve(ctx context.Context, o orders.Order) (Outcome, error) {
	if o.ProductType != orders.TypeAuto && o.ProductType != orders.TypeLicense {
		return Outcome{}, ErrNotRetrievable
	}
	res, err := d.store.DeliverOrder(ctx, o.Code)
	if errors.Is(err, orders.ErrOutOfStock) {
		d.metrics.StockClaim(string(orders.KindPayload), false)
		return d.exhausted(o), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("retrieve %s: %w", o.Code, err)
	}

	out := Outcome{Kind: OutcomeDelivered, Code: o.Code, ProductType: o.ProductType}
	switch {
	case res.Unit != nil:
		d.metrics.StockClaim(string(orders.KindPayload), true)
		out.Payloads = []string{res.Unit.Code}
	case len(res.Payloads) > 0:
		out.Payloads = res.Payloads
	default:
		// terkirim tanpa payload (mis. produk dihapus); minta admin
		out.AdminContact = d.adminContact
	}
	return out, nil
}

func (d *Dispatcher) exhausted(o orders.Order) Outcome {
	d.log.Warn("paid order left undelivered: stock exhausted",
		zap.String("code", o.Code), zap.Int64("product_id", o.ProductID), zap.String("type", string(o.ProductType)))
	return Outcome{Kind: OutcomeStockExhausted, Code: o.Code, ProductType: o.ProductType, AdminContact: d.adminContact}
}
