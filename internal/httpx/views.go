package httpx

import (
	"time"

	"github.com/ariefcatur/go-qris-store.git/internal/delivery"
	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

type productResp struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Price    int64  `json:"price"`
	Type     string `json:"type"`
	Active   bool   `json:"active"`
	Stock    int    `json:"stock"`
}

func toProduct(p orders.Product, c orders.StockCounts) productResp {
	return productResp{
		ID:       p.ID,
		Name:     p.Name,
		Category: orders.CategoryFromName(p.Name),
		Title:    p.Title(),
		Price:    p.Price,
		Type:     string(p.Type),
		Active:   p.IsActive,
		Stock:    c.Left(p.Type),
	}
}

type orderResp struct {
	Code        string            `json:"code"`
	ProductID   int64             `json:"product_id"`
	ProductName string            `json:"product_name,omitempty"`
	ProductType string            `json:"product_type,omitempty"`
	BaseAmount  int64             `json:"base_amount"`
	Surcharge   int64             `json:"unique_code"`
	Total       int64             `json:"total_amount"`
	Method      string            `json:"method"`
	Status      string            `json:"status"`
	PaymentRef  string            `json:"payment_ref,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at"`
	PaidAt      *time.Time        `json:"paid_at,omitempty"`
	DeliveredAt *time.Time        `json:"delivered_at,omitempty"`
	Delivery    *delivery.Outcome `json:"delivery,omitempty"`
}

func toOrder(o orders.Order, out *delivery.Outcome) orderResp {
	return orderResp{
		Code:        o.Code,
		ProductID:   o.ProductID,
		ProductName: o.ProductName,
		ProductType: string(o.ProductType),
		BaseAmount:  o.BaseAmount,
		Surcharge:   o.UniqueSurcharge,
		Total:       o.TotalAmount,
		Method:      string(o.Method),
		Status:      string(o.Status),
		PaymentRef:  o.PaymentRef,
		ExpiresAt:   o.InternalExpiredAt,
		PaidAt:      o.PaidAt,
		DeliveredAt: o.DeliveredAt,
		Delivery:    out,
	}
}

type topupResp struct {
	Code       string     `json:"code"`
	BaseAmount int64      `json:"base_amount"`
	Surcharge  int64      `json:"unique_code"`
	Total      int64      `json:"total_amount"`
	Status     string     `json:"status"`
	PaymentRef string     `json:"payment_ref,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	Balance    *int64     `json:"balance,omitempty"`
}

func toTopup(t orders.Topup, balance *int64) topupResp {
	return topupResp{
		Code:       t.Code,
		BaseAmount: t.BaseAmount,
		Surcharge:  t.UniqueSurcharge,
		Total:      t.TotalAmount,
		Status:     string(t.Status),
		PaymentRef: t.PaymentRef,
		ExpiresAt:  t.InternalExpiredAt,
		PaidAt:     t.PaidAt,
		Balance:    balance,
	}
}

type itemResp struct {
	OrderCode   string     `json:"order_code"`
	ProductName string     `json:"product_name"`
	Payload     string     `json:"payload"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

type stockUnitResp struct {
	ID        int64      `json:"id"`
	ProductID int64      `json:"product_id"`
	Kind      string     `json:"kind"`
	Code      string     `json:"code"`
	Used      bool       `json:"used"`
	UsedBy    *string    `json:"used_by_order,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
