package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PendingOrder mengembalikan kode order PENDING user yang belum lewat deadline (found=false jika tidak ada).
func (r *Repo) PendingOrder(ctx context.Context, userID int64) (code string, found bool, err error) {
	err = r.DB.QueryRow(ctx, `
		SELECT order_code FROM orders
		WHERE user_id=$1 AND status='PENDING_PAYMENT' AND internal_expired_at > now()
		ORDER BY id DESC LIMIT 1`, userID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return code, true, nil
}

// InsertPendingOrder menyimpan order QRIS baru; ID & CreatedAt diisi dari DB.
// Nama & tipe produk disalin ke order supaya delivery tidak ikut berubah saat produk diedit/dihapus.
func (r *Repo) InsertPendingOrder(ctx context.Context, o *Order) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO orders (order_code, user_id, product_id, product_name, product_type, base_amount, unique_code,
			total_amount, pay_method, status, internal_expired_at)
		VALUES ($1, $2, $3, nullif($4, ''), nullif($5, ''), $6, $7, $8, 'QRIS', 'PENDING_PAYMENT', $9)
		RETURNING id, created_at`,
		o.Code, o.UserID, o.ProductID, o.ProductName, string(o.ProductType), o.BaseAmount, o.UniqueSurcharge,
		o.TotalAmount, o.InternalExpiredAt,
	).Scan(&o.ID, &o.CreatedAt)
}

func (r *Repo) SetOrderPaymentRef(ctx context.Context, code, ref string) error {
	return r.execOne(ctx, `UPDATE orders SET payment_ref=$2 WHERE order_code=$1`, code, ref)
}

const orderSelect = `
	SELECT o.id, o.order_code, o.user_id, u.telegram_id, o.product_id,
		coalesce(o.product_name, p.name), coalesce(o.product_type, p.type),
		o.base_amount, o.unique_code, o.total_amount, o.pay_method, o.status, o.payment_ref,
		o.internal_expired_at, o.paid_at, o.delivered_at, o.created_at
	FROM orders o
	JOIN users u ON u.id = o.user_id
	LEFT JOIN products p ON p.id = o.product_id`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o              Order
		productID      *int64
		name, typ, ref *string
		method, status string
	)
	err := row.Scan(&o.ID, &o.Code, &o.UserID, &o.TelegramID, &productID, &name, &typ,
		&o.BaseAmount, &o.UniqueSurcharge, &o.TotalAmount, &method, &status, &ref,
		&o.InternalExpiredAt, &o.PaidAt, &o.DeliveredAt, &o.CreatedAt)
	if err != nil {
		return Order{}, err
	}
	if productID != nil {
		o.ProductID = *productID
	}
	if name != nil {
		o.ProductName = *name
	}
	if typ != nil {
		o.ProductType = ProductType(*typ)
	}
	if ref != nil {
		o.PaymentRef = *ref
	}
	o.Method = PayMethod(method)
	o.Status = Status(status)
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, code string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, orderSelect+` WHERE o.order_code=$1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// MarkOrderPaid: transisi PENDING -> PAID dalam satu UPDATE bersyarat, hanya sebelum deadline.
// won=false berarti sudah PAID/EXPIRED atau deadline lewat (caller yang meng-expire).
func (r *Repo) MarkOrderPaid(ctx context.Context, code string) (won bool, err error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status='PAID', paid_at=now()
		WHERE order_code=$1 AND status='PENDING_PAYMENT' AND internal_expired_at > now()`, code)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// ExpireOrder: PENDING -> EXPIRED bersyarat. Dipakai timer, sweep, dan lazy path.
func (r *Repo) ExpireOrder(ctx context.Context, code string) (Expired, bool, error) {
	e := Expired{Kind: KindOrder, Code: code}
	err := r.DB.QueryRow(ctx, `
		UPDATE orders o SET status='EXPIRED'
		FROM users u
		WHERE u.id = o.user_id AND o.order_code=$1 AND o.status='PENDING_PAYMENT'
		RETURNING u.telegram_id`, code).Scan(&e.TelegramID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Expired{}, false, nil
	}
	if err != nil {
		return Expired{}, false, err
	}
	return e, true, nil
}

// ExpireOverdue meng-expire batch PENDING yang lewat deadline (orders atau topups).
// SKIP LOCKED supaya beberapa worker sweep tidak saling tunggu.
func (r *Repo) ExpireOverdue(ctx context.Context, kind Kind, limit int) ([]Expired, error) {
	table, codeCol := "orders", "order_code"
	if kind == KindTopup {
		table, codeCol = "topups", "topup_code"
	}
	sql := fmt.Sprintf(`
		UPDATE %[1]s t SET status='EXPIRED'
		FROM users u
		WHERE u.id = t.user_id AND t.status='PENDING_PAYMENT' AND t.id IN (
			SELECT id FROM %[1]s
			WHERE status='PENDING_PAYMENT' AND internal_expired_at <= now()
			ORDER BY id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		RETURNING t.%[2]s, u.telegram_id`, table, codeCol)

	rows, err := r.DB.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expired
	for rows.Next() {
		e := Expired{Kind: kind}
		if err := rows.Scan(&e.Code, &e.TelegramID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PendingDeadlines: semua order & topup PENDING beserta deadline-nya, untuk re-arm timer saat api start.
func (r *Repo) PendingDeadlines(ctx context.Context) ([]Deadline, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_code, internal_expired_at FROM orders WHERE status='PENDING_PAYMENT'
		UNION ALL
		SELECT topup_code, internal_expired_at FROM topups WHERE status='PENDING_PAYMENT'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Deadline
	for rows.Next() {
		var d Deadline
		if err := rows.Scan(&d.Code, &d.At); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PayWithBalance: debit saldo, insert order PAID, klaim stok, set delivered_at. Semua satu tx;
// stok habis / saldo kurang -> rollback total (saldo tidak terpotong).
func (r *Repo) PayWithBalance(ctx context.Context, telegramID int64, p Product, code string) (Order, *StockUnit, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o := Order{
		Code: code, TelegramID: telegramID, ProductID: p.ID, ProductName: p.Name, ProductType: p.Type,
		BaseAmount: p.Price, TotalAmount: p.Price, Method: MethodBalance, Status: StatusPaid,
	}
	err = tx.QueryRow(ctx, `
		UPDATE users SET balance = balance - $1
		WHERE telegram_id=$2 AND balance >= $1
		RETURNING id`, p.Price, telegramID).Scan(&o.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, nil, ErrInsufficientBalance
	}
	if err != nil {
		return Order{}, nil, err
	}

	var paidAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (order_code, user_id, product_id, product_name, product_type, base_amount, unique_code,
			total_amount, pay_method, status, internal_expired_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $6, 'BALANCE', 'PAID', now(), now())
		RETURNING id, internal_expired_at, paid_at, created_at`,
		code, o.UserID, p.ID, p.Name, string(p.Type), p.Price).Scan(&o.ID, &o.InternalExpiredAt, &paidAt, &o.CreatedAt)
	if err != nil {
		return Order{}, nil, err
	}
	o.PaidAt = &paidAt

	var unit *StockUnit
	if p.Type.StockBacked() {
		u, ok, err := claimOneTx(ctx, tx, p.ID, p.Type.Pool(), code)
		if err != nil {
			return Order{}, nil, err
		}
		if !ok {
			return Order{}, nil, ErrOutOfStock
		}
		unit = &u
	}

	var deliveredAt time.Time
	if err := tx.QueryRow(ctx, `UPDATE orders SET delivered_at=now() WHERE id=$1 RETURNING delivered_at`, o.ID).Scan(&deliveredAt); err != nil {
		return Order{}, nil, err
	}
	o.DeliveredAt = &deliveredAt

	if err := tx.Commit(ctx); err != nil {
		return Order{}, nil, err
	}
	return o, unit, nil
}

// DeliveryResult: hasil DeliverOrder. AlreadyDelivered=true -> tidak ada klaim baru.
type DeliveryResult struct {
	ProductType      ProductType
	Unit             *StockUnit
	AlreadyDelivered bool
	// Payloads yang sudah terkirim sebelumnya (re-retrieve).
	Payloads []string
}

// DeliverOrder mengunci baris order, klaim satu unit sesuai tipe produk saat dibeli, lalu set delivered_at.
// Klaim & delivered_at commit bersama; stok habis (atau produk sudah dihapus) -> ErrOutOfStock
// dan order tetap PAID belum terkirim.
func (r *Repo) DeliverOrder(ctx context.Context, code string) (DeliveryResult, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return DeliveryResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status      string
		productID   *int64
		typ         *string
		deliveredAt *time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT o.status, o.product_id, coalesce(o.product_type, p.type), o.delivered_at
		FROM orders o LEFT JOIN products p ON p.id = o.product_id
		WHERE o.order_code=$1
		FOR UPDATE OF o`, code).Scan(&status, &productID, &typ, &deliveredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeliveryResult{}, ErrNotFound
	}
	if err != nil {
		return DeliveryResult{}, err
	}
	if Status(status) != StatusPaid {
		return DeliveryResult{}, ErrNotPaid
	}

	var res DeliveryResult
	if typ != nil {
		res.ProductType = ProductType(*typ)
	}
	if deliveredAt != nil {
		res.AlreadyDelivered = true
		res.Payloads, err = payloadsTx(ctx, tx, code)
		if err != nil {
			return DeliveryResult{}, err
		}
		return res, tx.Commit(ctx)
	}

	if res.ProductType.StockBacked() {
		if productID == nil {
			return DeliveryResult{}, ErrOutOfStock
		}
		u, ok, err := claimOneTx(ctx, tx, *productID, res.ProductType.Pool(), code)
		if err != nil {
			return DeliveryResult{}, err
		}
		if !ok {
			return DeliveryResult{}, ErrOutOfStock
		}
		res.Unit = &u
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET delivered_at=now() WHERE order_code=$1 AND delivered_at IS NULL`, code); err != nil {
		return DeliveryResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return DeliveryResult{}, err
	}
	return res, nil
}

func payloadsTx(ctx context.Context, tx pgx.Tx, code string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT code FROM license_stock
		WHERE used_by_order_id=$1 AND kind='PAYLOAD'
		ORDER BY used_at ASC, id ASC`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeliveredItems: produk AUTO/LICENSE yang sudah terkirim ke user, terbaru dulu.
func (r *Repo) DeliveredItems(ctx context.Context, telegramID int64, limit int) ([]DeliveredItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT o.order_code, coalesce(o.product_name, p.name, ''), s.code, o.paid_at
		FROM orders o
		JOIN users u ON u.id = o.user_id
		JOIN license_stock s ON s.used_by_order_id = o.order_code AND s.kind='PAYLOAD'
		LEFT JOIN products p ON p.id = o.product_id
		WHERE u.telegram_id=$1 AND o.status='PAID' AND o.delivered_at IS NOT NULL
		ORDER BY o.delivered_at DESC, s.id DESC
		LIMIT $2`, telegramID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveredItem
	for rows.Next() {
		var it DeliveredItem
		if err := rows.Scan(&it.OrderCode, &it.ProductName, &it.Payload, &it.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
