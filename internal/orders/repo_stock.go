package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StockRepo adalah ledger stok: pool invite slot & payload per produk.
type StockRepo struct{ DB *pgxpool.Pool }

// ClaimOne mengambil satu unit unused (FOR UPDATE SKIP LOCKED, urut insert) lalu menandai used oleh orderCode.
// ok=false tanpa efek samping jika pool kosong.
func (r *StockRepo) ClaimOne(ctx context.Context, productID int64, kind StockKind, orderCode string) (unit StockUnit, ok bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return StockUnit{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	unit, ok, err = claimOneTx(ctx, tx, productID, kind, orderCode)
	if err != nil || !ok {
		return StockUnit{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return StockUnit{}, false, err
	}
	return unit, true, nil
}

// claimOneTx dipakai juga oleh transaksi delivery supaya klaim stok & delivered_at commit bersama.
func claimOneTx(ctx context.Context, tx pgx.Tx, productID int64, kind StockKind, orderCode string) (StockUnit, bool, error) {
	u := StockUnit{ProductID: productID, Kind: kind}
	err := tx.QueryRow(ctx, `
		SELECT id, code, created_at FROM license_stock
		WHERE product_id=$1 AND kind=$2 AND is_used=false
		ORDER BY id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, productID, string(kind)).Scan(&u.ID, &u.Code, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockUnit{}, false, nil
	}
	if err != nil {
		return StockUnit{}, false, err
	}

	var usedAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE license_stock SET is_used=true, used_at=now(), used_by_order_id=$2
		WHERE id=$1 AND is_used=false
		RETURNING used_at`, u.ID, orderCode).Scan(&usedAt)
	if err != nil {
		return StockUnit{}, false, err
	}
	u.IsUsed = true
	u.UsedAt = &usedAt
	code := orderCode
	u.UsedByOrder = &code
	return u, true, nil
}

// AddInviteSlots menambah n slot sintetis (1..MaxStockBatch) dalam satu insert.
func (r *StockRepo) AddInviteSlots(ctx context.Context, productID int64, n int) (int, error) {
	if n <= 0 || n > MaxStockBatch {
		return 0, fmt.Errorf("%w: invite slot count must be 1-%d", ErrInvalidInput, MaxStockBatch)
	}
	if err := r.ensureProduct(ctx, productID); err != nil {
		return 0, err
	}

	now := time.Now()
	var sb strings.Builder
	args := make([]any, 0, n*2)
	sb.WriteString(`INSERT INTO license_stock (product_id, kind, code) VALUES `)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "($%d, 'INVITE_SLOT', $%d)", i*2+1, i*2+2)
		args = append(args, productID, NewInviteSlotCode(now, i))
	}
	ct, err := r.DB.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

// AddPayload menyimpan satu payload apa adanya (boleh multi-baris).
func (r *StockRepo) AddPayload(ctx context.Context, productID int64, payload string) (int64, error) {
	if strings.TrimSpace(payload) == "" {
		return 0, fmt.Errorf("%w: payload is empty", ErrInvalidInput)
	}
	if err := r.ensureProduct(ctx, productID); err != nil {
		return 0, err
	}
	var id int64
	err := r.DB.QueryRow(ctx, `
		INSERT INTO license_stock (product_id, kind, code) VALUES ($1, 'PAYLOAD', $2)
		RETURNING id`, productID, payload).Scan(&id)
	return id, err
}

// DeleteInviteSlots menghapus sampai n slot unused tertua. Mengembalikan jumlah terhapus.
func (r *StockRepo) DeleteInviteSlots(ctx context.Context, productID int64, n int) (int, error) {
	if n <= 0 || n > MaxStockBatch {
		return 0, fmt.Errorf("%w: invite slot count must be 1-%d", ErrInvalidInput, MaxStockBatch)
	}
	ct, err := r.DB.Exec(ctx, `
		DELETE FROM license_stock WHERE id IN (
			SELECT id FROM license_stock
			WHERE product_id=$1 AND kind='INVITE_SLOT' AND is_used=false
			ORDER BY id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)`, productID, n)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

// DeleteOnePayload menghapus payload unused tertua; ErrNotFound jika kosong.
func (r *StockRepo) DeleteOnePayload(ctx context.Context, productID int64) (int64, error) {
	var id int64
	err := r.DB.QueryRow(ctx, `
		DELETE FROM license_stock WHERE id = (
			SELECT id FROM license_stock
			WHERE product_id=$1 AND kind='PAYLOAD' AND is_used=false
			ORDER BY id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id`, productID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

func (r *StockRepo) Counts(ctx context.Context, productID int64) (StockCounts, error) {
	var c StockCounts
	err := r.DB.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE kind='INVITE_SLOT')::int,
			count(*) FILTER (WHERE kind='PAYLOAD')::int
		FROM license_stock
		WHERE product_id=$1 AND is_used=false`, productID).Scan(&c.InviteLeft, &c.PayloadLeft)
	return c, err
}

// Recent mengembalikan limit unit terbaru (dipakai layar admin).
func (r *StockRepo) Recent(ctx context.Context, limit int) ([]StockUnit, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, coalesce(product_id, 0), kind, code, is_used, used_by_order_id, used_at, created_at
		FROM license_stock ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockUnit
	for rows.Next() {
		var u StockUnit
		var kind string
		if err := rows.Scan(&u.ID, &u.ProductID, &kind, &u.Code, &u.IsUsed, &u.UsedByOrder, &u.UsedAt, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Kind = StockKind(kind)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *StockRepo) ensureProduct(ctx context.Context, productID int64) error {
	var one int
	err := r.DB.QueryRow(ctx, `SELECT 1 FROM products WHERE id=$1`, productID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
