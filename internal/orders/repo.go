package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// TotalInUse: cek total di order & topup PENDING yang belum lewat deadline.
func (r *Repo) TotalInUse(ctx context.Context, total int64) (bool, error) {
	var one int
	err := r.DB.QueryRow(ctx, `
		SELECT 1 FROM orders
			WHERE status='PENDING_PAYMENT' AND internal_expired_at > now() AND total_amount=$1
		UNION ALL
		SELECT 1 FROM topups
			WHERE status='PENDING_PAYMENT' AND internal_expired_at > now() AND total_amount=$1
		LIMIT 1`, total).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ---- users ----

func (r *Repo) GetOrCreateUser(ctx context.Context, telegramID int64) (User, error) {
	var u User
	err := r.DB.QueryRow(ctx, `
		INSERT INTO users (telegram_id) VALUES ($1)
		ON CONFLICT (telegram_id) DO UPDATE SET telegram_id=excluded.telegram_id
		RETURNING id, telegram_id, balance, created_at`, telegramID).
		Scan(&u.ID, &u.TelegramID, &u.Balance, &u.CreatedAt)
	return u, err
}

// CreditBalance: increment atomik (bukan read-modify-write). Mengembalikan saldo baru.
func (r *Repo) CreditBalance(ctx context.Context, telegramID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidInput
	}
	var bal int64
	err := r.DB.QueryRow(ctx, `
		UPDATE users SET balance = balance + $1 WHERE telegram_id=$2 RETURNING balance`,
		amount, telegramID).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return bal, err
}

// ---- products ----

const productCols = `id, name, category, price, type, is_active, created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var typ string
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &typ, &p.IsActive, &p.CreatedAt); err != nil {
		return Product{}, err
	}
	p.Type = ProductType(typ)
	return p, nil
}

func (r *Repo) listProducts(ctx context.Context, where string) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products `+where+` ORDER BY category, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListActiveProducts: katalog; produk nonaktif disembunyikan.
func (r *Repo) ListActiveProducts(ctx context.Context) ([]Product, error) {
	return r.listProducts(ctx, `WHERE is_active=true`)
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	return r.listProducts(ctx, ``)
}

func (r *Repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// CreateProduct: tipe default AUTO, aktif.
func (r *Repo) CreateProduct(ctx context.Context, category, title string, price int64) (Product, error) {
	category, title = strings.TrimSpace(category), strings.TrimSpace(title)
	if category == "" || title == "" || price <= 0 {
		return Product{}, ErrInvalidInput
	}
	return scanProduct(r.DB.QueryRow(ctx, `
		INSERT INTO products (name, category, price, type, is_active) VALUES ($1, $2, $3, 'AUTO', true)
		RETURNING `+productCols, ComposeName(category, title), category, price))
}

func (r *Repo) SetProductType(ctx context.Context, id int64, t ProductType) error {
	if t != TypeAuto && t != TypeLicense && t != TypeInvite {
		return ErrInvalidInput
	}
	return r.execOne(ctx, `UPDATE products SET type=$1 WHERE id=$2`, string(t), id)
}

func (r *Repo) SetProductPrice(ctx context.Context, id, price int64) error {
	if price <= 0 {
		return ErrInvalidInput
	}
	return r.execOne(ctx, `UPDATE products SET price=$1 WHERE id=$2`, price, id)
}

// ToggleProductActive membalik flag aktif; order yang sudah ada tetap valid.
func (r *Repo) ToggleProductActive(ctx context.Context, id int64) (bool, error) {
	var active bool
	err := r.DB.QueryRow(ctx, `UPDATE products SET is_active = NOT is_active WHERE id=$1 RETURNING is_active`, id).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	return active, err
}

// DeleteProduct menghapus produk beserta stok unused-nya. Unit yang sudah terpakai tetap disimpan
// (product_id jadi NULL) sebagai bukti delivery; order lama memakai salinan nama & tipe.
func (r *Repo) DeleteProduct(ctx context.Context, id int64) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM license_stock WHERE product_id=$1 AND is_used=false`, id); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *Repo) execOne(ctx context.Context, sql string, args ...any) error {
	ct, err := r.DB.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- admin ----

func (r *Repo) Revenue(ctx context.Context) (Revenue, error) {
	var rev Revenue
	err := r.DB.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM orders WHERE status='PAID'),
			(SELECT coalesce(sum(total_amount), 0)::bigint FROM orders WHERE status='PAID'),
			(SELECT count(*) FROM topups WHERE status='PAID'),
			(SELECT coalesce(sum(base_amount), 0)::bigint FROM topups WHERE status='PAID')`).
		Scan(&rev.PaidOrders, &rev.OrdersTotal, &rev.PaidTopups, &rev.TopupsTotal)
	return rev, err
}
