package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

func (r *Repo) PendingTopup(ctx context.Context, userID int64) (code string, found bool, err error) {
	err = r.DB.QueryRow(ctx, `
		SELECT topup_code FROM topups
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

func (r *Repo) InsertPendingTopup(ctx context.Context, t *Topup) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO topups (topup_code, user_id, base_amount, unique_code, total_amount, status, internal_expired_at)
		VALUES ($1, $2, $3, $4, $5, 'PENDING_PAYMENT', $6)
		RETURNING id, created_at`,
		t.Code, t.UserID, t.BaseAmount, t.UniqueSurcharge, t.TotalAmount, t.InternalExpiredAt,
	).Scan(&t.ID, &t.CreatedAt)
}

func (r *Repo) SetTopupPaymentRef(ctx context.Context, code, ref string) error {
	return r.execOne(ctx, `UPDATE topups SET payment_ref=$2 WHERE topup_code=$1`, code, ref)
}

func (r *Repo) GetTopup(ctx context.Context, code string) (Topup, error) {
	var (
		t      Topup
		ref    *string
		status string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT t.id, t.topup_code, t.user_id, u.telegram_id, t.base_amount, t.unique_code, t.total_amount,
			t.status, t.payment_ref, t.internal_expired_at, t.paid_at, t.created_at
		FROM topups t JOIN users u ON u.id = t.user_id
		WHERE t.topup_code=$1`, code).
		Scan(&t.ID, &t.Code, &t.UserID, &t.TelegramID, &t.BaseAmount, &t.UniqueSurcharge, &t.TotalAmount,
			&status, &ref, &t.InternalExpiredAt, &t.PaidAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Topup{}, ErrNotFound
	}
	if err != nil {
		return Topup{}, err
	}
	t.Status = Status(status)
	if ref != nil {
		t.PaymentRef = *ref
	}
	return t, nil
}

// MarkTopupPaid: PENDING -> PAID dan kredit base_amount dalam satu tx.
// won=false -> sudah diproses sebelumnya atau deadline lewat, saldo tidak dikredit.
func (r *Repo) MarkTopupPaid(ctx context.Context, code string) (won bool, newBalance int64, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID, amount int64
	err = tx.QueryRow(ctx, `
		UPDATE topups SET status='PAID', paid_at=now()
		WHERE topup_code=$1 AND status='PENDING_PAYMENT' AND internal_expired_at > now()
		RETURNING user_id, base_amount`, code).Scan(&userID, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}

	if err := tx.QueryRow(ctx, `
		UPDATE users SET balance = balance + $1 WHERE id=$2 RETURNING balance`, amount, userID).Scan(&newBalance); err != nil {
		return false, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, 0, err
	}
	return true, newBalance, nil
}

func (r *Repo) ExpireTopup(ctx context.Context, code string) (Expired, bool, error) {
	e := Expired{Kind: KindTopup, Code: code}
	err := r.DB.QueryRow(ctx, `
		UPDATE topups t SET status='EXPIRED'
		FROM users u
		WHERE u.id = t.user_id AND t.topup_code=$1 AND t.status='PENDING_PAYMENT'
		RETURNING u.telegram_id`, code).Scan(&e.TelegramID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Expired{}, false, nil
	}
	if err != nil {
		return Expired{}, false, err
	}
	return e, true, nil
}
