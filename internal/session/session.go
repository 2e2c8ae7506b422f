// Package session menyimpan state UX per user: lock transaksi aktif, cooldown cek status,
// dan referensi pesan UI sementara per kode. Bukan state yang menentukan kebenaran pembayaran.
package session

import (
	"context"
	"time"
)

type Store interface {
	// AcquireLock memasang lock transaksi aktif user dengan nilai code. false jika lock dipegang code lain.
	AcquireLock(ctx context.Context, telegramID int64, code string, ttl time.Duration) (bool, error)
	// LockHolder mengembalikan code pemegang lock ("" jika bebas).
	LockHolder(ctx context.Context, telegramID int64) (string, error)
	// ReleaseLock hanya menghapus lock jika masih dipegang code.
	ReleaseLock(ctx context.Context, telegramID int64, code string) error
	// AllowCheck true jika cek manual untuk code boleh jalan (di luar cooldown), sekaligus memasang cooldown.
	AllowCheck(ctx context.Context, code string, cooldown time.Duration) (bool, error)
	RememberMessage(ctx context.Context, code, ref string, ttl time.Duration) error
	// TakeMessages mengambil lalu menghapus semua referensi pesan milik code.
	TakeMessages(ctx context.Context, code string) ([]string, error)
}
