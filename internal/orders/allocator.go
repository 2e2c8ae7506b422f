package orders

import (
	"context"
	"fmt"
	"math/rand/v2"
)

const (
	MinSurcharge        = 1
	MaxSurcharge        = 99
	DefaultAllocAttempt = 180
)

// TotalChecker melaporkan apakah total sudah dipakai order/topup PENDING lain yang belum lewat deadline.
// Dicek ke store (bukan memori proses) supaya aman lintas proses.
type TotalChecker interface {
	TotalInUse(ctx context.Context, total int64) (bool, error)
}

// Allocator memilih kode unik 1..99 agar nominal masuk di gateway bisa dipetakan ke satu transaksi.
type Allocator struct {
	Checker     TotalChecker
	MaxAttempts int
	// Draw mengembalikan angka di [MinSurcharge, MaxSurcharge]; nil -> math/rand.
	Draw func() int64
}

type Allocation struct {
	Surcharge int64
	Total     int64
	// Collided true jika retry habis dan total dikembalikan walau bentrok (best-effort).
	Collided bool
}

func NewAllocator(c TotalChecker) *Allocator {
	return &Allocator{Checker: c, MaxAttempts: DefaultAllocAttempt}
}

func (a *Allocator) Allocate(ctx context.Context, base int64) (Allocation, error) {
	if base <= 0 {
		return Allocation{}, fmt.Errorf("allocate: base amount must be > 0, got %d", base)
	}
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultAllocAttempt
	}
	for i := 0; i < attempts; i++ {
		s := a.draw()
		used, err := a.Checker.TotalInUse(ctx, base+s)
		if err != nil {
			return Allocation{}, fmt.Errorf("allocate: check total: %w", err)
		}
		if !used {
			return Allocation{Surcharge: s, Total: base + s}, nil
		}
	}
	s := a.draw()
	return Allocation{Surcharge: s, Total: base + s, Collided: true}, nil
}

func (a *Allocator) draw() int64 {
	if a.Draw != nil {
		return a.Draw()
	}
	return MinSurcharge + rand.Int64N(MaxSurcharge-MinSurcharge+1)
}
