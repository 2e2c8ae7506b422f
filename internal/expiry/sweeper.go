package expiry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

const (
	SourceTimer = "timer"
	SourceSweep = "sweep"
	SourceLazy  = "lazy"

	defaultInterval  = 30 * time.Second
	defaultBatch     = 100
	maxBatchesPerRun = 50
)

// SweepStore meng-expire batch PENDING yang lewat deadline dan mengembalikan yang dimenangkan.
type SweepStore interface {
	ExpireOverdue(ctx context.Context, kind orders.Kind, limit int) ([]orders.Expired, error)
}

// Finisher menjalankan efek samping setelah baris sudah EXPIRED (lepas lock, event, metrik).
type Finisher interface {
	AfterExpire(ctx context.Context, e orders.Expired, source string)
}

type Sweeper struct {
	store    SweepStore
	finisher Finisher
	interval time.Duration
	batch    int
	log      *zap.Logger
}

func NewSweeper(store SweepStore, finisher Finisher, interval time.Duration, batch int, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	if batch <= 0 {
		batch = defaultBatch
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{store: store, finisher: finisher, interval: interval, batch: batch, log: log.Named("expiry.sweeper")}
}

func (w *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		n, err := w.RunOnce(ctx)
		if err != nil {
			w.log.Warn("expiry sweep failed", zap.Error(err))
		} else if n > 0 {
			w.log.Info("expiry sweep", zap.Int("expired", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce meng-expire semua order & topup yang lewat deadline, per batch sampai habis.
func (w *Sweeper) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range []orders.Kind{orders.KindOrder, orders.KindTopup} {
		for i := 0; i < maxBatchesPerRun; i++ {
			rows, err := w.store.ExpireOverdue(ctx, kind, w.batch)
			if err != nil {
				return total, err
			}
			for _, e := range rows {
				w.finisher.AfterExpire(ctx, e, SourceSweep)
			}
			total += len(rows)
			if len(rows) < w.batch {
				break
			}
		}
	}
	return total, nil
}
