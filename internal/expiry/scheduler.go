// Package expiry mengatur kapan transaksi PENDING di-expire: timer per kode di proses api
// dan sweep periodik yang menutup timer yang hilang karena restart.
package expiry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const callbackTimeout = 10 * time.Second

// Target dipanggil saat timer jatuh tempo. Keduanya harus idempotent (update bersyarat).
type Target interface {
	Warn(ctx context.Context, code string, deadline time.Time) error
	Expire(ctx context.Context, code, source string) error
}

type handle struct {
	id           uint64
	warn, expire *time.Timer
}

// Scheduler memegang dua timer per kode: peringatan (deadline - warnBefore) dan expire (deadline).
type Scheduler struct {
	target     Target
	warnBefore time.Duration
	log        *zap.Logger
	now        func() time.Time

	mu     sync.Mutex
	nextID uint64
	timers map[string]handle
}

func NewScheduler(target Target, warnBefore time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		target:     target,
		warnBefore: warnBefore,
		log:        log.Named("expiry.scheduler"),
		now:        time.Now,
		timers:     make(map[string]handle),
	}
}

// Arm memasang timer untuk code. Arm ulang untuk kode yang sama mengganti timer lama.
func (s *Scheduler) Arm(code string, deadline time.Time) {
	untilDeadline := deadline.Sub(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(code)

	s.nextID++
	h := handle{id: s.nextID}
	id := h.id
	if warnIn := untilDeadline - s.warnBefore; s.warnBefore > 0 && warnIn > 0 {
		h.warn = time.AfterFunc(warnIn, func() { s.fireWarn(code, deadline) })
	}
	h.expire = time.AfterFunc(max(untilDeadline, 0), func() { s.fireExpire(code, id) })
	s.timers[code] = h
}

// Cancel menghentikan timer kode (status terminal tercapai lewat jalur lain).
func (s *Scheduler) Cancel(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(code)
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop membatalkan semua timer (shutdown). Sweep di worker yang akan menutup sisanya.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code := range s.timers {
		s.stopLocked(code)
	}
}

func (s *Scheduler) stopLocked(code string) bool {
	h, ok := s.timers[code]
	if !ok {
		return false
	}
	if h.warn != nil {
		h.warn.Stop()
	}
	h.expire.Stop()
	delete(s.timers, code)
	return true
}

func (s *Scheduler) fireWarn(code string, deadline time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()
	if err := s.target.Warn(ctx, code, deadline); err != nil {
		s.log.Warn("expiry warning failed", zap.String("code", code), zap.Error(err))
	}
}

func (s *Scheduler) fireExpire(code string, id uint64) {
	s.mu.Lock()
	// timer lama yang sudah terlanjur jalan tidak boleh menghapus handle hasil Arm ulang
	if h, ok := s.timers[code]; ok && h.id == id {
		delete(s.timers, code)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()
	if err := s.target.Expire(ctx, code, SourceTimer); err != nil {
		// sweep akan mencoba lagi
		s.log.Warn("timer expiry failed", zap.String("code", code), zap.Error(err))
	}
}
