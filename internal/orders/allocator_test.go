package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeTotals struct {
	mu    sync.Mutex
	used  map[int64]bool
	calls int
	err   error
}

func (f *fakeTotals) TotalInUse(_ context.Context, total int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.used[total], f.err
}

func TestAllocateRange(t *testing.T) {
	a := NewAllocator(&fakeTotals{used: map[int64]bool{}})
	for i := 0; i < 500; i++ {
		got, err := a.Allocate(context.Background(), 10000)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got.Surcharge, int64(1))
		require.LessOrEqual(t, got.Surcharge, int64(99))
		require.Equal(t, 10000+got.Surcharge, got.Total)
		require.False(t, got.Collided)
	}
}

func TestAllocateSkipsPendingTotal(t *testing.T) {
	seq := []int64{42, 42, 77}
	i := 0
	a := &Allocator{
		Checker:     &fakeTotals{used: map[int64]bool{10042: true}},
		MaxAttempts: 10,
		Draw: func() int64 {
			v := seq[i%len(seq)]
			i++
			return v
		},
	}
	got, err := a.Allocate(context.Background(), 10000)
	require.NoError(t, err)
	require.Equal(t, int64(10077), got.Total)
	require.Equal(t, int64(77), got.Surcharge)
}

func TestAllocateFallbackAfterExhaustion(t *testing.T) {
	used := map[int64]bool{}
	for s := int64(1); s <= 99; s++ {
		used[10000+s] = true
	}
	checker := &fakeTotals{used: used}
	a := &Allocator{Checker: checker, MaxAttempts: 180}

	got, err := a.Allocate(context.Background(), 10000)
	require.NoError(t, err)
	require.True(t, got.Collided)
	require.Equal(t, 180, checker.calls)
	require.True(t, got.Total > 10000 && got.Total <= 10099)
}

func TestAllocateErrors(t *testing.T) {
	a := NewAllocator(&fakeTotals{err: errors.New("db down")})
	_, err := a.Allocate(context.Background(), 10000)
	require.ErrorContains(t, err, "db down")

	_, err = a.Allocate(context.Background(), 0)
	require.Error(t, err)
}
