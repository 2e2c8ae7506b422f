package expiry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

type fakeSweepStore struct {
	batches map[orders.Kind][][]orders.Expired
	calls   map[orders.Kind]int
	err     error
}

func (f *fakeSweepStore) ExpireOverdue(_ context.Context, kind orders.Kind, limit int) ([]orders.Expired, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls[kind]
	f.calls[kind]++
	if i >= len(f.batches[kind]) {
		return nil, nil
	}
	return f.batches[kind][i], nil
}

type finished struct {
	got []string
}

func (f *finished) AfterExpire(_ context.Context, e orders.Expired, source string) {
	f.got = append(f.got, string(e.Kind)+":"+e.Code+":"+source)
}

func TestSweeperDrainsBatches(t *testing.T) {
	store := &fakeSweepStore{
		calls: map[orders.Kind]int{},
		batches: map[orders.Kind][][]orders.Expired{
			orders.KindOrder: {
				{{Kind: orders.KindOrder, Code: "SSB-1"}, {Kind: orders.KindOrder, Code: "SSB-2"}},
				{{Kind: orders.KindOrder, Code: "SSB-3"}},
			},
			orders.KindTopup: {
				{{Kind: orders.KindTopup, Code: "TOPUP-1"}},
			},
		},
	}
	fin := &finished{}
	w := NewSweeper(store, fin, 0, 2, zap.NewNop())

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []string{
		"order:SSB-1:sweep", "order:SSB-2:sweep", "order:SSB-3:sweep", "topup:TOPUP-1:sweep",
	}, fin.got)
	// batch kedua order < limit -> berhenti tanpa query ketiga
	require.Equal(t, 2, store.calls[orders.KindOrder])
	require.Equal(t, 1, store.calls[orders.KindTopup])
}

func TestSweeperReturnsStoreError(t *testing.T) {
	store := &fakeSweepStore{calls: map[orders.Kind]int{}, err: errors.New("db down")}
	w := NewSweeper(store, &finished{}, 0, 10, zap.NewNop())

	_, err := w.RunOnce(context.Background())
	require.EqualError(t, err, "db down")
}

func TestSweeperRunForeverStopsOnCancel(t *testing.T) {
	store := &fakeSweepStore{calls: map[orders.Kind]int{}}
	w := NewSweeper(store, &finished{}, 0, 10, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w.RunForever(ctx) // langsung kembali setelah satu putaran
	require.Equal(t, 1, store.calls[orders.KindOrder])
}
