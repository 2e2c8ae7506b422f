package redisx

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-qris-store.git/internal/session"
)

var _ session.Store = (*SessionStore)(nil)

func testStore(t *testing.T) *SessionStore {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := New(addr, 0)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, Ping(context.Background(), rdb))
	return &SessionStore{RDB: rdb}
}

func TestSessionStoreLockLifecycle(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	tg := time.Now().UnixNano()
	t.Cleanup(func() { s.RDB.Del(ctx, fmt.Sprintf(KeyUserLock, tg)) })

	ok, err := s.AcquireLock(ctx, tg, "SSB-A", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AcquireLock(ctx, tg, "SSB-B", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, tg, "SSB-B"))
	holder, err := s.LockHolder(ctx, tg)
	require.NoError(t, err)
	require.Equal(t, "SSB-A", holder)

	require.NoError(t, s.ReleaseLock(ctx, tg, "SSB-A"))
	holder, err = s.LockHolder(ctx, tg)
	require.NoError(t, err)
	require.Empty(t, holder)
}

func TestSessionStoreCooldownAndMessages(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	code := fmt.Sprintf("SSB-TEST-%d", time.Now().UnixNano())

	ok, err := s.AllowCheck(ctx, code, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.AllowCheck(ctx, code, time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.RememberMessage(ctx, code, "m1", time.Minute))
	require.NoError(t, s.RememberMessage(ctx, code, "m2", time.Minute))
	refs, err := s.TakeMessages(ctx, code)
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2"}, refs)

	refs, err = s.TakeMessages(ctx, code)
	require.NoError(t, err)
	require.Empty(t, refs)
}
