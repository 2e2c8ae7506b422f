package expiry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu      sync.Mutex
	warned  []string
	expired []string
	fired   chan string
}

func newRecorder() *recorder { return &recorder{fired: make(chan string, 16)} }

func (r *recorder) Warn(_ context.Context, code string, _ time.Time) error {
	r.mu.Lock()
	r.warned = append(r.warned, code)
	r.mu.Unlock()
	r.fired <- "warn:" + code
	return nil
}

func (r *recorder) Expire(_ context.Context, code, source string) error {
	r.mu.Lock()
	r.expired = append(r.expired, code+"/"+source)
	r.mu.Unlock()
	r.fired <- "expire:" + code
	return nil
}

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", want)
	}
}

func TestSchedulerWarnsThenExpires(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(rec, 30*time.Millisecond, zap.NewNop())

	s.Arm("SSB-A", time.Now().Add(60*time.Millisecond))
	require.Equal(t, 1, s.Pending())

	waitFor(t, rec.fired, "warn:SSB-A")
	waitFor(t, rec.fired, "expire:SSB-A")
	require.Equal(t, 0, s.Pending())
	require.Equal(t, []string{"SSB-A/timer"}, rec.expired)
}

func TestSchedulerCancelPreventsFiring(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(rec, 0, zap.NewNop())

	s.Arm("SSB-A", time.Now().Add(50*time.Millisecond))
	require.True(t, s.Cancel("SSB-A"))
	require.False(t, s.Cancel("SSB-A"))

	select {
	case got := <-rec.fired:
		t.Fatalf("unexpected callback %s", got)
	case <-time.After(150 * time.Millisecond):
	}
	require.Equal(t, 0, s.Pending())
}

func TestSchedulerPastDeadlineFiresImmediately(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(rec, 10*time.Second, zap.NewNop())

	s.Arm("SSB-OLD", time.Now().Add(-time.Minute))
	waitFor(t, rec.fired, "expire:SSB-OLD")
	require.Empty(t, rec.warned)
}

func TestSchedulerRearmReplacesTimer(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(rec, 0, zap.NewNop())

	s.Arm("SSB-A", time.Now().Add(time.Hour))
	s.Arm("SSB-A", time.Now().Add(20*time.Millisecond))
	require.Equal(t, 1, s.Pending())
	waitFor(t, rec.fired, "expire:SSB-A")

	s.Arm("SSB-B", time.Now().Add(time.Hour))
	s.Stop()
	require.Equal(t, 0, s.Pending())
}
