package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func TestJobsFireInDeadlineOrder(t *testing.T) {
	s := startScheduler(t)

	var (
		mu    sync.Mutex
		order []string
	)
	done := make(chan struct{})
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			n := len(order)
			mu.Unlock()
			if n == 3 {
				close(done)
			}
		}
	}

	s.After(60*time.Millisecond, "c", record("c"))
	s.After(20*time.Millisecond, "a", record("a"))
	s.After(40*time.Millisecond, "b", record("b"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not fire")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestCancelPreventsFiring(t *testing.T) {
	s := startScheduler(t)

	fired := make(chan string, 2)
	id := s.After(30*time.Millisecond, "cancelled", func() { fired <- "cancelled" })
	s.After(60*time.Millisecond, "kept", func() { fired <- "kept" })

	require.True(t, s.Cancel(id))
	require.False(t, s.Cancel(id))

	select {
	case got := <-fired:
		require.Equal(t, "kept", got)
	case <-time.After(2 * time.Second):
		t.Fatal("kept job did not fire")
	}
	require.Empty(t, s.Pending())
}

func TestCancelAll(t *testing.T) {
	s := startScheduler(t)

	fired := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		s.After(time.Hour, "timer", func() { fired <- struct{}{} })
	}
	require.Len(t, s.Pending(), 3)
	require.Equal(t, 3, s.CancelAll())
	require.Empty(t, s.Pending())
	require.Equal(t, 0, s.CancelAll())
}

func TestPendingSortedByDeadline(t *testing.T) {
	s := New(nil)
	s.After(3*time.Hour, "late", func() {})
	s.After(time.Hour, "early", func() {})
	s.After(2*time.Hour, "middle", func() {})

	pending := s.Pending()
	require.Len(t, pending, 3)
	require.Equal(t, "early", pending[0].Label)
	require.Equal(t, "middle", pending[1].Label)
	require.Equal(t, "late", pending[2].Label)
}

func TestPanickingJobDoesNotStopScheduler(t *testing.T) {
	s := startScheduler(t)

	fired := make(chan struct{})
	s.After(10*time.Millisecond, "boom", func() { panic("boom") })
	s.After(30*time.Millisecond, "after", func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler stopped after panic")
	}
}
