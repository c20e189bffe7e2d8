package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newNop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestAddTicker_Fires(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count int32
	s.AddTicker("tick", 20*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(120 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestAddTicker_Replaces(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count1, count2 int32
	s.AddTicker("task", 20*time.Millisecond, func() { atomic.AddInt32(&count1, 1) })
	time.Sleep(30 * time.Millisecond)
	s.AddTicker("task", 20*time.Millisecond, func() { atomic.AddInt32(&count2, 1) })
	time.Sleep(80 * time.Millisecond)

	// Old ticker should have stopped, new one should be running
	snap1 := atomic.LoadInt32(&count1)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, snap1, atomic.LoadInt32(&count1), "old ticker must stop after replacement")
	assert.Positive(t, atomic.LoadInt32(&count2))
}

func TestRemove_Ticker(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count int32
	s.AddTicker("task", 20*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	time.Sleep(50 * time.Millisecond)
	s.Remove("task")
	snap := atomic.LoadInt32(&count)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&count), "ticker must stop after Remove")
}

func TestRemove_NonExistent(t *testing.T) {
	s := New(newNop())
	defer s.Stop()
	// Must not panic
	s.Remove("nope")
}

func TestStop_StopsAllTickers(t *testing.T) {
	s := New(newNop())

	var c1, c2 int32
	s.AddTicker("a", 20*time.Millisecond, func() { atomic.AddInt32(&c1, 1) })
	s.AddTicker("b", 20*time.Millisecond, func() { atomic.AddInt32(&c2, 1) })
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	// Give goroutines time to observe the stop signal before snapping counts.
	time.Sleep(30 * time.Millisecond)
	snap1, snap2 := atomic.LoadInt32(&c1), atomic.LoadInt32(&c2)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap1, atomic.LoadInt32(&c1))
	assert.Equal(t, snap2, atomic.LoadInt32(&c2))
}

func TestStop_Idempotent(t *testing.T) {
	s := New(newNop())
	s.Stop()
	s.Stop() // must not panic on double-stop
}

func TestListTickers(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	require.Empty(t, s.ListTickers())
	s.AddTicker("stats", time.Hour, func() {})
	s.AddTicker("audit_flush", time.Hour, func() {})
	assert.Equal(t, []string{"audit_flush", "stats"}, s.ListTickers())
}

func TestListTickers_AfterRemove(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	s.AddTicker("x", time.Hour, func() {})
	s.AddTicker("y", time.Hour, func() {})
	s.Remove("x")
	assert.Equal(t, []string{"y"}, s.ListTickers())
}

func TestTicker_PanicRecovery(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var after int32
	s.AddTicker("panic", 20*time.Millisecond, func() {
		panic("oops")
	})
	// After the panic the ticker goroutine should keep running
	time.Sleep(80 * time.Millisecond)
	atomic.StoreInt32(&after, 1)
	assert.Equal(t, int32(1), after) // test itself didn't crash

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.GreaterOrEqual(t, tasks[0].Runs, uint64(2))
	assert.Equal(t, tasks[0].Runs, tasks[0].Panics)
}

func TestTasks_Snapshot(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	s.AddTicker("stats", 10*time.Millisecond, func() {})
	assert.Eventually(t, func() bool {
		tasks := s.Tasks()
		return len(tasks) == 1 && tasks[0].Runs > 0 && !tasks[0].LastRun.IsZero()
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, s.Tasks()[0].Interval)
}

func TestStop_WaitsAndRejectsNewTasks(t *testing.T) {
	s := New(newNop())
	var running int32
	s.AddTicker("slow", 5*time.Millisecond, func() {
		atomic.StoreInt32(&running, 1)
		time.Sleep(30 * time.Millisecond)
		atomic.StoreInt32(&running, 0)
	})
	time.Sleep(15 * time.Millisecond)
	s.Stop()
	assert.Equal(t, int32(0), atomic.LoadInt32(&running), "Stop returns after the in-flight run")

	s.AddTicker("late", time.Millisecond, func() { t.Error("must not run after Stop") })
	assert.Equal(t, []string{"slow"}, s.ListTickers())
}
