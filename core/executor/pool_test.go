package executor

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_Execute(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	var counter int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		pool.Execute(func() {
			atomic.AddInt64(&counter, 1)
			wg.Done()
		})
	}

	wg.Wait()
	require.Equal(t, int64(20), atomic.LoadInt64(&counter))
}

func TestPool_Bounded(t *testing.T) {
	pool := NewPool(1)

	block := make(chan struct{})
	started := make(chan struct{})

	var running, peak int64

	work := func() {
		n := atomic.AddInt64(&running, 1)
		if n > atomic.LoadInt64(&peak) {
			atomic.StoreInt64(&peak, n)
		}

		started <- struct{}{}
		<-block

		atomic.AddInt64(&running, -1)
	}

	pool.Execute(work)
	pool.Execute(work)

	<-started
	block <- struct{}{}
	<-started
	block <- struct{}{}

	pool.Close()
	require.Equal(t, int64(1), atomic.LoadInt64(&peak))
}

func TestPool_Close(t *testing.T) {
	pool := NewPool(0)
	pool.Close()

	done := false
	pool.Execute(func() { done = true })
	pool.Close()

	require.False(t, done)
}

func TestPool_ExecuteOrAbort(t *testing.T) {
	pool := NewPool(1)

	var ran, aborted int64

	pool.ExecuteOrAbort(func() { atomic.AddInt64(&ran, 1) }, func() { atomic.AddInt64(&aborted, 1) })
	pool.Wait()

	pool.Close()

	pool.ExecuteOrAbort(func() { atomic.AddInt64(&ran, 1) }, func() { atomic.AddInt64(&aborted, 1) })
	pool.Wait()

	require.Equal(t, int64(1), atomic.LoadInt64(&ran))
	require.Equal(t, int64(1), atomic.LoadInt64(&aborted))
}

func TestExecuteOrAbort(t *testing.T) {
	done := false
	ExecuteOrAbort(Inline, func() { done = true }, func() { t.Fatal("unexpected abort") })
	require.True(t, done)

	pool := NewPool(1)
	pool.Close()

	aborted := make(chan struct{})
	ExecuteOrAbort(pool, func() { t.Fatal("unexpected run") }, func() { close(aborted) })
	<-aborted
}

func TestInline(t *testing.T) {
	done := false
	Inline.Execute(func() { done = true })
	require.True(t, done)
}

func TestPool_Wait(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	var counter int64

	for i := 0; i < 10; i++ {
		pool.Execute(func() {
			atomic.AddInt64(&counter, 1)
		})
	}

	pool.Wait()
	require.Equal(t, int64(10), atomic.LoadInt64(&counter))
}
