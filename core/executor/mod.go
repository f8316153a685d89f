// Package executor defines the sink that runs the asynchronous work of the
// history proof controllers, and a default bounded goroutine pool.
package executor

// Executor runs a unit of work, usually on another goroutine. The order of
// execution is unspecified.
type Executor interface {
	Execute(fn func())
}

// Func is an adapter to allow the use of an ordinary function as an executor.
//
// - implements executor.Executor
type Func func(fn func())

// Execute implements executor.Executor.
func (f Func) Execute(fn func()) {
	f(fn)
}

// Inline is an executor that runs the work on the calling goroutine.
var Inline Executor = Func(func(fn func()) { fn() })

// Aborter is implemented by the executors that may drop a unit of work
// without running it. The abort callback then runs in its place.
type Aborter interface {
	ExecuteOrAbort(fn, abort func())
}

// ExecuteOrAbort runs the work on the executor. If the executor drops it,
// abort is called instead. Executors that never drop work only run fn.
func ExecuteOrAbort(exec Executor, fn, abort func()) {
	aborter, ok := exec.(Aborter)
	if ok {
		aborter.ExecuteOrAbort(fn, abort)
		return
	}

	exec.Execute(fn)
}
