// Package fake provides fake implementations for interfaces commonly used in
// the repository.
// The implementations offer configuration to return errors when it is needed by
// the unit test and it is also possible to record the call of functions of an
// object in some cases.
package fake

import (
	"sync"

	"golang.org/x/xerrors"
)

// fakeErr is the error returned by the fakes configured to fail.
var fakeErr = xerrors.New("fake error")

// GetError returns the error used by the fakes.
func GetError() error {
	return fakeErr
}

// Err returns the message of the fake error prefixed by the given string.
func Err(prefix string) string {
	return prefix + ": " + fakeErr.Error()
}

// Call is a tool to keep track of a function calls.
type Call struct {
	sync.Mutex
	calls [][]interface{}
}

// Get returns the nth call ith parameter.
func (c *Call) Get(n, i int) interface{} {
	c.Lock()
	defer c.Unlock()

	return c.calls[n][i]
}

// Len returns the number of calls.
func (c *Call) Len() int {
	if c == nil {
		return 0
	}

	c.Lock()
	defer c.Unlock()

	return len(c.calls)
}

// Add adds a call to the list.
func (c *Call) Add(args ...interface{}) {
	if c == nil {
		return
	}

	c.Lock()
	c.calls = append(c.calls, args)
	c.Unlock()
}

// Clear forgets the calls.
func (c *Call) Clear() {
	c.Lock()
	c.calls = nil
	c.Unlock()
}

// Executor is a fake executor that queues the work until the test runs it.
//
// - implements executor.Executor
type Executor struct {
	sync.Mutex
	queue []func()
}

// Execute implements executor.Executor. It queues the work.
func (e *Executor) Execute(fn func()) {
	e.Lock()
	e.queue = append(e.queue, fn)
	e.Unlock()
}

// Len returns the number of queued units of work.
func (e *Executor) Len() int {
	e.Lock()
	defer e.Unlock()

	return len(e.queue)
}

// RunAll runs the queued work, including the work queued while running, and
// returns how many units were run.
func (e *Executor) RunAll() int {
	n := 0

	for {
		e.Lock()
		if len(e.queue) == 0 {
			e.Unlock()
			return n
		}

		fn := e.queue[0]
		e.queue = e.queue[1:]
		e.Unlock()

		fn()
		n++
	}
}
