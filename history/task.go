package history

import (
	"context"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/executor"
)

type taskKind string

const (
	publicationTask  taskKind = "proof-key-publication"
	signingTask      taskKind = "assembly-signature"
	voteTask         taskKind = "proof-vote"
	verificationTask taskKind = "signature-verification"
)

// errTaskDropped is the error of the tasks that the executor never ran.
var errTaskDropped = xerrors.New("task dropped by the executor")

var (
	promTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hiero_history_tasks_total",
		Help: "total number of scheduled tasks",
	}, []string{"kind"})

	promTaskFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hiero_history_task_failures_total",
		Help: "total number of tasks that ended with an error",
	}, []string{"kind"})
)

// task is the handle of an asynchronous work. It works as a latch: as long as
// the handle is kept, the same work is not scheduled again, unless it failed.
type task struct {
	id     xid.ID
	kind   taskKind
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (t *task) isDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// failed returns true if the task is over and did not succeed, in which case
// it can be scheduled again.
func (t *task) failed() bool {
	return t.isDone() && t.err != nil
}

// isPending returns true if the latch is held by a task that is running or
// that succeeded.
func isPending(t *task) bool {
	return t != nil && !t.failed()
}

// taskRunner schedules the tasks of a construction on the executor.
type taskRunner struct {
	logger         zerolog.Logger
	tracer         opentracing.Tracer
	exec           executor.Executor
	constructionID uint64
}

func (r taskRunner) run(parent context.Context, kind taskKind, fn func(ctx context.Context) error) *task {
	ctx, cancel := context.WithCancel(parent)

	t := &task{
		id:     xid.New(),
		kind:   kind,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	promTasks.WithLabelValues(string(kind)).Inc()

	r.logger.Debug().
		Str("task", t.id.String()).
		Str("kind", string(kind)).
		Uint64("construction", r.constructionID).
		Msg("task scheduled")

	abort := func() {
		defer close(t.done)
		defer cancel()

		t.err = errTaskDropped
		promTaskFailures.WithLabelValues(string(kind)).Inc()

		r.logger.Debug().
			Str("task", t.id.String()).
			Str("kind", string(kind)).
			Uint64("construction", r.constructionID).
			Msg("task dropped")
	}

	executor.ExecuteOrAbort(r.exec, func() {
		defer close(t.done)
		defer cancel()

		span := r.tracer.StartSpan(string(kind))
		span.SetTag("task", t.id.String())
		span.SetTag("construction", r.constructionID)
		defer span.Finish()

		if ctx.Err() != nil {
			t.err = ctx.Err()
			return
		}

		t.err = fn(ctx)
		if t.err != nil {
			promTaskFailures.WithLabelValues(string(kind)).Inc()
			span.SetTag("error", true)

			r.logger.Warn().
				Err(t.err).
				Str("task", t.id.String()).
				Str("kind", string(kind)).
				Uint64("construction", r.constructionID).
				Msg("task failed")
		}
	}, abort)

	return t
}

// await waits for the future of a submission, or for the cancellation of the
// task.
func await(ctx context.Context, future Future) error {
	select {
	case err := <-future:
		if err != nil {
			return xerrors.Errorf("submission failed: %v", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
