package history

import (
	"context"
	"testing"

	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/executor"
)

func TestTaskRunner_Run(t *testing.T) {
	tracer := mocktracer.New()

	runner := taskRunner{
		logger:         zerolog.Nop(),
		tracer:         tracer,
		exec:           executor.Inline,
		constructionID: 3,
	}

	task := runner.run(context.Background(), signingTask, func(ctx context.Context) error {
		return nil
	})

	require.True(t, task.isDone())
	require.False(t, task.failed())
	require.True(t, isPending(task))
	require.Len(t, tracer.FinishedSpans(), 1)
	require.Equal(t, string(signingTask), tracer.FinishedSpans()[0].OperationName)
}

func TestTaskRunner_DroppedByClosedPool(t *testing.T) {
	pool := executor.NewPool(1)
	pool.Close()

	runner := taskRunner{
		logger:         zerolog.Nop(),
		tracer:         mocktracer.New(),
		exec:           pool,
		constructionID: 3,
	}

	called := false

	task := runner.run(context.Background(), voteTask, func(ctx context.Context) error {
		called = true
		return nil
	})

	<-task.done

	require.False(t, called)
	require.True(t, task.failed())
	require.False(t, isPending(task))
	require.Equal(t, errTaskDropped, task.err)
}
