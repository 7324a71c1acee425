package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countJob struct {
	runs  atomic.Int32
	block chan struct{}
}

func (j *countJob) Name() string { return "count" }

func (j *countJob) Run(context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return nil
}

func TestAddJobValidatesSpec(t *testing.T) {
	s := NewCronScheduler()
	require.NoError(t, s.AddJob(&countJob{}, ""))
	require.Empty(t, s.Jobs())
	require.Error(t, s.AddJob(&countJob{}, "not a spec"))
	require.NoError(t, s.AddJob(&countJob{}, "@every 1h"))
	require.Error(t, s.AddJob(&countJob{}, "*/5 * * * *"))
	require.Equal(t, []string{"count"}, s.Jobs())
}

func TestWrapSkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler()
	job := &countJob{block: make(chan struct{})}
	run := s.wrap(job)

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	run()
	require.EqualValues(t, 1, job.runs.Load())

	close(job.block)
	<-done
	job.block = nil
	run()
	require.EqualValues(t, 2, job.runs.Load())
}
