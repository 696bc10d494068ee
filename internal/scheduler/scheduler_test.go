package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/finadvisor/pkg/logger"
)

type countingJob struct {
	name     string
	schedule string
	failures int32
	calls    atomic.Int32
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return j.schedule }

func (j *countingJob) Run(ctx context.Context) error {
	n := j.calls.Add(1)
	if n <= j.failures {
		return errors.New("transient")
	}
	return nil
}

func TestScheduler_AddAndRemove(t *testing.T) {
	s := New(logger.Nop())

	job := &countingJob{name: "a", schedule: "0 */10 * * * *"}
	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job), "duplicate name")

	assert.Error(t, s.AddJob(&countingJob{name: "bad", schedule: "not a cron"}))

	require.NoError(t, s.AddJob(&countingJob{name: "b", schedule: "@hourly"}))
	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("a"))
}

func TestScheduler_RunJobSyncRetries(t *testing.T) {
	tests := []struct {
		name        string
		failures    int32
		wantSuccess bool
		wantCalls   int32
	}{
		{name: "first attempt", failures: 0, wantSuccess: true, wantCalls: 1},
		{name: "recovers on retry", failures: 2, wantSuccess: true, wantCalls: 3},
		{name: "gives up", failures: 10, wantSuccess: false, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(logger.Nop(), WithRetry(2, time.Millisecond), WithJobTimeout(time.Second))
			job := &countingJob{name: "job", schedule: "@every 1h", failures: tt.failures}
			require.NoError(t, s.AddJob(job))

			result, err := s.RunJobSync("job")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantCalls, job.calls.Load())
			assert.Equal(t, int(tt.wantCalls), result.Attempts)

			stats := s.GetJobStats()["job"]
			assert.Equal(t, 1, stats.TotalRuns)
			if tt.wantSuccess {
				assert.Equal(t, 1.0, stats.SuccessRate)
				assert.NotNil(t, stats.LastSuccess)
				assert.Nil(t, stats.LastFailure)
			} else {
				assert.Equal(t, 1, stats.FailureCount)
				assert.Equal(t, "transient", result.Error)
				assert.Equal(t, "transient", stats.LastError)
				assert.Nil(t, stats.LastSuccess)
			}
		})
	}

	_, err := New(logger.Nop()).RunJobSync("missing")
	assert.Error(t, err)
}

func TestScheduler_NextRunAfterStart(t *testing.T) {
	s := New(logger.Nop())
	require.NoError(t, s.AddJob(&countingJob{name: "job", schedule: "0 0 * * * *"}))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.GetJobStats()["job"].NextRun != nil
	}, time.Second, 10*time.Millisecond)
}

// blockingJob holds its run until release is closed
type blockingJob struct {
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Name() string     { return "blocking" }
func (j *blockingJob) Schedule() string { return "@every 1h" }

func (j *blockingJob) Run(ctx context.Context) error {
	close(j.started)
	<-j.release
	return nil
}

func TestScheduler_RejectsOverlappingRuns(t *testing.T) {
	s := New(logger.Nop())
	job := &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("blocking"))
	<-job.started

	_, err := s.RunJobSync("blocking")
	assert.ErrorIs(t, err, ErrJobRunning)
	assert.True(t, s.GetJobStats()["blocking"].Running)

	close(job.release)
	require.Eventually(t, func() bool {
		st := s.GetJobStats()["blocking"]
		return !st.Running && st.TotalRuns == 1
	}, time.Second, 10*time.Millisecond)
}

func TestScheduler_StopAbortsRetryWait(t *testing.T) {
	s := New(logger.Nop(), WithRetry(5, time.Hour))
	job := &countingJob{name: "job", schedule: "@every 1h", failures: 100}
	require.NoError(t, s.AddJob(job))

	done := make(chan JobResult, 1)
	go func() {
		r, _ := s.RunJobSync("job")
		done <- r
	}()

	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()

	select {
	case r := <-done:
		assert.False(t, r.Success)
		assert.Equal(t, 1, r.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("retry wait was not interrupted")
	}
}

func TestJobHistory_Limit(t *testing.T) {
	s := New(logger.Nop(), WithHistorySize(2), WithRetry(0, 0))
	require.NoError(t, s.AddJob(&countingJob{name: "job", schedule: "@every 1h"}))
	for i := 0; i < 3; i++ {
		_, err := s.RunJobSync("job")
		require.NoError(t, err)
	}

	h, err := s.GetJobHistory("job")
	require.NoError(t, err)
	assert.Len(t, h.Results, 2)

	_, err = s.GetJobHistory("missing")
	assert.Error(t, err)
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	assert.Equal(t, 0.0, h.GetSuccessRate())
	assert.Empty(t, h.GetLatestResults(5))

	for i := 0; i < 105; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, 100)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Len(t, h.GetFailedResults(), 50)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 0.01)

	last, ok := h.Last(false)
	require.True(t, ok)
	assert.False(t, last.Success)

	_, ok = (&JobHistory{}).Last(true)
	assert.False(t, ok)
}
