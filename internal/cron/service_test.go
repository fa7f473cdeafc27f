package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/metrics"
)

type fakeLock struct {
	acquired bool
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
	// block waits for the job context to end.
	block bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	if t.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return t.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(success, failure),
		Lock:     &fakeLock{},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 1, success.runs)
	assert.Equal(t, 1, failure.runs)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil && len(m.GetLabel()) > 0 {
				counts[mf.GetName()+"/"+m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), counts["cron_job_success_total/success"])
	assert.Equal(t, float64(1), counts["cron_job_failure_total/fail"])
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{acquired: true},
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Zero(t, job.runs)
}

func TestRunOnceSurfacesLockError(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger: testLogger(),
		Lock:   &fakeLock{err: errors.New("redis down")},
	})
	require.NoError(t, err)
	require.Error(t, service.RunOnce(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = service.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, job.runs, "jobs are not started once shutdown began")
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)
}

func TestRunJobHonoursTimeout(t *testing.T) {
	slow := &testJob{name: "ledger-reconciliation", block: true}
	after := &testJob{name: "outbox-retention"}
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:     testLogger(),
		Registry:   NewRegistry(slow, after),
		Lock:       &fakeLock{},
		Metrics:    metrics.NewCronJobMetrics(reg),
		JobTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 1, slow.runs)
	assert.Equal(t, 1, after.runs, "a timed out job must not block the next one")
}

func TestRunOnceCountsSkippedCycles(t *testing.T) {
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:  testLogger(),
		Lock:    &fakeLock{acquired: true},
		Metrics: metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	require.NoError(t, service.RunOnce(context.Background()))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var skipped float64
	for _, mf := range mfs {
		if mf.GetName() == "cron_cycles_skipped_total" {
			skipped = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), skipped)
}

func TestRunNamedRunsOnlyThatJob(t *testing.T) {
	target := &testJob{name: "ledger-reconciliation", err: errors.New("drift")}
	other := &testJob{name: "outbox-retention"}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(other, target),
		Lock:     lock,
	})
	require.NoError(t, err)

	err = svc.RunNamed(context.Background(), "ledger-reconciliation")
	require.EqualError(t, err, "drift")
	assert.Equal(t, 1, target.runs)
	assert.Zero(t, other.runs)
	assert.False(t, lock.acquired)
}

func TestRunNamedRejectsUnknownAndHeldLock(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.RunNamed(context.Background(), "missing"), ErrUnknownJob)

	lock.acquired = true
	require.ErrorIs(t, svc.RunNamed(context.Background(), "outbox-retention"), ErrLockHeld)
	assert.Zero(t, job.runs)
}
