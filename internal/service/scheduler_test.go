package service

import (
	"context"
	"testing"
	"time"

	"partsight/internal/domain"
	"partsight/internal/models"
	"partsight/pkg/analyzer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(f *analysisFixture) *RetryScheduler {
	return NewRetryScheduler(f.jobs, f.users, f.svc, time.Minute, 5, domain.MaxRetries)
}

func failedJob(t *testing.T, f *analysisFixture, userID uint, retries int) *models.AnalysisJob {
	t.Helper()
	job := &models.AnalysisJob{
		ID:             "job-" + time.Now().Format("150405.000000000"),
		UserID:         userID,
		Status:         domain.JobStatusFailed,
		RetryCount:     retries,
		ErrorKind:      "timeout",
		RetrySuggested: true,
	}
	url, err := f.svc.artifacts.Put(context.Background(), job.ID, []byte("img"))
	require.NoError(t, err)
	job.ArtifactURL = url
	require.NoError(t, f.jobs.Create(job))
	return job
}

func TestSweepRetriesFailedJob(t *testing.T) {
	f := newAnalysisFixture(t)
	u := createMember(t, f.db, "retry@example.com")
	_, err := f.credits.Credit(u.ID, 1, domain.ReasonPurchase)
	require.NoError(t, err)
	job := failedJob(t, f, u.ID, 0)

	newScheduler(f).Sweep()

	stored, err := f.jobs.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	bal, err := f.credits.GetBalance(u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal, "the retry consumed a fresh credit")
}

func TestSweepSkipsExhaustedJobs(t *testing.T) {
	f := newAnalysisFixture(t)
	u := createMember(t, f.db, "capped@example.com")
	_, err := f.credits.Credit(u.ID, 5, domain.ReasonPurchase)
	require.NoError(t, err)
	job := failedJob(t, f, u.ID, domain.MaxRetries)

	newScheduler(f).Sweep()

	stored, err := f.jobs.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, domain.MaxRetries, stored.RetryCount)
	assert.Equal(t, 0, f.fake.calls)
}

func TestSweepConsumesAttemptWhenOwnerCannotPay(t *testing.T) {
	f := newAnalysisFixture(t)
	u := createMember(t, f.db, "nopay@example.com")
	job := failedJob(t, f, u.ID, 1)

	newScheduler(f).Sweep()

	stored, err := f.jobs.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, 2, stored.RetryCount, "a retry the user cannot pay for still consumes an attempt")
	assert.Equal(t, 0, f.fake.calls)
}

func TestUnfundedJobAgesOutOfSweepSet(t *testing.T) {
	f := newAnalysisFixture(t)
	u := createMember(t, f.db, "broke@example.com")
	job := failedJob(t, f, u.ID, 0)

	sched := newScheduler(f)
	for i := 0; i < 10; i++ {
		sched.Sweep()
	}

	stored, err := f.jobs.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, domain.MaxRetries, stored.RetryCount, "attempts stop accruing at the cap")
	assert.Equal(t, 0, f.fake.calls)

	remaining, err := f.jobs.ListRetryable(domain.MaxRetries, 5)
	require.NoError(t, err)
	assert.Empty(t, remaining, "an exhausted job is no longer swept")
}

func TestRetryCapHonoredAcrossRepeatedFailures(t *testing.T) {
	f := newAnalysisFixture(t)
	u := createMember(t, f.db, "always-fails@example.com")
	_, err := f.credits.Credit(u.ID, 10, domain.ReasonPurchase)
	require.NoError(t, err)
	f.fake.analyzeErr = &analyzer.Error{Kind: analyzer.KindTimeout, Message: "analysis timed out"}
	job := failedJob(t, f, u.ID, 0)

	sched := newScheduler(f)
	for i := 0; i < 6; i++ {
		sched.Sweep()
	}

	stored, err := f.jobs.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, domain.MaxRetries, stored.RetryCount)
	assert.Equal(t, domain.MaxRetries, f.fake.calls)

	bal, err := f.credits.GetBalance(u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal, "every failed attempt refunds its credit")
}

func TestSchedulerStartStop(t *testing.T) {
	f := newAnalysisFixture(t)
	sched := NewRetryScheduler(f.jobs, f.users, f.svc, 10*time.Millisecond, 5, domain.MaxRetries)
	sched.Start()
	time.Sleep(30 * time.Millisecond)
	sched.Stop()
}
