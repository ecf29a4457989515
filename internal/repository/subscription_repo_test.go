package repository

import (
	"testing"
	"time"

	"partsight/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetByUserIDDefaultsToInactiveFree(t *testing.T) {
	repo := NewSubscriptionRepository(openTestDB(t))

	s, err := repo.GetByUserID(42)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, s.Tier)
	assert.Equal(t, domain.SubStatusInactive, s.Status)
	assert.Zero(t, s.ID, "default must not be persisted")
}

func TestUpsertRejectsStalePeriod(t *testing.T) {
	repo := NewSubscriptionRepository(openTestDB(t))

	now := time.Now()
	newer := now.Add(30 * 24 * time.Hour)
	older := now.Add(-24 * time.Hour)

	_, err := repo.Upsert(1, SyncFields{
		Tier:                   domain.TierPro,
		Status:                 domain.SubStatusActive,
		ProviderSubscriptionID: "sub_1",
		CurrentPeriodStart:     &now,
		CurrentPeriodEnd:       &newer,
	})
	require.NoError(t, err)

	_, err = repo.Upsert(1, SyncFields{
		Tier:                   domain.TierPro,
		Status:                 domain.SubStatusCancelled,
		ProviderSubscriptionID: "sub_1",
		CurrentPeriodStart:     &older,
		CurrentPeriodEnd:       &older,
	})
	assert.ErrorIs(t, err, ErrStaleEvent)

	s, err := repo.GetByUserID(1)
	require.NoError(t, err)
	assert.Equal(t, domain.SubStatusActive, s.Status, "stale event must not change stored state")
}

func TestUpsertAppliesNewerPeriod(t *testing.T) {
	repo := NewSubscriptionRepository(openTestDB(t))

	now := time.Now()
	end1 := now.Add(30 * 24 * time.Hour)
	end2 := now.Add(60 * 24 * time.Hour)

	_, err := repo.Upsert(1, SyncFields{
		Tier: domain.TierPro, Status: domain.SubStatusActive,
		ProviderSubscriptionID: "sub_1",
		CurrentPeriodEnd:       &end1,
	})
	require.NoError(t, err)

	s, err := repo.Upsert(1, SyncFields{
		Tier: domain.TierEnterprise, Status: domain.SubStatusActive,
		ProviderSubscriptionID: "sub_1",
		CurrentPeriodEnd:       &end2,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TierEnterprise, s.Tier)
	assert.WithinDuration(t, end2, *s.CurrentPeriodEnd, time.Second)
}

func TestHasActiveAccess(t *testing.T) {
	repo := NewSubscriptionRepository(openTestDB(t))

	assert.False(t, repo.HasActiveAccess(1), "no row fails closed")

	future := time.Now().Add(24 * time.Hour)
	_, err := repo.Upsert(1, SyncFields{
		Tier: domain.TierPro, Status: domain.SubStatusTrialing,
		ProviderSubscriptionID: "sub_1",
		CurrentPeriodEnd:       &future,
	})
	require.NoError(t, err)
	assert.True(t, repo.HasActiveAccess(1))

	require.NoError(t, repo.SetStatus("sub_1", domain.SubStatusPastDue))
	assert.False(t, repo.HasActiveAccess(1))

	farFuture := future.Add(time.Hour)
	_, err = repo.Upsert(1, SyncFields{
		Tier: domain.TierPro, Status: domain.SubStatusActive,
		ProviderSubscriptionID: "sub_1",
		CurrentPeriodEnd:       &farFuture,
	})
	require.NoError(t, err)
	assert.True(t, repo.HasActiveAccess(1))
}

func TestMarkTrialGranted(t *testing.T) {
	repo := NewSubscriptionRepository(openTestDB(t))

	end := time.Now().Add(7 * 24 * time.Hour)
	s, err := repo.Upsert(1, SyncFields{
		Tier: domain.TierPro, Status: domain.SubStatusTrialing,
		ProviderSubscriptionID: "sub_1",
		CurrentPeriodEnd:       &end,
	})
	require.NoError(t, err)
	assert.False(t, s.TrialGranted)

	require.NoError(t, repo.MarkTrialGranted(1))
	s, err = repo.GetByUserID(1)
	require.NoError(t, err)
	assert.True(t, s.TrialGranted)
}

func TestIncrementUsage(t *testing.T) {
	repo := NewSubscriptionRepository(openTestDB(t))

	// no subscription row: counter silently ignored
	require.NoError(t, repo.IncrementUsage(9))

	end := time.Now().Add(24 * time.Hour)
	_, err := repo.Upsert(1, SyncFields{
		Tier: domain.TierPro, Status: domain.SubStatusActive,
		ProviderSubscriptionID: "sub_1",
		CurrentPeriodEnd:       &end,
	})
	require.NoError(t, err)

	require.NoError(t, repo.IncrementUsage(1))
	require.NoError(t, repo.IncrementUsage(1))
	s, err := repo.GetByUserID(1)
	require.NoError(t, err)
	assert.Equal(t, 2, s.AnalysesUsed)
}
