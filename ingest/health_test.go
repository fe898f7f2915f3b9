package ingest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/inboxd/ingest"
	"github.com/meridianhq/inboxd/store"
)

func TestChannelHealth_ThresholdFiresOnce(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	_, channel, _, err := store.Fixtures{DS: ds}.Inbox(ctx, store.PlatformFacebook, "page-1", false)
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	health := ingest.NewChannelHealth(3, notifier)

	for i := 0; i < 5; i++ {
		current, err := ds.GetChannel(ctx, channel.ID)
		require.NoError(t, err)
		require.NoError(t, health.RecordAuthFailure(ctx, ds, current))
	}

	updated, err := ds.GetChannel(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.AuthorizationErrorCount, "counter keeps growing past the threshold")
	assert.True(t, updated.ReauthorizationRequired)
	require.Equal(t, 1, notifier.count(), "the notice fires only on the crossing")

	notice := notifier.notices[0]
	assert.Equal(t, channel.ID, notice.ChannelID)
	assert.Equal(t, channel.AccountID, notice.AccountID)
	assert.Equal(t, "page-1", notice.PlatformID)
	assert.Equal(t, 3, notice.ErrorCount)
}

func TestChannelHealth_SuccessResetsCounterAndFlag(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	_, channel, _, err := store.Fixtures{DS: ds}.Inbox(ctx, store.PlatformFacebook, "page-1", false)
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	health := ingest.NewChannelHealth(2, notifier)
	for i := 0; i < 2; i++ {
		current, err := ds.GetChannel(ctx, channel.ID)
		require.NoError(t, err)
		require.NoError(t, health.RecordAuthFailure(ctx, ds, current))
	}
	require.NoError(t, health.RecordAuthSuccess(ctx, ds, channel.ID))

	updated, err := ds.GetChannel(ctx, channel.ID)
	require.NoError(t, err)
	assert.Zero(t, updated.AuthorizationErrorCount)
	assert.False(t, updated.ReauthorizationRequired)

	// A fresh run of failures can fire the notice again.
	for i := 0; i < 2; i++ {
		current, err := ds.GetChannel(ctx, channel.ID)
		require.NoError(t, err)
		require.NoError(t, health.RecordAuthFailure(ctx, ds, current))
	}
	assert.Equal(t, 2, notifier.count())
}

func TestNewChannelHealth_Defaults(t *testing.T) {
	health := ingest.NewChannelHealth(0, nil)
	assert.Equal(t, ingest.DefaultAuthErrorThreshold, health.Threshold)
	assert.NotNil(t, health.Notifier)
}
