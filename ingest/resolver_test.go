package ingest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/inboxd/graphapi"
	"github.com/meridianhq/inboxd/ingest"
	"github.com/meridianhq/inboxd/store"
)

func newResolverFixture(t *testing.T) (context.Context, *store.MemStore, *store.Channel, *store.Inbox) {
	t.Helper()
	ctx := context.Background()
	ds := store.NewMemStore()
	_, channel, inbox, err := store.Fixtures{DS: ds}.Inbox(ctx, store.PlatformFacebook, "page-1", false)
	require.NoError(t, err)
	return ctx, ds, channel, inbox
}

func TestResolve_ExistingContactSkipsProfileFetch(t *testing.T) {
	ctx, ds, channel, inbox := newResolverFixture(t)
	existing, _, err := store.Fixtures{DS: ds}.Contact(ctx, inbox, "Jane Smith", "user-1")
	require.NoError(t, err)

	profiles := &fakeProfiles{}
	resolver := &ingest.ContactResolver{Profiles: profiles}

	contact, ci, err := resolver.Resolve(ctx, ds, textEvent(store.PlatformFacebook, "user-1", "page-1", "mid.1", "hi"), inbox, channel)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, contact.ID)
	assert.Equal(t, "user-1", ci.SourceID)
	assert.Zero(t, profiles.calls, "known contact must not hit the profile API")
}

func TestResolve_NewContactUsesProfileName(t *testing.T) {
	ctx, ds, channel, inbox := newResolverFixture(t)
	profiles := &fakeProfiles{profile: &graphapi.Profile{
		Name:       "Jane Smith",
		ProfilePic: "https://cdn.example/jane.jpg",
	}}
	resolver := &ingest.ContactResolver{Profiles: profiles, Health: ingest.NewChannelHealth(0, nil)}

	contact, ci, err := resolver.Resolve(ctx, ds, textEvent(store.PlatformFacebook, "user-1", "page-1", "mid.1", "hi"), inbox, channel)
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", contact.Name)
	assert.Equal(t, "https://cdn.example/jane.jpg", contact.AvatarURL)
	assert.Equal(t, inbox.ID, ci.InboxID)

	// The binding persists for subsequent lookups.
	stored, err := ds.GetContactInbox(ctx, inbox.ID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, contact.ID, stored.ContactID)
}

func TestResolve_FallbackNameWhenProfileUnavailable(t *testing.T) {
	for name, fetchErr := range map[string]error{
		"no profile": noProfileError,
		"deleted":    deletedResourceError,
	} {
		t.Run(name, func(t *testing.T) {
			ctx, ds, channel, inbox := newResolverFixture(t)
			resolver := &ingest.ContactResolver{Profiles: &fakeProfiles{err: fetchErr}}

			contact, _, err := resolver.Resolve(ctx, ds, textEvent(store.PlatformFacebook, "user-1", "page-1", "mid.1", "hi"), inbox, channel)
			require.NoError(t, err)
			assert.Equal(t, ingest.FallbackContactName, contact.Name)
			assert.Empty(t, contact.AvatarURL)
		})
	}
}

func TestResolve_NilProfileUsesFallbackName(t *testing.T) {
	ctx, ds, channel, inbox := newResolverFixture(t)
	resolver := &ingest.ContactResolver{Profiles: &fakeProfiles{}}

	contact, _, err := resolver.Resolve(ctx, ds, textEvent(store.PlatformFacebook, "user-1", "page-1", "mid.1", "hi"), inbox, channel)
	require.NoError(t, err)
	assert.Equal(t, ingest.FallbackContactName, contact.Name)
	assert.Empty(t, contact.AvatarURL)
}

func TestResolve_AuthErrorAbortsEvent(t *testing.T) {
	ctx, ds, channel, inbox := newResolverFixture(t)
	resolver := &ingest.ContactResolver{Profiles: &fakeProfiles{err: authError}}

	_, _, err := resolver.Resolve(ctx, ds, textEvent(store.PlatformFacebook, "user-1", "page-1", "mid.1", "hi"), inbox, channel)
	require.ErrorIs(t, err, ingest.ErrAuthFailed)

	count, err := ds.CountContacts(ctx, inbox.AccountID)
	require.NoError(t, err)
	assert.Zero(t, count, "auth failure must not create a contact")
}

func TestResolve_SuccessfulFetchResetsAuthErrorCount(t *testing.T) {
	ctx, ds, channel, inbox := newResolverFixture(t)
	_, err := ds.IncrementAuthErrorCount(ctx, channel.ID)
	require.NoError(t, err)

	resolver := &ingest.ContactResolver{
		Profiles: &fakeProfiles{profile: &graphapi.Profile{Name: "Jane Smith"}},
		Health:   ingest.NewChannelHealth(0, nil),
	}
	_, _, err = resolver.Resolve(ctx, ds, textEvent(store.PlatformFacebook, "user-1", "page-1", "mid.1", "hi"), inbox, channel)
	require.NoError(t, err)

	updated, err := ds.GetChannel(ctx, channel.ID)
	require.NoError(t, err)
	assert.Zero(t, updated.AuthorizationErrorCount)
}

func TestResolve_TransientErrorPropagates(t *testing.T) {
	ctx, ds, channel, inbox := newResolverFixture(t)
	transient := &graphapi.TransientError{Err: assert.AnError}
	resolver := &ingest.ContactResolver{Profiles: &fakeProfiles{err: transient}}

	_, _, err := resolver.Resolve(ctx, ds, textEvent(store.PlatformFacebook, "user-1", "page-1", "mid.1", "hi"), inbox, channel)
	require.Error(t, err)
	assert.True(t, graphapi.IsTransient(err))
}
