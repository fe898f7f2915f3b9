package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/inboxd/store"
)

func TestMemStore_WithTxnRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	_, _, inbox, err := store.Fixtures{DS: ds}.Inbox(ctx, store.PlatformFacebook, "page-1", false)
	require.NoError(t, err)

	err = ds.WithTxn(ctx, func(txn store.Datastore) error {
		contact := &store.Contact{AccountID: inbox.AccountID, Name: "Jane Smith"}
		if err := txn.CreateContact(ctx, contact); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	count, err := ds.CountContacts(ctx, inbox.AccountID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemStore_WithTxnCommits(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	_, _, inbox, err := store.Fixtures{DS: ds}.Inbox(ctx, store.PlatformFacebook, "page-1", false)
	require.NoError(t, err)

	err = ds.WithTxn(ctx, func(txn store.Datastore) error {
		return txn.CreateContact(ctx, &store.Contact{AccountID: inbox.AccountID, Name: "Jane Smith"})
	})
	require.NoError(t, err)

	count, err := ds.CountContacts(ctx, inbox.AccountID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemStore_ContactInboxConflict(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	fixtures := store.Fixtures{DS: ds}
	_, _, inbox, err := fixtures.Inbox(ctx, store.PlatformFacebook, "page-1", false)
	require.NoError(t, err)
	_, _, err = fixtures.Contact(ctx, inbox, "Jane Smith", "user-1")
	require.NoError(t, err)

	contact := &store.Contact{AccountID: inbox.AccountID, Name: "Impostor"}
	require.NoError(t, ds.CreateContact(ctx, contact))
	err = ds.CreateContactInbox(ctx, &store.ContactInbox{ContactID: contact.ID, InboxID: inbox.ID, SourceID: "user-1"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestMemStore_MessageSourceIDConflict(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	fixtures := store.Fixtures{DS: ds}
	_, _, inbox, err := fixtures.Inbox(ctx, store.PlatformFacebook, "page-1", false)
	require.NoError(t, err)
	_, ci, err := fixtures.Contact(ctx, inbox, "Jane Smith", "user-1")
	require.NoError(t, err)
	conversation, err := fixtures.Conversation(ctx, inbox, ci, store.ConversationStatusOpen)
	require.NoError(t, err)

	message := func() *store.Message {
		return &store.Message{
			AccountID:      inbox.AccountID,
			InboxID:        inbox.ID,
			ConversationID: conversation.ID,
			MessageType:    store.IncomingMessage,
			SourceID:       "mid.1",
			SentAt:         time.Now(),
		}
	}
	require.NoError(t, ds.CreateMessage(ctx, message()))
	assert.ErrorIs(t, ds.CreateMessage(ctx, message()), store.ErrConflict)
}

func TestMemStore_LatestConversationOrdering(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	fixtures := store.Fixtures{DS: ds}
	_, _, inbox, err := fixtures.Inbox(ctx, store.PlatformFacebook, "page-1", false)
	require.NoError(t, err)
	_, ci, err := fixtures.Contact(ctx, inbox, "Jane Smith", "user-1")
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := &store.Conversation{
		AccountID: inbox.AccountID, InboxID: inbox.ID,
		ContactID: ci.ContactID, ContactInboxID: ci.ID,
		Status: store.ConversationStatusResolved, CreatedAt: base,
	}
	require.NoError(t, ds.CreateConversation(ctx, older))
	newer := &store.Conversation{
		AccountID: inbox.AccountID, InboxID: inbox.ID,
		ContactID: ci.ContactID, ContactInboxID: ci.ID,
		Status: store.ConversationStatusOpen, CreatedAt: base.Add(time.Hour),
	}
	require.NoError(t, ds.CreateConversation(ctx, newer))

	latest, err := ds.LatestConversation(ctx, inbox.ID, ci.ContactID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newer.ID, latest.ID)
}

func TestMemStore_LatestConversationTieBreaksOnID(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	fixtures := store.Fixtures{DS: ds}
	_, _, inbox, err := fixtures.Inbox(ctx, store.PlatformFacebook, "page-1", false)
	require.NoError(t, err)
	_, ci, err := fixtures.Contact(ctx, inbox, "Jane Smith", "user-1")
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var last *store.Conversation
	for i := 0; i < 3; i++ {
		conv := &store.Conversation{
			AccountID: inbox.AccountID, InboxID: inbox.ID,
			ContactID: ci.ContactID, ContactInboxID: ci.ID,
			Status: store.ConversationStatusOpen, CreatedAt: at,
		}
		require.NoError(t, ds.CreateConversation(ctx, conv))
		last = conv
	}

	latest, err := ds.LatestConversation(ctx, inbox.ID, ci.ContactID)
	require.NoError(t, err)
	assert.Equal(t, last.ID, latest.ID)
}

func TestMemStore_ListMessagesOrderedBySentAt(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	fixtures := store.Fixtures{DS: ds}
	_, _, inbox, err := fixtures.Inbox(ctx, store.PlatformFacebook, "page-1", false)
	require.NoError(t, err)
	_, ci, err := fixtures.Contact(ctx, inbox, "Jane Smith", "user-1")
	require.NoError(t, err)
	conversation, err := fixtures.Conversation(ctx, inbox, ci, store.ConversationStatusOpen)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, mid := range []string{"mid.c", "mid.a", "mid.b"} {
		require.NoError(t, ds.CreateMessage(ctx, &store.Message{
			AccountID:      inbox.AccountID,
			InboxID:        inbox.ID,
			ConversationID: conversation.ID,
			MessageType:    store.IncomingMessage,
			SourceID:       mid,
			SentAt:         base.Add(-time.Duration(i) * time.Minute),
		}))
	}

	messages, err := ds.ListMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "mid.b", messages[0].SourceID)
	assert.Equal(t, "mid.a", messages[1].SourceID)
	assert.Equal(t, "mid.c", messages[2].SourceID)
}

func TestMemStore_GetTokenUser(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	fixtures := store.Fixtures{DS: ds}
	account, err := fixtures.Account(ctx, "Acme")
	require.NoError(t, err)
	user, err := fixtures.User(ctx, account.ID, "Admin", store.RoleAdministrator, "secret-token")
	require.NoError(t, err)

	tokenUser, err := ds.GetTokenUser(ctx, "secret-token")
	require.NoError(t, err)
	require.NotNil(t, tokenUser)
	assert.Equal(t, user.ID, tokenUser.UserID)
	assert.Equal(t, account.ID, tokenUser.AccountID)
	assert.Equal(t, store.RoleAdministrator, tokenUser.Role)

	missing, err := ds.GetTokenUser(ctx, "wrong-token")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemStore_GettersReturnNilOnMiss(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()

	channel, err := ds.GetChannelByPlatformID(ctx, store.PlatformFacebook, "nobody")
	require.NoError(t, err)
	assert.Nil(t, channel)

	msg, err := ds.GetMessageBySourceID(ctx, 1, "mid.x")
	require.NoError(t, err)
	assert.Nil(t, msg)

	conv, err := ds.LatestConversation(ctx, 1, 2)
	require.NoError(t, err)
	assert.Nil(t, conv)
}
