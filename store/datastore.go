package store

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned when an insert loses a race on a unique index.
// Callers are expected to retry the lookup that preceded the insert.
var ErrConflict = errors.New("store: unique constraint conflict")

// Datastore is the persistence surface used by the ingestion pipeline and
// the HTTP handlers. Getters return (nil, nil) when the row does not exist.
//
// WithTxn runs fn against a transaction-bound Datastore; any error from fn
// rolls the transaction back and is returned unchanged.
type Datastore interface {
	WithTxn(ctx context.Context, fn func(Datastore) error) error

	GetAccount(ctx context.Context, id int64) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) error

	CreateUser(ctx context.Context, user *User) error
	CreateAccessToken(ctx context.Context, token string, userID int64) error
	GetTokenUser(ctx context.Context, token string) (*TokenUser, error)

	GetChannel(ctx context.Context, id int64) (*Channel, error)
	GetChannelByPlatformID(ctx context.Context, platform Platform, platformID string) (*Channel, error)
	CreateChannel(ctx context.Context, channel *Channel) error
	IncrementAuthErrorCount(ctx context.Context, channelID int64) (int, error)
	ResetAuthErrorCount(ctx context.Context, channelID int64) error
	MarkReauthorizationRequired(ctx context.Context, channelID int64) error

	GetInboxByChannel(ctx context.Context, channelID int64) (*Inbox, error)
	CreateInbox(ctx context.Context, inbox *Inbox) error

	GetContact(ctx context.Context, id int64) (*Contact, error)
	CreateContact(ctx context.Context, contact *Contact) error
	CountContacts(ctx context.Context, accountID int64) (int, error)

	GetContactInbox(ctx context.Context, inboxID int64, sourceID string) (*ContactInbox, error)
	CreateContactInbox(ctx context.Context, ci *ContactInbox) error

	LatestConversation(ctx context.Context, inboxID, contactID int64) (*Conversation, error)
	CreateConversation(ctx context.Context, conversation *Conversation) error
	UpdateConversationStatus(ctx context.Context, id int64, status ConversationStatus) error
	CountConversations(ctx context.Context, inboxID int64) (int, error)

	GetMessageBySourceID(ctx context.Context, inboxID int64, sourceID string) (*Message, error)
	CreateMessage(ctx context.Context, message *Message) error
	ListMessages(ctx context.Context, conversationID int64) ([]*Message, error)
	CountMessages(ctx context.Context, inboxID int64) (int, error)

	CreateAppliedSLA(ctx context.Context, sla *AppliedSLA) error
	SLAMetrics(ctx context.Context, accountID int64, since, until *time.Time, agentIDs []int64) (*SLAMetrics, error)
}
