package store

import (
	"context"
	"fmt"
)

// Fixtures builds domain objects with explicit parameters. It exists for
// tests and the dev seeder; production rows come from provisioning, not from
// this file.
type Fixtures struct {
	DS Datastore
}

func (f Fixtures) Account(ctx context.Context, name string) (*Account, error) {
	account := &Account{Name: name}
	if err := f.DS.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Inbox creates an account, a channel, and an inbox bound together.
func (f Fixtures) Inbox(ctx context.Context, platform Platform, platformID string, lockToSingle bool) (*Account, *Channel, *Inbox, error) {
	account, err := f.Account(ctx, fmt.Sprintf("%s account", platform))
	if err != nil {
		return nil, nil, nil, err
	}
	channel := &Channel{
		AccountID:   account.ID,
		Platform:    platform,
		PlatformID:  platformID,
		AccessToken: "channel-token",
	}
	if err := f.DS.CreateChannel(ctx, channel); err != nil {
		return nil, nil, nil, err
	}
	inbox := &Inbox{
		AccountID:                account.ID,
		ChannelID:                channel.ID,
		Name:                     fmt.Sprintf("%s inbox", platform),
		LockToSingleConversation: lockToSingle,
	}
	if err := f.DS.CreateInbox(ctx, inbox); err != nil {
		return nil, nil, nil, err
	}
	return account, channel, inbox, nil
}

func (f Fixtures) Contact(ctx context.Context, inbox *Inbox, name, sourceID string) (*Contact, *ContactInbox, error) {
	contact := &Contact{AccountID: inbox.AccountID, Name: name}
	if err := f.DS.CreateContact(ctx, contact); err != nil {
		return nil, nil, err
	}
	ci := &ContactInbox{ContactID: contact.ID, InboxID: inbox.ID, SourceID: sourceID}
	if err := f.DS.CreateContactInbox(ctx, ci); err != nil {
		return nil, nil, err
	}
	return contact, ci, nil
}

func (f Fixtures) Conversation(ctx context.Context, inbox *Inbox, ci *ContactInbox, status ConversationStatus) (*Conversation, error) {
	conversation := &Conversation{
		AccountID:      inbox.AccountID,
		InboxID:        inbox.ID,
		ContactID:      ci.ContactID,
		ContactInboxID: ci.ID,
		Status:         status,
	}
	if err := f.DS.CreateConversation(ctx, conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (f Fixtures) User(ctx context.Context, accountID int64, name, role, token string) (*User, error) {
	user := &User{AccountID: accountID, Name: name, Role: role}
	if err := f.DS.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	if token != "" {
		if err := f.DS.CreateAccessToken(ctx, token, user.ID); err != nil {
			return nil, err
		}
	}
	return user, nil
}
