package ingest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/meridianhq/inboxd/store"
)

const instagramConversationType = "instagram_direct_message"

// LanguageDetector infers the conversation_language attribute for new
// conversations. The default falls back to the account locale.
type LanguageDetector func(ctx context.Context, account *store.Account, content string) string

func DefaultLanguageDetector(ctx context.Context, account *store.Account, content string) string {
	if account != nil && account.Locale != "" {
		return account.Locale
	}
	return "en"
}

// ConversationRouter decides which conversation an event lands in, honoring
// the inbox's lock_to_single_conversation policy.
type ConversationRouter struct {
	DetectLanguage LanguageDetector
}

// Route returns the target conversation for the event.
//
// Unlocked inboxes reuse the latest conversation unless it is resolved, in
// which case a new one is created alongside it. Locked inboxes reopen the
// resolved conversation in place instead of creating a second row.
func (r *ConversationRouter) Route(ctx context.Context, ds store.Datastore, ev *IncomingEvent, inbox *store.Inbox, ci *store.ContactInbox) (*store.Conversation, error) {
	log := zerolog.Ctx(ctx).With().
		Str("component", "conversation_router").
		Int64("inbox_id", inbox.ID).
		Int64("contact_id", ci.ContactID).
		Logger()

	last, err := ds.LatestConversation(ctx, inbox.ID, ci.ContactID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		if last.Status != store.ConversationStatusResolved {
			return last, nil
		}
		if inbox.LockToSingleConversation {
			if err := ds.UpdateConversationStatus(ctx, last.ID, store.ConversationStatusOpen); err != nil {
				return nil, err
			}
			last.Status = store.ConversationStatusOpen
			log.Info().Int64("conversation_id", last.ID).Msg("reopened resolved conversation")
			return last, nil
		}
	}

	conversation := &store.Conversation{
		AccountID:            inbox.AccountID,
		InboxID:              inbox.ID,
		ContactID:            ci.ContactID,
		ContactInboxID:       ci.ID,
		Status:               store.ConversationStatusOpen,
		AdditionalAttributes: r.attributesFor(ctx, ds, ev, inbox),
	}
	if err := ds.CreateConversation(ctx, conversation); err != nil {
		return nil, err
	}
	log.Info().Int64("conversation_id", conversation.ID).Msg("created conversation")
	return conversation, nil
}

func (r *ConversationRouter) attributesFor(ctx context.Context, ds store.Datastore, ev *IncomingEvent, inbox *store.Inbox) store.ConversationAttributes {
	if ev.Platform != store.PlatformInstagram {
		return store.ConversationAttributes{}
	}
	detect := r.DetectLanguage
	if detect == nil {
		detect = DefaultLanguageDetector
	}
	account, err := ds.GetAccount(ctx, inbox.AccountID)
	if err != nil {
		account = nil
	}
	return store.ConversationAttributes{
		Type:                 instagramConversationType,
		ConversationLanguage: detect(ctx, account, ev.Content),
	}
}
