package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meridianhq/inboxd/graphapi"
	"github.com/meridianhq/inboxd/store"
)

// DeletedStoryContent replaces the message body when the referenced story
// was deleted before we could fetch it.
const DeletedStoryContent = "This story is no longer available."

var supportedAttachmentTypes = map[string]bool{
	"image":         true,
	"video":         true,
	"audio":         true,
	"file":          true,
	"share":         true,
	"location":      true,
	"story_mention": true,
}

// UnsupportedAttachmentsOnly reports whether the event carries attachments
// and none of them is of a type we can persist. Such events keep their
// contact but produce neither a conversation nor a message.
func UnsupportedAttachmentsOnly(ev *IncomingEvent) bool {
	if len(ev.Attachments) == 0 {
		return false
	}
	for _, att := range ev.Attachments {
		if supportedAttachmentTypes[att.Type] {
			return false
		}
	}
	return true
}

type StoryFetcher interface {
	GetStory(ctx context.Context, accessToken, messageID string) (*graphapi.Story, error)
}

// MessageMaterializer turns a routed event into a persisted message.
type MessageMaterializer struct {
	Stories StoryFetcher
}

// Materialize creates the message row for the event, or returns (nil, nil)
// when a message with the same source_id already exists in the inbox. The
// duplicate rule is uniform across incoming kinds and echoes.
func (m *MessageMaterializer) Materialize(ctx context.Context, ds store.Datastore, ev *IncomingEvent, conversation *store.Conversation, channel *store.Channel) (*store.Message, error) {
	log := zerolog.Ctx(ctx).With().
		Str("component", "message_materializer").
		Str("source_id", ev.ExternalID).
		Int64("conversation_id", conversation.ID).
		Logger()

	existing, err := ds.GetMessageBySourceID(ctx, conversation.InboxID, ev.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Debug().Int64("message_id", existing.ID).Msg("message already materialized, skipping")
		return nil, nil
	}

	messageType := store.IncomingMessage
	if ev.Echo {
		messageType = store.OutgoingMessage
	}

	content := ev.Content
	attachments := persistableAttachments(ev)
	var attrs store.ContentAttributes

	switch {
	case ev.StoryMention:
		story, err := m.Stories.GetStory(ctx, channel.AccessToken, ev.ExternalID)
		switch {
		case err == nil:
			attrs.StorySender = story.Sender
			attrs.StoryID = story.ID
			attrs.StoryURL = story.URL
		case graphapi.IsDeletedResource(err):
			log.Info().Msg("mentioned story was deleted, storing stub content")
			content = DeletedStoryContent
			attachments = nil
		default:
			return nil, fmt.Errorf("fetch mentioned story: %w", err)
		}
	case ev.Story != nil:
		// A reply to one of our own stories; the story sender is our side
		// of the channel.
		attrs.StorySender = channel.PlatformID
		attrs.StoryID = ev.Story.ID
		attrs.StoryURL = ev.Story.URL
	}

	if ev.QuotedExternalID != "" && ev.Story == nil {
		attrs.InReplyToExternalID = ev.QuotedExternalID
		source, err := ds.GetMessageBySourceID(ctx, conversation.InboxID, ev.QuotedExternalID)
		if err != nil {
			return nil, err
		}
		if source != nil {
			attrs.InReplyTo = source.ID
		}
	}

	message := &store.Message{
		AccountID:         conversation.AccountID,
		InboxID:           conversation.InboxID,
		ConversationID:    conversation.ID,
		MessageType:       messageType,
		Content:           content,
		SourceID:          ev.ExternalID,
		ContentAttributes: attrs,
		SentAt:            ev.SentAt,
		Attachments:       attachments,
	}
	if err := ds.CreateMessage(ctx, message); err != nil {
		return nil, err
	}
	log.Info().Int64("message_id", message.ID).Str("message_type", string(messageType)).Msg("materialized message")
	return message, nil
}

func persistableAttachments(ev *IncomingEvent) []store.Attachment {
	var out []store.Attachment
	for _, att := range ev.Attachments {
		if !supportedAttachmentTypes[att.Type] {
			continue
		}
		out = append(out, store.Attachment{FileType: att.Type, ExternalURL: att.URL})
	}
	return out
}
