// Package ingest implements the webhook ingestion pipeline: parsing
// platform events, resolving contacts, routing conversations, and
// materializing messages.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meridianhq/inboxd/store"
)

// ErrMalformedPayload marks webhook payloads that are missing required
// fields. These are dropped without retry.
var ErrMalformedPayload = errors.New("malformed webhook payload")

type Attachment struct {
	Type string
	URL  string
}

type StoryRef struct {
	ID  string
	URL string
}

// IncomingEvent is the canonical form of one messaging entry from a
// Messenger or Instagram webhook.
type IncomingEvent struct {
	Platform    store.Platform
	SenderID    string
	RecipientID string
	ExternalID  string
	SentAt      time.Time
	Content     string
	Attachments []Attachment

	// QuotedExternalID is the mid of the message this one replies to.
	QuotedExternalID string
	// Story is set for replies to a story (reply_to.story).
	Story *StoryRef
	// StoryMention is set when an attachment of type story_mention is
	// present; the story itself is fetched during materialization.
	StoryMention bool
	// Echo marks a message the platform delivered on our behalf.
	Echo bool
}

// ContactSourceID returns the platform id of the contact side of the event.
// For echoes the sender is our own page, so the contact is the recipient.
func (e *IncomingEvent) ContactSourceID() string {
	if e.Echo {
		return e.RecipientID
	}
	return e.SenderID
}

// PageID returns the platform id of our side of the event, used to find the
// channel the event belongs to.
func (e *IncomingEvent) PageID() string {
	if e.Echo {
		return e.SenderID
	}
	return e.RecipientID
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string           `json:"id"`
		Time      int64            `json:"time"`
		Messaging []messagingEntry `json:"messaging"`
	} `json:"entry"`
}

type messagingEntry struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		MID         string `json:"mid"`
		Text        string `json:"text"`
		IsEcho      bool   `json:"is_echo"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		} `json:"attachments"`
		ReplyTo *struct {
			MID   string `json:"mid"`
			Story *struct {
				ID  string `json:"id"`
				URL string `json:"url"`
			} `json:"story"`
		} `json:"reply_to"`
	} `json:"message"`
}

// ParseWebhook normalizes a raw webhook payload into canonical events.
// Entries without a message block (delivery and read receipts) are skipped.
func ParseWebhook(payload []byte) ([]IncomingEvent, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var platform store.Platform
	switch body.Object {
	case "page":
		platform = store.PlatformFacebook
	case "instagram":
		platform = store.PlatformInstagram
	default:
		return nil, fmt.Errorf("%w: unknown object %q", ErrMalformedPayload, body.Object)
	}

	var events []IncomingEvent
	for _, entry := range body.Entry {
		for _, messaging := range entry.Messaging {
			if messaging.Message == nil {
				continue
			}
			if messaging.Sender.ID == "" || messaging.Recipient.ID == "" {
				return nil, fmt.Errorf("%w: missing sender or recipient id", ErrMalformedPayload)
			}
			if messaging.Message.MID == "" {
				return nil, fmt.Errorf("%w: missing message mid", ErrMalformedPayload)
			}
			if messaging.Timestamp == 0 {
				return nil, fmt.Errorf("%w: missing timestamp", ErrMalformedPayload)
			}

			event := IncomingEvent{
				Platform:    platform,
				SenderID:    messaging.Sender.ID,
				RecipientID: messaging.Recipient.ID,
				ExternalID:  messaging.Message.MID,
				SentAt:      time.UnixMilli(messaging.Timestamp).UTC(),
				Content:     messaging.Message.Text,
				Echo:        messaging.Message.IsEcho,
			}
			for _, att := range messaging.Message.Attachments {
				if att.Type == "story_mention" {
					event.StoryMention = true
				}
				event.Attachments = append(event.Attachments, Attachment{
					Type: att.Type,
					URL:  att.Payload.URL,
				})
			}
			if replyTo := messaging.Message.ReplyTo; replyTo != nil {
				event.QuotedExternalID = replyTo.MID
				if replyTo.Story != nil {
					event.Story = &StoryRef{ID: replyTo.Story.ID, URL: replyTo.Story.URL}
				}
			}
			events = append(events, event)
		}
	}
	return events, nil
}
