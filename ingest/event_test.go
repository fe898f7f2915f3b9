package ingest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/inboxd/ingest"
	"github.com/meridianhq/inboxd/store"
)

func TestParseWebhook_TextMessage(t *testing.T) {
	payload := []byte(`{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"time": 1700000000000,
			"messaging": [{
				"sender": {"id": "user-1"},
				"recipient": {"id": "page-1"},
				"timestamp": 1700000001234,
				"message": {"mid": "mid.1", "text": "hello there"}
			}]
		}]
	}`)

	events, err := ingest.ParseWebhook(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, store.PlatformFacebook, ev.Platform)
	assert.Equal(t, "user-1", ev.SenderID)
	assert.Equal(t, "page-1", ev.RecipientID)
	assert.Equal(t, "mid.1", ev.ExternalID)
	assert.Equal(t, "hello there", ev.Content)
	assert.Equal(t, time.UnixMilli(1700000001234).UTC(), ev.SentAt)
	assert.False(t, ev.Echo)
	assert.Empty(t, ev.Attachments)
}

func TestParseWebhook_InstagramStoryMention(t *testing.T) {
	payload := []byte(`{
		"object": "instagram",
		"entry": [{
			"messaging": [{
				"sender": {"id": "ig-user"},
				"recipient": {"id": "ig-biz"},
				"timestamp": 1700000000000,
				"message": {
					"mid": "mid.story",
					"attachments": [{"type": "story_mention", "payload": {"url": "https://cdn.example/story.jpg"}}]
				}
			}]
		}]
	}`)

	events, err := ingest.ParseWebhook(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, store.PlatformInstagram, ev.Platform)
	assert.True(t, ev.StoryMention)
	require.Len(t, ev.Attachments, 1)
	assert.Equal(t, "story_mention", ev.Attachments[0].Type)
	assert.Equal(t, "https://cdn.example/story.jpg", ev.Attachments[0].URL)
}

func TestParseWebhook_StoryReply(t *testing.T) {
	payload := []byte(`{
		"object": "instagram",
		"entry": [{
			"messaging": [{
				"sender": {"id": "ig-user"},
				"recipient": {"id": "ig-biz"},
				"timestamp": 1700000000000,
				"message": {
					"mid": "mid.reply",
					"text": "nice story",
					"reply_to": {"story": {"id": "story-9", "url": "https://cdn.example/story-9"}}
				}
			}]
		}]
	}`)

	events, err := ingest.ParseWebhook(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	require.NotNil(t, ev.Story)
	assert.Equal(t, "story-9", ev.Story.ID)
	assert.Equal(t, "https://cdn.example/story-9", ev.Story.URL)
	assert.False(t, ev.StoryMention)
}

func TestParseWebhook_QuotedReply(t *testing.T) {
	payload := []byte(`{
		"object": "page",
		"entry": [{
			"messaging": [{
				"sender": {"id": "user-1"},
				"recipient": {"id": "page-1"},
				"timestamp": 1700000000000,
				"message": {"mid": "mid.2", "text": "replying", "reply_to": {"mid": "mid.1"}}
			}]
		}]
	}`)

	events, err := ingest.ParseWebhook(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "mid.1", events[0].QuotedExternalID)
	assert.Nil(t, events[0].Story)
}

func TestParseWebhook_Echo(t *testing.T) {
	payload := []byte(`{
		"object": "page",
		"entry": [{
			"messaging": [{
				"sender": {"id": "page-1"},
				"recipient": {"id": "user-1"},
				"timestamp": 1700000000000,
				"message": {"mid": "mid.echo", "text": "our reply", "is_echo": true}
			}]
		}]
	}`)

	events, err := ingest.ParseWebhook(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.True(t, ev.Echo)
	// For echoes the contact is the recipient and our page is the sender.
	assert.Equal(t, "user-1", ev.ContactSourceID())
	assert.Equal(t, "page-1", ev.PageID())
}

func TestParseWebhook_SkipsNonMessageEntries(t *testing.T) {
	payload := []byte(`{
		"object": "page",
		"entry": [{
			"messaging": [
				{"sender": {"id": "user-1"}, "recipient": {"id": "page-1"}, "timestamp": 1700000000000},
				{"sender": {"id": "user-1"}, "recipient": {"id": "page-1"}, "timestamp": 1700000000001,
				 "message": {"mid": "mid.1", "text": "hi"}}
			]
		}]
	}`)

	events, err := ingest.ParseWebhook(payload)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestParseWebhook_Malformed(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"invalid json", `{`},
		{"unknown object", `{"object": "whatsapp", "entry": []}`},
		{"missing sender", `{"object": "page", "entry": [{"messaging": [{"recipient": {"id": "p"}, "timestamp": 1, "message": {"mid": "m"}}]}]}`},
		{"missing mid", `{"object": "page", "entry": [{"messaging": [{"sender": {"id": "u"}, "recipient": {"id": "p"}, "timestamp": 1, "message": {"text": "x"}}]}]}`},
		{"missing timestamp", `{"object": "page", "entry": [{"messaging": [{"sender": {"id": "u"}, "recipient": {"id": "p"}, "message": {"mid": "m"}}]}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ingest.ParseWebhook([]byte(tc.payload))
			assert.ErrorIs(t, err, ingest.ErrMalformedPayload)
		})
	}
}
