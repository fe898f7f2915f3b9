package store

import (
	"time"
)

type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
)

type ConversationStatus string

const (
	ConversationStatusOpen     ConversationStatus = "open"
	ConversationStatusPending  ConversationStatus = "pending"
	ConversationStatusResolved ConversationStatus = "resolved"
	ConversationStatusSnoozed  ConversationStatus = "snoozed"
)

type MessageType string

const (
	IncomingMessage MessageType = "incoming"
	OutgoingMessage MessageType = "outgoing"
	ActivityMessage MessageType = "activity"
	TemplateMessage MessageType = "template"
)

type SLAStatus string

const (
	SLAStatusHit    SLAStatus = "hit"
	SLAStatusMissed SLAStatus = "missed"
	SLAStatusActive SLAStatus = "active"
)

const RoleAdministrator = "administrator"

type Account struct {
	ID     int64
	Name   string
	Locale string
}

type User struct {
	ID        int64
	AccountID int64
	Name      string
	Role      string
}

// Channel binds an inbox to a Facebook page or an Instagram business
// account. PlatformID is the page/IG id appearing as sender or recipient in
// webhook events.
type Channel struct {
	ID                      int64
	AccountID               int64
	Platform                Platform
	PlatformID              string
	AccessToken             string
	AuthorizationErrorCount int
	ReauthorizationRequired bool
}

type Inbox struct {
	ID                       int64
	AccountID                int64
	ChannelID                int64
	Name                     string
	GreetingEnabled          bool
	LockToSingleConversation bool
}

type Contact struct {
	ID        int64
	AccountID int64
	Name      string
	AvatarURL string
}

// ContactInbox maps a platform sender id to a contact within one inbox.
// (inbox_id, source_id) is unique.
type ContactInbox struct {
	ID        int64
	ContactID int64
	InboxID   int64
	SourceID  string
}

type ConversationAttributes struct {
	Type                 string `json:"type,omitempty"`
	ConversationLanguage string `json:"conversation_language,omitempty"`
}

type Conversation struct {
	ID                   int64
	AccountID            int64
	InboxID              int64
	ContactID            int64
	ContactInboxID       int64
	Status               ConversationStatus
	AssigneeID           *int64
	AdditionalAttributes ConversationAttributes
	CreatedAt            time.Time
}

type ContentAttributes struct {
	InReplyTo           int64  `json:"in_reply_to,omitempty"`
	InReplyToExternalID string `json:"in_reply_to_external_id,omitempty"`
	StorySender         string `json:"story_sender,omitempty"`
	StoryID             string `json:"story_id,omitempty"`
	StoryURL            string `json:"story_url,omitempty"`
}

func (ca ContentAttributes) IsZero() bool {
	return ca == ContentAttributes{}
}

type Attachment struct {
	ID          int64
	MessageID   int64
	FileType    string
	ExternalURL string
}

// Message is one entry in a conversation. SourceID is the platform message
// id (mid) and is unique within an inbox.
type Message struct {
	ID                int64
	AccountID         int64
	InboxID           int64
	ConversationID    int64
	MessageType       MessageType
	Content           string
	SourceID          string
	ContentAttributes ContentAttributes
	SentAt            time.Time
	Attachments       []Attachment
}

type AppliedSLA struct {
	ID             int64
	AccountID      int64
	ConversationID int64
	SLAPolicyID    int64
	Status         SLAStatus
	CreatedAt      time.Time
}

type SLAMetrics struct {
	HitPercentage    float64 `json:"hit_percentage"`
	NumberOfBreaches int     `json:"number_of_breaches"`
}

// TokenUser is the owner of an API access token.
type TokenUser struct {
	UserID    int64
	AccountID int64
	Role      string
}
