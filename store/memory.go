package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Datastore with the same transactional semantics
// as the Postgres store: WithTxn serializes writers and rolls the state back
// when fn fails. It backs the pipeline tests and the dev seeder.
type MemStore struct {
	mu    sync.Mutex
	data  *memData
	inTxn bool
}

var _ Datastore = (*MemStore)(nil)

type memData struct {
	nextID         int64
	accounts       map[int64]*Account
	users          map[int64]*User
	tokens         map[string]int64
	channels       map[int64]*Channel
	inboxes        map[int64]*Inbox
	contacts       map[int64]*Contact
	contactInboxes map[int64]*ContactInbox
	conversations  map[int64]*Conversation
	messages       map[int64]*Message
	appliedSLAs    map[int64]*AppliedSLA
}

func NewMemStore() *MemStore {
	return &MemStore{data: &memData{
		accounts:       map[int64]*Account{},
		users:          map[int64]*User{},
		tokens:         map[string]int64{},
		channels:       map[int64]*Channel{},
		inboxes:        map[int64]*Inbox{},
		contacts:       map[int64]*Contact{},
		contactInboxes: map[int64]*ContactInbox{},
		conversations:  map[int64]*Conversation{},
		messages:       map[int64]*Message{},
		appliedSLAs:    map[int64]*AppliedSLA{},
	}}
}

func (d *memData) clone() *memData {
	out := &memData{
		nextID:         d.nextID,
		accounts:       map[int64]*Account{},
		users:          map[int64]*User{},
		tokens:         map[string]int64{},
		channels:       map[int64]*Channel{},
		inboxes:        map[int64]*Inbox{},
		contacts:       map[int64]*Contact{},
		contactInboxes: map[int64]*ContactInbox{},
		conversations:  map[int64]*Conversation{},
		messages:       map[int64]*Message{},
		appliedSLAs:    map[int64]*AppliedSLA{},
	}
	for id, v := range d.accounts {
		c := *v
		out.accounts[id] = &c
	}
	for id, v := range d.users {
		c := *v
		out.users[id] = &c
	}
	for t, id := range d.tokens {
		out.tokens[t] = id
	}
	for id, v := range d.channels {
		c := *v
		out.channels[id] = &c
	}
	for id, v := range d.inboxes {
		c := *v
		out.inboxes[id] = &c
	}
	for id, v := range d.contacts {
		c := *v
		out.contacts[id] = &c
	}
	for id, v := range d.contactInboxes {
		c := *v
		out.contactInboxes[id] = &c
	}
	for id, v := range d.conversations {
		c := *v
		if v.AssigneeID != nil {
			assignee := *v.AssigneeID
			c.AssigneeID = &assignee
		}
		out.conversations[id] = &c
	}
	for id, v := range d.messages {
		c := *v
		c.Attachments = append([]Attachment(nil), v.Attachments...)
		out.messages[id] = &c
	}
	for id, v := range d.appliedSLAs {
		c := *v
		out.appliedSLAs[id] = &c
	}
	return out
}

func (m *MemStore) WithTxn(ctx context.Context, fn func(Datastore) error) error {
	if m.inTxn {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.data.clone()
	txn := &MemStore{data: m.data, inTxn: true}
	if err := fn(txn); err != nil {
		*m.data = *snapshot
		return err
	}
	return nil
}

func (m *MemStore) unlock() {
	if !m.inTxn {
		m.mu.Unlock()
	}
}

func (m *MemStore) lock() {
	if !m.inTxn {
		m.mu.Lock()
	}
}

func (m *MemStore) allocID() int64 {
	m.data.nextID++
	return m.data.nextID
}

func (m *MemStore) GetAccount(ctx context.Context, id int64) (*Account, error) {
	m.lock()
	defer m.unlock()
	if a, ok := m.data.accounts[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (m *MemStore) CreateAccount(ctx context.Context, account *Account) error {
	m.lock()
	defer m.unlock()
	if account.Locale == "" {
		account.Locale = "en"
	}
	account.ID = m.allocID()
	c := *account
	m.data.accounts[account.ID] = &c
	return nil
}

func (m *MemStore) CreateUser(ctx context.Context, user *User) error {
	m.lock()
	defer m.unlock()
	if user.Role == "" {
		user.Role = "agent"
	}
	user.ID = m.allocID()
	c := *user
	m.data.users[user.ID] = &c
	return nil
}

func (m *MemStore) CreateAccessToken(ctx context.Context, token string, userID int64) error {
	m.lock()
	defer m.unlock()
	m.data.tokens[token] = userID
	return nil
}

func (m *MemStore) GetTokenUser(ctx context.Context, token string) (*TokenUser, error) {
	m.lock()
	defer m.unlock()
	userID, ok := m.data.tokens[token]
	if !ok {
		return nil, nil
	}
	user, ok := m.data.users[userID]
	if !ok {
		return nil, nil
	}
	return &TokenUser{UserID: user.ID, AccountID: user.AccountID, Role: user.Role}, nil
}

func (m *MemStore) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	m.lock()
	defer m.unlock()
	if ch, ok := m.data.channels[id]; ok {
		c := *ch
		return &c, nil
	}
	return nil, nil
}

func (m *MemStore) GetChannelByPlatformID(ctx context.Context, platform Platform, platformID string) (*Channel, error) {
	m.lock()
	defer m.unlock()
	for _, ch := range m.data.channels {
		if ch.Platform == platform && ch.PlatformID == platformID {
			c := *ch
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CreateChannel(ctx context.Context, channel *Channel) error {
	m.lock()
	defer m.unlock()
	for _, ch := range m.data.channels {
		if ch.Platform == channel.Platform && ch.PlatformID == channel.PlatformID {
			return ErrConflict
		}
	}
	channel.ID = m.allocID()
	c := *channel
	m.data.channels[channel.ID] = &c
	return nil
}

func (m *MemStore) IncrementAuthErrorCount(ctx context.Context, channelID int64) (int, error) {
	m.lock()
	defer m.unlock()
	ch, ok := m.data.channels[channelID]
	if !ok {
		return 0, nil
	}
	ch.AuthorizationErrorCount++
	return ch.AuthorizationErrorCount, nil
}

func (m *MemStore) ResetAuthErrorCount(ctx context.Context, channelID int64) error {
	m.lock()
	defer m.unlock()
	if ch, ok := m.data.channels[channelID]; ok {
		ch.AuthorizationErrorCount = 0
		ch.ReauthorizationRequired = false
	}
	return nil
}

func (m *MemStore) MarkReauthorizationRequired(ctx context.Context, channelID int64) error {
	m.lock()
	defer m.unlock()
	if ch, ok := m.data.channels[channelID]; ok {
		ch.ReauthorizationRequired = true
	}
	return nil
}

func (m *MemStore) GetInboxByChannel(ctx context.Context, channelID int64) (*Inbox, error) {
	m.lock()
	defer m.unlock()
	for _, inbox := range m.data.inboxes {
		if inbox.ChannelID == channelID {
			c := *inbox
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CreateInbox(ctx context.Context, inbox *Inbox) error {
	m.lock()
	defer m.unlock()
	for _, existing := range m.data.inboxes {
		if existing.ChannelID == inbox.ChannelID {
			return ErrConflict
		}
	}
	inbox.ID = m.allocID()
	c := *inbox
	m.data.inboxes[inbox.ID] = &c
	return nil
}

func (m *MemStore) GetContact(ctx context.Context, id int64) (*Contact, error) {
	m.lock()
	defer m.unlock()
	if contact, ok := m.data.contacts[id]; ok {
		c := *contact
		return &c, nil
	}
	return nil, nil
}

func (m *MemStore) CreateContact(ctx context.Context, contact *Contact) error {
	m.lock()
	defer m.unlock()
	contact.ID = m.allocID()
	c := *contact
	m.data.contacts[contact.ID] = &c
	return nil
}

func (m *MemStore) CountContacts(ctx context.Context, accountID int64) (int, error) {
	m.lock()
	defer m.unlock()
	count := 0
	for _, contact := range m.data.contacts {
		if contact.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (m *MemStore) GetContactInbox(ctx context.Context, inboxID int64, sourceID string) (*ContactInbox, error) {
	m.lock()
	defer m.unlock()
	for _, ci := range m.data.contactInboxes {
		if ci.InboxID == inboxID && ci.SourceID == sourceID {
			c := *ci
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CreateContactInbox(ctx context.Context, ci *ContactInbox) error {
	m.lock()
	defer m.unlock()
	for _, existing := range m.data.contactInboxes {
		if existing.InboxID == ci.InboxID && existing.SourceID == ci.SourceID {
			return ErrConflict
		}
	}
	ci.ID = m.allocID()
	c := *ci
	m.data.contactInboxes[ci.ID] = &c
	return nil
}

func (m *MemStore) LatestConversation(ctx context.Context, inboxID, contactID int64) (*Conversation, error) {
	m.lock()
	defer m.unlock()
	var latest *Conversation
	for _, conv := range m.data.conversations {
		if conv.InboxID != inboxID || conv.ContactID != contactID {
			continue
		}
		if latest == nil || conv.CreatedAt.After(latest.CreatedAt) ||
			(conv.CreatedAt.Equal(latest.CreatedAt) && conv.ID > latest.ID) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (m *MemStore) CreateConversation(ctx context.Context, conversation *Conversation) error {
	m.lock()
	defer m.unlock()
	if conversation.Status == "" {
		conversation.Status = ConversationStatusOpen
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now()
	}
	conversation.ID = m.allocID()
	c := *conversation
	m.data.conversations[conversation.ID] = &c
	return nil
}

func (m *MemStore) UpdateConversationStatus(ctx context.Context, id int64, status ConversationStatus) error {
	m.lock()
	defer m.unlock()
	if conv, ok := m.data.conversations[id]; ok {
		conv.Status = status
	}
	return nil
}

func (m *MemStore) CountConversations(ctx context.Context, inboxID int64) (int, error) {
	m.lock()
	defer m.unlock()
	count := 0
	for _, conv := range m.data.conversations {
		if conv.InboxID == inboxID {
			count++
		}
	}
	return count, nil
}

func (m *MemStore) GetMessageBySourceID(ctx context.Context, inboxID int64, sourceID string) (*Message, error) {
	m.lock()
	defer m.unlock()
	for _, msg := range m.data.messages {
		if msg.InboxID == inboxID && msg.SourceID == sourceID {
			c := *msg
			c.Attachments = append([]Attachment(nil), msg.Attachments...)
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CreateMessage(ctx context.Context, message *Message) error {
	m.lock()
	defer m.unlock()
	for _, existing := range m.data.messages {
		if existing.InboxID == message.InboxID && existing.SourceID == message.SourceID {
			return ErrConflict
		}
	}
	message.ID = m.allocID()
	for i := range message.Attachments {
		message.Attachments[i].ID = m.allocID()
		message.Attachments[i].MessageID = message.ID
	}
	c := *message
	c.Attachments = append([]Attachment(nil), message.Attachments...)
	m.data.messages[message.ID] = &c
	return nil
}

func (m *MemStore) ListMessages(ctx context.Context, conversationID int64) ([]*Message, error) {
	m.lock()
	defer m.unlock()
	var messages []*Message
	for _, msg := range m.data.messages {
		if msg.ConversationID == conversationID {
			c := *msg
			c.Attachments = append([]Attachment(nil), msg.Attachments...)
			messages = append(messages, &c)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].SentAt.Equal(messages[j].SentAt) {
			return messages[i].SentAt.Before(messages[j].SentAt)
		}
		return messages[i].SourceID < messages[j].SourceID
	})
	return messages, nil
}

func (m *MemStore) CountMessages(ctx context.Context, inboxID int64) (int, error) {
	m.lock()
	defer m.unlock()
	count := 0
	for _, msg := range m.data.messages {
		if msg.InboxID == inboxID {
			count++
		}
	}
	return count, nil
}

func (m *MemStore) CreateAppliedSLA(ctx context.Context, sla *AppliedSLA) error {
	m.lock()
	defer m.unlock()
	if sla.Status == "" {
		sla.Status = SLAStatusActive
	}
	if sla.CreatedAt.IsZero() {
		sla.CreatedAt = time.Now()
	}
	sla.ID = m.allocID()
	c := *sla
	m.data.appliedSLAs[sla.ID] = &c
	return nil
}

func (m *MemStore) SLAMetrics(ctx context.Context, accountID int64, since, until *time.Time, agentIDs []int64) (*SLAMetrics, error) {
	m.lock()
	defer m.unlock()
	agents := map[int64]bool{}
	for _, id := range agentIDs {
		agents[id] = true
	}
	var hits, misses int
	for _, sla := range m.data.appliedSLAs {
		if sla.AccountID != accountID {
			continue
		}
		if sla.Status != SLAStatusHit && sla.Status != SLAStatusMissed {
			continue
		}
		if since != nil && sla.CreatedAt.Before(*since) {
			continue
		}
		if until != nil && sla.CreatedAt.After(*until) {
			continue
		}
		if len(agents) > 0 {
			conv, ok := m.data.conversations[sla.ConversationID]
			if !ok || conv.AssigneeID == nil || !agents[*conv.AssigneeID] {
				continue
			}
		}
		if sla.Status == SLAStatusHit {
			hits++
		} else {
			misses++
		}
	}
	return ComputeSLAMetrics(hits, misses), nil
}
