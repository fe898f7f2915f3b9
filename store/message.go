package store

import (
	"context"
	"encoding/json"
)

func (s *Store) GetMessageBySourceID(ctx context.Context, inboxID int64, sourceID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, inbox_id, conversation_id, message_type,
		       content, source_id, content_attributes, sent_at
		  FROM messages
		 WHERE inbox_id = $1 AND source_id = $2`, inboxID, sourceID)
	var msg Message
	var attrs []byte
	err := row.Scan(&msg.ID, &msg.AccountID, &msg.InboxID, &msg.ConversationID,
		&msg.MessageType, &msg.Content, &msg.SourceID, &attrs, &msg.SentAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(attrs, &msg.ContentAttributes); err != nil {
		return nil, err
	}
	return &msg, nil
}

// CreateMessage inserts the message and its attachment rows.
func (s *Store) CreateMessage(ctx context.Context, message *Message) error {
	attrs, err := json.Marshal(message.ContentAttributes)
	if err != nil {
		return err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (account_id, inbox_id, conversation_id, message_type,
			content, source_id, content_attributes, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		message.AccountID, message.InboxID, message.ConversationID, message.MessageType,
		message.Content, message.SourceID, attrs, message.SentAt)
	if err := wrapInsertErr(row.Scan(&message.ID)); err != nil {
		return err
	}
	for i := range message.Attachments {
		att := &message.Attachments[i]
		att.MessageID = message.ID
		r := s.db.QueryRowContext(ctx, `
			INSERT INTO attachments (message_id, file_type, external_url)
			VALUES ($1, $2, $3)
			RETURNING id`, att.MessageID, att.FileType, att.ExternalURL)
		if err := r.Scan(&att.ID); err != nil {
			return err
		}
	}
	return nil
}

// ListMessages returns the conversation's messages in their total order:
// sent_at ascending, ties broken by source_id.
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, inbox_id, conversation_id, message_type,
		       content, source_id, content_attributes, sent_at
		  FROM messages
		 WHERE conversation_id = $1
		 ORDER BY sent_at, source_id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var attrs []byte
		err := rows.Scan(&msg.ID, &msg.AccountID, &msg.InboxID, &msg.ConversationID,
			&msg.MessageType, &msg.Content, &msg.SourceID, &attrs, &msg.SentAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(attrs, &msg.ContentAttributes); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func (s *Store) CountMessages(ctx context.Context, inboxID int64) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE inbox_id = $1`, inboxID)
	var count int
	err := row.Scan(&count)
	return count, err
}
