package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// LatestConversation returns the most recent conversation between a contact
// and an inbox. Ties on created_at go to the highest id.
func (s *Store) LatestConversation(ctx context.Context, inboxID, contactID int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, inbox_id, contact_id, contact_inbox_id,
		       status, assignee_id, additional_attributes, created_at
		  FROM conversations
		 WHERE inbox_id = $1 AND contact_id = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, inboxID, contactID)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var assigneeID sql.NullInt64
	var attrs []byte
	err := row.Scan(&conv.ID, &conv.AccountID, &conv.InboxID, &conv.ContactID,
		&conv.ContactInboxID, &conv.Status, &assigneeID, &attrs, &conv.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	if assigneeID.Valid {
		conv.AssigneeID = &assigneeID.Int64
	}
	if err := json.Unmarshal(attrs, &conv.AdditionalAttributes); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *Store) CreateConversation(ctx context.Context, conversation *Conversation) error {
	if conversation.Status == "" {
		conversation.Status = ConversationStatusOpen
	}
	attrs, err := json.Marshal(conversation.AdditionalAttributes)
	if err != nil {
		return err
	}
	var assigneeID sql.NullInt64
	if conversation.AssigneeID != nil {
		assigneeID = sql.NullInt64{Int64: *conversation.AssigneeID, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (account_id, inbox_id, contact_id, contact_inbox_id,
			status, assignee_id, additional_attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		conversation.AccountID, conversation.InboxID, conversation.ContactID,
		conversation.ContactInboxID, conversation.Status, assigneeID, attrs)
	return wrapInsertErr(row.Scan(&conversation.ID, &conversation.CreatedAt))
}

func (s *Store) UpdateConversationStatus(ctx context.Context, id int64, status ConversationStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		   SET status = $2
		 WHERE id = $1`, id, status)
	return err
}

func (s *Store) CountConversations(ctx context.Context, inboxID int64) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversations WHERE inbox_id = $1`, inboxID)
	var count int
	err := row.Scan(&count)
	return count, err
}
