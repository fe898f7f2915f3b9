package store

import (
	"context"
)

func (s *Store) GetContact(ctx context.Context, id int64) (*Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, avatar_url
		  FROM contacts
		 WHERE id = $1`, id)
	var contact Contact
	if err := row.Scan(&contact.ID, &contact.AccountID, &contact.Name, &contact.AvatarURL); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

func (s *Store) CreateContact(ctx context.Context, contact *Contact) error {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO contacts (account_id, name, avatar_url)
		VALUES ($1, $2, $3)
		RETURNING id`, contact.AccountID, contact.Name, contact.AvatarURL)
	return wrapInsertErr(row.Scan(&contact.ID))
}

func (s *Store) CountContacts(ctx context.Context, accountID int64) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM contacts WHERE account_id = $1`, accountID)
	var count int
	err := row.Scan(&count)
	return count, err
}

func (s *Store) GetContactInbox(ctx context.Context, inboxID int64, sourceID string) (*ContactInbox, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, contact_id, inbox_id, source_id
		  FROM contact_inboxes
		 WHERE inbox_id = $1 AND source_id = $2`, inboxID, sourceID)
	var ci ContactInbox
	if err := row.Scan(&ci.ID, &ci.ContactID, &ci.InboxID, &ci.SourceID); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &ci, nil
}

func (s *Store) CreateContactInbox(ctx context.Context, ci *ContactInbox) error {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO contact_inboxes (contact_id, inbox_id, source_id)
		VALUES ($1, $2, $3)
		RETURNING id`, ci.ContactID, ci.InboxID, ci.SourceID)
	return wrapInsertErr(row.Scan(&ci.ID))
}
