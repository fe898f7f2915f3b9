package store

import (
	"context"
	"database/sql"
)

const channelColumns = `id, account_id, platform, platform_id, access_token,
	authorization_error_count, reauthorization_required`

func scanChannel(row *sql.Row) (*Channel, error) {
	var ch Channel
	err := row.Scan(&ch.ID, &ch.AccountID, &ch.Platform, &ch.PlatformID,
		&ch.AccessToken, &ch.AuthorizationErrorCount, &ch.ReauthorizationRequired)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &ch, nil
}

func (s *Store) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	return scanChannel(s.db.QueryRowContext(ctx, `
		SELECT `+channelColumns+`
		  FROM channels
		 WHERE id = $1`, id))
}

func (s *Store) GetChannelByPlatformID(ctx context.Context, platform Platform, platformID string) (*Channel, error) {
	return scanChannel(s.db.QueryRowContext(ctx, `
		SELECT `+channelColumns+`
		  FROM channels
		 WHERE platform = $1 AND platform_id = $2`, platform, platformID))
}

func (s *Store) CreateChannel(ctx context.Context, channel *Channel) error {
	r := s.db.QueryRowContext(ctx, `
		INSERT INTO channels (account_id, platform, platform_id, access_token,
			authorization_error_count, reauthorization_required)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		channel.AccountID, channel.Platform, channel.PlatformID,
		channel.AccessToken, channel.AuthorizationErrorCount, channel.ReauthorizationRequired)
	return wrapInsertErr(r.Scan(&channel.ID))
}

// IncrementAuthErrorCount bumps the counter atomically and returns the new
// value.
func (s *Store) IncrementAuthErrorCount(ctx context.Context, channelID int64) (int, error) {
	r := s.db.QueryRowContext(ctx, `
		UPDATE channels
		   SET authorization_error_count = authorization_error_count + 1
		 WHERE id = $1
		RETURNING authorization_error_count`, channelID)
	var count int
	if err := r.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ResetAuthErrorCount(ctx context.Context, channelID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channels
		   SET authorization_error_count = 0,
		       reauthorization_required = FALSE
		 WHERE id = $1
		   AND (authorization_error_count > 0 OR reauthorization_required)`, channelID)
	return err
}

func (s *Store) MarkReauthorizationRequired(ctx context.Context, channelID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channels
		   SET reauthorization_required = TRUE
		 WHERE id = $1`, channelID)
	return err
}

func (s *Store) GetInboxByChannel(ctx context.Context, channelID int64) (*Inbox, error) {
	r := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, channel_id, name, greeting_enabled, lock_to_single_conversation
		  FROM inboxes
		 WHERE channel_id = $1`, channelID)
	var inbox Inbox
	err := r.Scan(&inbox.ID, &inbox.AccountID, &inbox.ChannelID, &inbox.Name,
		&inbox.GreetingEnabled, &inbox.LockToSingleConversation)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &inbox, nil
}

func (s *Store) CreateInbox(ctx context.Context, inbox *Inbox) error {
	r := s.db.QueryRowContext(ctx, `
		INSERT INTO inboxes (account_id, channel_id, name, greeting_enabled, lock_to_single_conversation)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		inbox.AccountID, inbox.ChannelID, inbox.Name,
		inbox.GreetingEnabled, inbox.LockToSingleConversation)
	return wrapInsertErr(r.Scan(&inbox.ID))
}
