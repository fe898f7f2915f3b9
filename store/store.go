package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
)

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the Postgres-backed Datastore.
type Store struct {
	db   execQuerier
	root *sql.DB
}

var _ Datastore = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, root: db}
}

func (s *Store) WithTxn(ctx context.Context, fn func(Datastore) error) error {
	if s.root == nil {
		// Already transaction-bound, run in the same transaction.
		return fn(s)
	}
	tx, err := s.root.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Store{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateTables(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS accounts (
			id      BIGSERIAL PRIMARY KEY,
			name    TEXT NOT NULL,
			locale  TEXT NOT NULL DEFAULT 'en'
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS users (
			id          BIGSERIAL PRIMARY KEY,
			account_id  BIGINT NOT NULL REFERENCES accounts (id),
			name        TEXT NOT NULL,
			role        TEXT NOT NULL DEFAULT 'agent'
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS access_tokens (
			token    TEXT PRIMARY KEY,
			user_id  BIGINT NOT NULL REFERENCES users (id)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS channels (
			id                         BIGSERIAL PRIMARY KEY,
			account_id                 BIGINT NOT NULL REFERENCES accounts (id),
			platform                   TEXT NOT NULL,
			platform_id                TEXT NOT NULL,
			access_token               TEXT NOT NULL DEFAULT '',
			authorization_error_count  INTEGER NOT NULL DEFAULT 0,
			reauthorization_required   BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (platform, platform_id)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS inboxes (
			id                          BIGSERIAL PRIMARY KEY,
			account_id                  BIGINT NOT NULL REFERENCES accounts (id),
			channel_id                  BIGINT NOT NULL REFERENCES channels (id),
			name                        TEXT NOT NULL,
			greeting_enabled            BOOLEAN NOT NULL DEFAULT FALSE,
			lock_to_single_conversation BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (channel_id)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS contacts (
			id          BIGSERIAL PRIMARY KEY,
			account_id  BIGINT NOT NULL REFERENCES accounts (id),
			name        TEXT NOT NULL,
			avatar_url  TEXT NOT NULL DEFAULT ''
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS contact_inboxes (
			id          BIGSERIAL PRIMARY KEY,
			contact_id  BIGINT NOT NULL REFERENCES contacts (id),
			inbox_id    BIGINT NOT NULL REFERENCES inboxes (id),
			source_id   TEXT NOT NULL,
			UNIQUE (inbox_id, source_id)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS conversations (
			id                     BIGSERIAL PRIMARY KEY,
			account_id             BIGINT NOT NULL REFERENCES accounts (id),
			inbox_id               BIGINT NOT NULL REFERENCES inboxes (id),
			contact_id             BIGINT NOT NULL REFERENCES contacts (id),
			contact_inbox_id       BIGINT NOT NULL REFERENCES contact_inboxes (id),
			status                 TEXT NOT NULL DEFAULT 'open',
			assignee_id            BIGINT NULL REFERENCES users (id),
			additional_attributes  JSONB NOT NULL DEFAULT '{}',
			created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS messages (
			id                  BIGSERIAL PRIMARY KEY,
			account_id          BIGINT NOT NULL REFERENCES accounts (id),
			inbox_id            BIGINT NOT NULL REFERENCES inboxes (id),
			conversation_id     BIGINT NOT NULL REFERENCES conversations (id),
			message_type        TEXT NOT NULL,
			content             TEXT NOT NULL DEFAULT '',
			source_id           TEXT NOT NULL,
			content_attributes  JSONB NOT NULL DEFAULT '{}',
			sent_at             TIMESTAMPTZ NOT NULL,
			UNIQUE (inbox_id, source_id)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS attachments (
			id            BIGSERIAL PRIMARY KEY,
			message_id    BIGINT NOT NULL REFERENCES messages (id),
			file_type     TEXT NOT NULL,
			external_url  TEXT NOT NULL DEFAULT ''
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS applied_slas (
			id               BIGSERIAL PRIMARY KEY,
			account_id       BIGINT NOT NULL REFERENCES accounts (id),
			conversation_id  BIGINT NOT NULL REFERENCES conversations (id),
			sla_policy_id    BIGINT NOT NULL,
			sla_status       TEXT NOT NULL DEFAULT 'active',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// wrapInsertErr converts unique-index violations into ErrConflict so callers
// can retry the preceding lookup.
func wrapInsertErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
