package store

import (
	"context"
)

func (s *Store) GetAccount(ctx context.Context, id int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, locale
		  FROM accounts
		 WHERE id = $1`, id)
	var account Account
	if err := row.Scan(&account.ID, &account.Name, &account.Locale); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *Account) error {
	if account.Locale == "" {
		account.Locale = "en"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (name, locale)
		VALUES ($1, $2)
		RETURNING id`, account.Name, account.Locale)
	return row.Scan(&account.ID)
}

func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.Role == "" {
		user.Role = "agent"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (account_id, name, role)
		VALUES ($1, $2, $3)
		RETURNING id`, user.AccountID, user.Name, user.Role)
	return row.Scan(&user.ID)
}

func (s *Store) CreateAccessToken(ctx context.Context, token string, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_tokens (token, user_id)
		VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE
			SET user_id = $2`, token, userID)
	return err
}

func (s *Store) GetTokenUser(ctx context.Context, token string) (*TokenUser, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.account_id, u.role
		  FROM access_tokens t
		  JOIN users u ON u.id = t.user_id
		 WHERE t.token = $1`, token)
	var tu TokenUser
	if err := row.Scan(&tu.UserID, &tu.AccountID, &tu.Role); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &tu, nil
}
