package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

func (s *Store) InsertAccount(
	ctx context.Context,
	username string,
	passwordHash []byte,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (username, password_hash)
		VALUES (?, ?);`,
		username,
		passwordHash,
	)
	if err != nil {
		return fmt.Errorf("couldn't insert into accounts: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(
	ctx context.Context,
	username string,
) (
	*service.Account,
	error,
) {
	row := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash
		FROM accounts
		WHERE username=?;`,
		username,
	)

	var account service.Account
	if err := row.Scan(&account.Username, &account.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, service.ErrRecordNotFound
		}
		return nil, fmt.Errorf("couldn't scan account: %w", err)
	}
	return &account, nil
}
