package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"git.sr.ht/~jakintosh/codeflow/internal/pkce"
	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

func (s *Store) InsertExchange(
	ctx context.Context,
	record *service.ExchangeRecord,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange (
			code, state, challenge, challenge_method, client_id,
			callback_url, grant_type, scope, subject, redeemed, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		record.Code,
		record.State,
		record.Challenge,
		string(record.ChallengeMethod),
		record.ClientID,
		record.CallbackURL,
		record.GrantType,
		record.Scope,
		record.Subject,
		boolToInt(record.Redeemed),
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("couldn't insert into exchange: %w", err)
	}
	return nil
}

func (s *Store) GetExchange(
	ctx context.Context,
	code string,
) (
	*service.ExchangeRecord,
	error,
) {
	row := s.db.QueryRowContext(ctx, `
		SELECT code, state, challenge, challenge_method, client_id,
			callback_url, grant_type, scope, subject, redeemed, created_at
		FROM exchange
		WHERE code=?;`,
		code,
	)
	return scanExchange(row)
}

func (s *Store) FindRedeemableExchange(
	ctx context.Context,
	code string,
	grantType string,
	notBefore time.Time,
) (
	*service.ExchangeRecord,
	error,
) {
	row := s.db.QueryRowContext(ctx, `
		SELECT code, state, challenge, challenge_method, client_id,
			callback_url, grant_type, scope, subject, redeemed, created_at
		FROM exchange
		WHERE code=? AND grant_type=? AND redeemed=0 AND subject<>'' AND created_at>=?;`,
		code,
		grantType,
		notBefore.UnixMilli(),
	)
	return scanExchange(row)
}

func (s *Store) ApproveExchange(
	ctx context.Context,
	code string,
	subject string,
	notBefore time.Time,
) (
	bool,
	error,
) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE exchange
		SET subject=?
		WHERE code=? AND redeemed=0 AND subject='' AND created_at>=?;`,
		subject,
		code,
		notBefore.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("couldn't approve exchange: %w", err)
	}
	return !resultsEmpty(result), nil
}

// RedeemExchange flips redeemed in a single conditional UPDATE; the row
// count decides which of several concurrent callers won.
func (s *Store) RedeemExchange(
	ctx context.Context,
	code string,
	grantType string,
	notBefore time.Time,
) (
	bool,
	error,
) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE exchange
		SET redeemed=1
		WHERE code=? AND grant_type=? AND redeemed=0 AND subject<>'' AND created_at>=?;`,
		code,
		grantType,
		notBefore.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("couldn't redeem exchange: %w", err)
	}
	return !resultsEmpty(result), nil
}

func (s *Store) VoidExchange(
	ctx context.Context,
	code string,
) (
	bool,
	error,
) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE exchange
		SET redeemed=1
		WHERE code=? AND redeemed=0;`,
		code,
	)
	if err != nil {
		return false, fmt.Errorf("couldn't void exchange: %w", err)
	}
	return !resultsEmpty(result), nil
}

func (s *Store) PurgeExchanges(
	ctx context.Context,
	before time.Time,
) (
	int64,
	error,
) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM exchange
		WHERE created_at<?;`,
		before.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("couldn't delete from exchange: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("couldn't count purged exchanges: %w", err)
	}
	return n, nil
}

func scanExchange(row scanner) (*service.ExchangeRecord, error) {
	var (
		record    service.ExchangeRecord
		method    string
		redeemed  int
		createdAt int64
	)
	err := row.Scan(
		&record.Code,
		&record.State,
		&record.Challenge,
		&method,
		&record.ClientID,
		&record.CallbackURL,
		&record.GrantType,
		&record.Scope,
		&record.Subject,
		&redeemed,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, service.ErrRecordNotFound
		}
		return nil, fmt.Errorf("couldn't scan exchange: %w", err)
	}
	record.ChallengeMethod = pkce.Method(method)
	record.Redeemed = redeemed != 0
	record.CreatedAt = time.UnixMilli(createdAt)
	return &record, nil
}
