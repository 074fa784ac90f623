package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

// GetSession loads the session with id unless it expired at or before now.
func (s *Store) GetSession(
	ctx context.Context,
	id string,
	now time.Time,
) (
	*service.Session,
	error,
) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data, expires_at
		FROM session
		WHERE id=? AND expires_at>?;`,
		id,
		now.Unix(),
	)

	var (
		data      string
		expiresAt int64
	)
	if err := row.Scan(&data, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, service.ErrRecordNotFound
		}
		return nil, fmt.Errorf("couldn't scan session: %w", err)
	}

	var sess service.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("couldn't decode session: %w", err)
	}
	sess.ID = id
	sess.ExpiresAt = time.Unix(expiresAt, 0)
	return &sess, nil
}

func (s *Store) SaveSession(
	ctx context.Context,
	sess *service.Session,
) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("couldn't encode session: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE session
		SET data=?, expires_at=?
		WHERE id=?;`,
		string(data),
		sess.ExpiresAt.Unix(),
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("couldn't update session: %w", err)
	}
	if !resultsEmpty(result) {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session (id, data, expires_at)
		VALUES (?, ?, ?);`,
		sess.ID,
		string(data),
		sess.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("couldn't insert into session: %w", err)
	}
	return nil
}

func (s *Store) DeleteSession(
	ctx context.Context,
	id string,
) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM session
		WHERE id=?;`,
		id,
	)
	if err != nil {
		return fmt.Errorf("couldn't delete from session: %w", err)
	}
	return nil
}

// PurgeSessions deletes sessions that expired before now.
func (s *Store) PurgeSessions(
	ctx context.Context,
	now time.Time,
) (
	int64,
	error,
) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM session
		WHERE expires_at<=?;`,
		now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("couldn't delete from session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("couldn't count purged sessions: %w", err)
	}
	return n, nil
}
