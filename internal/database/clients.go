package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

func (s *Store) GetClient(
	ctx context.Context,
	id string,
) (
	*service.Client,
	error,
) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, secret, name, callback_urls, pkce_required
		FROM clients
		WHERE id=?;`,
		id,
	)

	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, service.ErrRecordNotFound
		}
		return nil, fmt.Errorf("couldn't scan client: %w", err)
	}
	return client, nil
}

// PutClient inserts client or replaces the row with the same id.
func (s *Store) PutClient(
	ctx context.Context,
	client *service.Client,
) error {
	callbacks, err := json.Marshal(client.CallbackURLs)
	if err != nil {
		return fmt.Errorf("couldn't encode callback urls: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET secret=?, name=?, callback_urls=?, pkce_required=?
		WHERE id=?;`,
		client.Secret,
		client.Name,
		string(callbacks),
		boolToInt(client.PKCERequired),
		client.ID,
	)
	if err != nil {
		return fmt.Errorf("couldn't update clients: %w", err)
	}
	if !resultsEmpty(result) {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (id, secret, name, callback_urls, pkce_required)
		VALUES (?, ?, ?, ?, ?);`,
		client.ID,
		client.Secret,
		client.Name,
		string(callbacks),
		boolToInt(client.PKCERequired),
	)
	if err != nil {
		return fmt.Errorf("couldn't insert into clients: %w", err)
	}
	return nil
}

func (s *Store) ListClients(
	ctx context.Context,
) (
	[]service.Client,
	error,
) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, secret, name, callback_urls, pkce_required
		FROM clients
		ORDER BY id;`,
	)
	if err != nil {
		return nil, fmt.Errorf("couldn't query clients: %w", err)
	}
	defer rows.Close()

	var clients []service.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("couldn't scan client: %w", err)
		}
		clients = append(clients, *client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("couldn't iterate clients: %w", err)
	}
	return clients, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*service.Client, error) {
	var (
		client       service.Client
		callbacks    string
		pkceRequired int
	)
	if err := row.Scan(
		&client.ID,
		&client.Secret,
		&client.Name,
		&callbacks,
		&pkceRequired,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(callbacks), &client.CallbackURLs); err != nil {
		return nil, fmt.Errorf("couldn't decode callback urls: %w", err)
	}
	client.PKCERequired = pkceRequired != 0
	return &client, nil
}
