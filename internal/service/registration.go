package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidClient = errors.New("invalid client definition")

// RegisterAccount hashes password and stores a new account.
func (s *Service) RegisterAccount(
	ctx context.Context,
	username string,
	password string,
) error {
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordMode.Cost())
	if err != nil {
		return internalErr("failed to hash password", err)
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.accounts.InsertAccount(ctx, username, hash); err != nil {
		return internalErr("failed to insert account", err)
	}
	return nil
}

// RegisterClient validates client and stores it, replacing any client
// with the same id.
func (s *Service) RegisterClient(
	ctx context.Context,
	client *Client,
) error {
	if err := ValidateClient(client); err != nil {
		return err
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.clients.PutClient(ctx, client); err != nil {
		return internalErr("failed to put client", err)
	}
	return nil
}

// ValidateClient checks the registry invariants: an id, a secret, and at
// least one absolute callback URL.
func ValidateClient(client *Client) error {
	if client.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidClient)
	}
	if client.Secret == "" {
		return fmt.Errorf("%w: %s: secret is required", ErrInvalidClient, client.ID)
	}
	if len(client.CallbackURLs) == 0 {
		return fmt.Errorf("%w: %s: at least one callback url is required", ErrInvalidClient, client.ID)
	}
	for _, cb := range client.CallbackURLs {
		u, err := url.Parse(cb)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("%w: %s: callback '%s' is not an absolute url", ErrInvalidClient, client.ID, cb)
		}
		if u.Fragment != "" {
			return fmt.Errorf("%w: %s: callback '%s' must not have a fragment", ErrInvalidClient, client.ID, cb)
		}
	}
	return nil
}

// Development seeds.
const (
	SeedClientID     = "test-client_123"
	SeedClientSecret = "6koyn9KpRuofYt2U"
	SeedClientName   = "Test Code Flow"
	SeedUsername     = "test"
	SeedPassword     = "test"
)

var SeedCallbackURLs = []string{
	"https://oauth.tools/callback/code",
	"https://test.com/callback",
	"https://example.com/callback",
}

// Seed installs the development client and account unless they exist.
func (s *Service) Seed(ctx context.Context) error {
	if _, err := s.getClient(ctx, SeedClientID); errors.Is(err, ErrClientNotFound) {
		err := s.RegisterClient(ctx, &Client{
			ID:           SeedClientID,
			Secret:       SeedClientSecret,
			Name:         SeedClientName,
			CallbackURLs: SeedCallbackURLs,
			PKCERequired: true,
		})
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if _, err := s.getPasswordHash(ctx, SeedUsername); errors.Is(err, ErrRecordNotFound) {
		if err := s.RegisterAccount(ctx, SeedUsername, SeedPassword); err != nil {
			return err
		}
	} else if err != nil {
		return internalErr("failed to get account", err)
	}

	s.logger.Info("development seeds installed",
		"client_id", SeedClientID,
		"username", SeedUsername,
	)
	return nil
}
