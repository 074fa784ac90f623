package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"git.sr.ht/~jakintosh/codeflow/internal/instrumentation"
)

// PendingClient returns the client of the grant in flight on sess.
func (s *Service) PendingClient(sess *Session) (*ClientSnapshot, error) {
	if !sess.PendingGrant() {
		return nil, ErrGrantNotPending
	}
	return sess.Client, nil
}

// Authenticate checks username and password against the account store and
// marks sess authenticated. Unknown accounts and wrong passwords fail the
// same way.
func (s *Service) Authenticate(
	ctx context.Context,
	sess *Session,
	username string,
	password string,
) (
	err error,
) {
	ctx, span := s.inst.StartSpan(ctx, "service.Authenticate")
	defer func() { instrumentation.EndSpan(span, err) }()

	if !sess.PendingGrant() {
		return ErrGrantNotPending
	}

	hash, err := s.getPasswordHash(ctx, username)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			// spend the same bcrypt work as a real comparison
			_ = bcrypt.CompareHashAndPassword(s.dummyPasswordHash(), []byte(password))
			return ErrAccountCredentialsDoNotMatch
		}
		return internalErr("failed to get account", err)
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrAccountCredentialsDoNotMatch
	}

	sess.Account = &SessionAccount{
		Username:        username,
		IsAuthenticated: true,
		AuthenticatedAt: s.now(),
	}
	s.logger.Debug("account authenticated", "client_id", sess.Client.ID)
	return nil
}

func (s *Service) getPasswordHash(ctx context.Context, username string) ([]byte, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	account, err := s.accounts.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	return account.PasswordHash, nil
}

func (s *Service) dummyPasswordHash() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("codeflow-dummy-password"), s.passwordMode.Cost())
		if err != nil {
			s.logger.Error("failed to generate dummy password hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
