// Package memory provides an in-memory implementation of every store the
// grant flow needs. It is suitable for tests and single-instance
// development; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
	"git.sr.ht/~jakintosh/codeflow/internal/session"
)

// Store implements service.ClientRegistry, service.AccountStore,
// service.ExchangeStore and session.Store. Records are copied on the way in
// and out so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	clients   map[string]*service.Client
	accounts  map[string]*service.Account
	exchanges map[string]*service.ExchangeRecord
	sessions  map[string]*service.Session
}

func New() *Store {
	return &Store{
		clients:   make(map[string]*service.Client),
		accounts:  make(map[string]*service.Account),
		exchanges: make(map[string]*service.ExchangeRecord),
		sessions:  make(map[string]*service.Session),
	}
}

func (s *Store) ClientRegistry() service.ClientRegistry { return s }
func (s *Store) AccountStore() service.AccountStore     { return s }
func (s *Store) ExchangeStore() service.ExchangeStore   { return s }
func (s *Store) SessionStore() session.Store            { return s }

// clients

func (s *Store) GetClient(_ context.Context, id string) (*service.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, service.ErrRecordNotFound
	}
	return cloneClient(client), nil
}

func (s *Store) PutClient(_ context.Context, client *service.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[client.ID] = cloneClient(client)
	return nil
}

func (s *Store) ListClients(_ context.Context) ([]service.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]service.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, *cloneClient(client))
	}
	slices.SortFunc(clients, func(a, b service.Client) int {
		return strings.Compare(a.ID, b.ID)
	})
	return clients, nil
}

func cloneClient(c *service.Client) *service.Client {
	clone := *c
	clone.CallbackURLs = slices.Clone(c.CallbackURLs)
	return &clone
}

// accounts

func (s *Store) GetAccount(_ context.Context, username string) (*service.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[username]
	if !ok {
		return nil, service.ErrRecordNotFound
	}
	return &service.Account{
		Username:     account.Username,
		PasswordHash: slices.Clone(account.PasswordHash),
	}, nil
}

func (s *Store) InsertAccount(_ context.Context, username string, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[username]; exists {
		return fmt.Errorf("account '%s' already exists", username)
	}
	s.accounts[username] = &service.Account{
		Username:     username,
		PasswordHash: slices.Clone(passwordHash),
	}
	return nil
}

// exchanges

func (s *Store) InsertExchange(_ context.Context, record *service.ExchangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.exchanges[record.Code]; exists {
		return fmt.Errorf("exchange code already exists")
	}
	clone := *record
	s.exchanges[record.Code] = &clone
	return nil
}

func (s *Store) GetExchange(_ context.Context, code string) (*service.ExchangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.exchanges[code]
	if !ok {
		return nil, service.ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *Store) FindRedeemableExchange(
	_ context.Context,
	code string,
	grantType string,
	notBefore time.Time,
) (
	*service.ExchangeRecord,
	error,
) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.exchanges[code]
	if !ok || !redeemable(record, grantType, notBefore) {
		return nil, service.ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *Store) ApproveExchange(
	_ context.Context,
	code string,
	subject string,
	notBefore time.Time,
) (
	bool,
	error,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.exchanges[code]
	if !ok ||
		record.Redeemed ||
		record.Approved() ||
		record.CreatedAt.Before(notBefore) {
		return false, nil
	}
	record.Subject = subject
	return true, nil
}

// RedeemExchange is the check-and-set that makes redemption at-most-once.
// It must hold the write lock across both the check and the update.
func (s *Store) RedeemExchange(
	_ context.Context,
	code string,
	grantType string,
	notBefore time.Time,
) (
	bool,
	error,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.exchanges[code]
	if !ok || !redeemable(record, grantType, notBefore) {
		return false, nil
	}
	record.Redeemed = true
	return true, nil
}

func (s *Store) VoidExchange(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.exchanges[code]
	if !ok || record.Redeemed {
		return false, nil
	}
	record.Redeemed = true
	return true, nil
}

func (s *Store) PurgeExchanges(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for code, record := range s.exchanges {
		if record.CreatedAt.Before(before) {
			delete(s.exchanges, code)
			purged++
		}
	}
	return purged, nil
}

func redeemable(record *service.ExchangeRecord, grantType string, notBefore time.Time) bool {
	return record.GrantType == grantType &&
		record.Approved() &&
		!record.Redeemed &&
		!record.CreatedAt.Before(notBefore)
}

// sessions

func (s *Store) GetSession(_ context.Context, id string, now time.Time) (*service.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || !now.Before(sess.ExpiresAt) {
		return nil, service.ErrRecordNotFound
	}
	return cloneSession(sess), nil
}

func (s *Store) SaveSession(_ context.Context, sess *service.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *Store) PurgeSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, id)
			purged++
		}
	}
	return purged, nil
}

func cloneSession(sess *service.Session) *service.Session {
	clone := *sess
	if sess.Account != nil {
		account := *sess.Account
		clone.Account = &account
	}
	if sess.OAuth != nil {
		binding := *sess.OAuth
		clone.OAuth = &binding
	}
	if sess.Client != nil {
		client := *sess.Client
		clone.Client = &client
	}
	return &clone
}
