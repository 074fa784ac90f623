// Package service implements the authorization code grant: request
// validation at authorize, one-time code issuance, authentication and
// consent, and code redemption at the token endpoint.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"git.sr.ht/~jakintosh/codeflow/internal/instrumentation"
)

// ErrInternal marks storage and other server-side faults.
var ErrInternal = errors.New("internal error")

const (
	DefaultCodeTTL      = 10 * time.Minute
	DefaultStoreTimeout = 5 * time.Second
)

// PasswordMode controls bcrypt cost for account password hashing.
type PasswordMode int

const (
	// PasswordModeProduction uses bcrypt.DefaultCost.
	PasswordModeProduction PasswordMode = iota
	// PasswordModeTesting uses bcrypt.MinCost and panics outside go test.
	PasswordModeTesting
)

func (m PasswordMode) Cost() int {
	if m != PasswordModeTesting {
		return bcrypt.DefaultCost
	}
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return bcrypt.MinCost
		}
	}
	panic("service: PasswordModeTesting used outside of test environment")
}

type Options struct {
	Clients   ClientRegistry
	Accounts  AccountStore
	Exchanges ExchangeStore
	Minter    Minter

	ResponseTypes    []string
	ChallengeMethods []string
	GrantTypes       []string

	CodeTTL      time.Duration
	StoreTimeout time.Duration
	PasswordMode PasswordMode

	Logger          *slog.Logger
	Instrumentation *instrumentation.Instrumentation

	// Now overrides the clock; used by tests to age codes.
	Now func() time.Time
}

// Service coordinates the grant flow. It depends on the store interfaces
// for persistence and holds no per-request state of its own.
type Service struct {
	clients   ClientRegistry
	accounts  AccountStore
	exchanges ExchangeStore
	minter    Minter

	responseTypes    []string
	challengeMethods []string
	grantTypes       []string

	codeTTL      time.Duration
	storeTimeout time.Duration
	passwordMode PasswordMode

	logger *slog.Logger
	inst   *instrumentation.Instrumentation
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

func New(opts Options) *Service {
	s := &Service{
		clients:          opts.Clients,
		accounts:         opts.Accounts,
		exchanges:        opts.Exchanges,
		minter:           opts.Minter,
		responseTypes:    opts.ResponseTypes,
		challengeMethods: opts.ChallengeMethods,
		grantTypes:       opts.GrantTypes,
		codeTTL:          opts.CodeTTL,
		storeTimeout:     opts.StoreTimeout,
		passwordMode:     opts.PasswordMode,
		logger:           opts.Logger,
		inst:             opts.Instrumentation,
		now:              opts.Now,
	}

	if len(s.responseTypes) == 0 {
		s.responseTypes = []string{"code"}
	}
	if len(s.challengeMethods) == 0 {
		s.challengeMethods = []string{"S256"}
	}
	if len(s.grantTypes) == 0 {
		s.grantTypes = []string{GrantTypeAuthorizationCode}
	}
	if s.codeTTL <= 0 {
		s.codeTTL = DefaultCodeTTL
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = DefaultStoreTimeout
	}
	if s.minter == nil {
		s.minter = OpaqueMinter{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.inst == nil {
		s.inst = instrumentation.Noop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CodeTTL is how long an issued code stays redeemable.
func (s *Service) CodeTTL() time.Duration {
	return s.codeTTL
}

func (s *Service) Clients() ClientRegistry {
	return s.clients
}

// PurgeExpired deletes exchange records older than the code TTL.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	n, err := s.exchanges.PurgeExchanges(ctx, s.notBefore())
	if err != nil {
		return 0, internalErr("failed to purge exchanges", err)
	}
	s.inst.Metrics().RecordExchangesPurged(ctx, n)
	return n, nil
}

// storeContext bounds a single storage call.
func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// notBefore is the oldest creation time a code may have and still be valid.
func (s *Service) notBefore() time.Time {
	return s.now().Add(-s.codeTTL)
}

func internalErr(msg string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, msg, err)
}
