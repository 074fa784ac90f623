package service_test

import (
	"context"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/codeflow/internal/logging"
	"git.sr.ht/~jakintosh/codeflow/internal/memory"
	"git.sr.ht/~jakintosh/codeflow/internal/pkce"
	"git.sr.ht/~jakintosh/codeflow/internal/service"
	"git.sr.ht/~jakintosh/codeflow/internal/testutil"
)

const (
	testUsername = "alice"
	testPassword = "securepassword"
)

// memoryEnv is a service backed by the in-memory stores.
type memoryEnv struct {
	Store   *memory.Store
	Service *service.Service
	Clock   *testutil.Clock
}

func setupMemoryEnv(
	t *testing.T,
	opts service.Options,
) *memoryEnv {
	t.Helper()
	store := memory.New()
	clock := testutil.NewClock()

	opts.Clients = store.ClientRegistry()
	opts.Accounts = store.AccountStore()
	opts.Exchanges = store.ExchangeStore()
	opts.PasswordMode = service.PasswordModeTesting
	opts.Logger = logging.Discard()
	opts.Now = clock.Now

	svc := service.New(opts)
	err := svc.RegisterClient(context.Background(), &service.Client{
		ID:           testutil.MultiCallbackClientID,
		Secret:       testutil.MultiCallbackClientSecret,
		Name:         "Multi Callback App",
		CallbackURLs: []string{testutil.MultiCallbackURL, testutil.MultiCallbackAltURL},
		PKCERequired: true,
	})
	if err != nil {
		t.Fatalf("RegisterClient failed: %v", err)
	}
	if err := svc.RegisterAccount(context.Background(), testUsername, testPassword); err != nil {
		t.Fatalf("RegisterAccount failed: %v", err)
	}
	return &memoryEnv{Store: store, Service: svc, Clock: clock}
}

func newSession(now time.Time) *service.Session {
	return &service.Session{ID: "sess-1", ExpiresAt: now.Add(time.Hour)}
}

func authorizeRequest(challenge string) service.AuthorizeRequest {
	return service.AuthorizeRequest{
		ClientID:            testutil.MultiCallbackClientID,
		ResponseType:        "code",
		Scope:               "openid",
		State:               "state-1",
		RedirectURI:         testutil.MultiCallbackURL,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}
}

func tokenRequest(code, verifier string) service.TokenRequest {
	return service.TokenRequest{
		GrantType:    service.GrantTypeAuthorizationCode,
		RedirectURI:  testutil.MultiCallbackURL,
		Code:         code,
		ClientID:     testutil.MultiCallbackClientID,
		ClientSecret: testutil.MultiCallbackClientSecret,
		CodeVerifier: verifier,
	}
}

// approvedCode runs authorize, authenticate and an accepting grant on svc
// and returns the code with its verifier.
func approvedCode(
	t *testing.T,
	svc *service.Service,
	now time.Time,
) (
	code string,
	verifier string,
) {
	t.Helper()
	ctx := context.Background()

	verifier, challenge, err := pkce.GenerateVerifier()
	if err != nil {
		t.Fatalf("GenerateVerifier failed: %v", err)
	}

	sess := newSession(now)
	auth, err := svc.Authorize(ctx, authorizeRequest(challenge), sess)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if err := svc.Authenticate(ctx, sess, testUsername, testPassword); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if _, err := svc.Grant(ctx, sess, service.DecisionAccept); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	return auth.Code, verifier
}
