package service_test

import (
	"context"
	"errors"
	"testing"

	"git.sr.ht/~jakintosh/codeflow/internal/pkce"
	"git.sr.ht/~jakintosh/codeflow/internal/service"
	"git.sr.ht/~jakintosh/codeflow/internal/testutil"
)

func TestAuthorize_Success(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)
	ctx := context.Background()
	sess := env.NewTestSession()

	auth, err := env.Service.Authorize(ctx, authorizeRequest("challenge"), sess)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if auth.Next != service.StepAuthenticate {
		t.Errorf("Next = %s, want authenticate", auth.Next)
	}
	if auth.CallbackURL != testutil.MultiCallbackURL {
		t.Errorf("CallbackURL = %s", auth.CallbackURL)
	}

	// session carries the binding
	if sess.OAuth == nil || sess.OAuth.Code != auth.Code || sess.OAuth.State != "state-1" {
		t.Fatalf("session binding = %+v", sess.OAuth)
	}
	if sess.Client == nil || sess.Client.ID != testutil.MultiCallbackClientID {
		t.Fatalf("session client = %+v", sess.Client)
	}

	// the exchange is recorded, pending approval
	record, err := env.DB.GetExchange(ctx, auth.Code)
	if err != nil {
		t.Fatalf("GetExchange failed: %v", err)
	}
	if record.Approved() || record.Redeemed {
		t.Errorf("new exchange should be pending: %+v", record)
	}
	if record.Challenge != "challenge" || record.ChallengeMethod != pkce.MethodS256 {
		t.Errorf("challenge = %s/%s", record.Challenge, record.ChallengeMethod)
	}
	if record.GrantType != service.GrantTypeAuthorizationCode {
		t.Errorf("GrantType = %s", record.GrantType)
	}
}

func TestAuthorize_Failures(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	tests := []struct {
		name   string
		modify func(*service.AuthorizeRequest)
		want   error
	}{
		{
			name:   "response type",
			modify: func(r *service.AuthorizeRequest) { r.ResponseType = "token" },
			want:   service.ErrResponseTypeNotValid,
		},
		{
			name:   "scope missing openid",
			modify: func(r *service.AuthorizeRequest) { r.Scope = "email profile" },
			want:   service.ErrScopeNotValid,
		},
		{
			name:   "client id missing",
			modify: func(r *service.AuthorizeRequest) { r.ClientID = "" },
			want:   service.ErrClientNotFound,
		},
		{
			name:   "client unknown",
			modify: func(r *service.AuthorizeRequest) { r.ClientID = "ghost" },
			want:   service.ErrClientNotFound,
		},
		{
			name:   "challenge missing",
			modify: func(r *service.AuthorizeRequest) { r.CodeChallenge = "" },
			want:   service.ErrCodeChallengeNotPresent,
		},
		{
			name:   "redirect missing with several callbacks",
			modify: func(r *service.AuthorizeRequest) { r.RedirectURI = "" },
			want:   service.ErrRedirectUriNotPresent,
		},
		{
			name:   "redirect not registered",
			modify: func(r *service.AuthorizeRequest) { r.RedirectURI = "https://app.example.com/other" },
			want:   service.ErrRedirectUriNotValid,
		},
		{
			name:   "challenge method not accepted",
			modify: func(r *service.AuthorizeRequest) { r.CodeChallengeMethod = "plain" },
			want:   service.ErrCodeChallengeMethodNotAccepted,
		},
		{
			name:   "prompt none unauthenticated",
			modify: func(r *service.AuthorizeRequest) { r.Prompt = "none" },
			want:   service.ErrInteractionRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := env.NewTestSession()
			req := authorizeRequest("challenge")
			tt.modify(&req)

			_, err := env.Service.Authorize(context.Background(), req, sess)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Authorize error = %v, want %v", err, tt.want)
			}
			if sess.PendingGrant() {
				t.Error("failed authorize must not bind a grant")
			}
		})
	}
}

func TestAuthorize_ScopeDelimiters(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	for _, scope := range []string{"openid", "profile openid", "email,openid"} {
		req := authorizeRequest("challenge")
		req.Scope = scope
		if _, err := env.Service.Authorize(context.Background(), req, env.NewTestSession()); err != nil {
			t.Errorf("scope %q rejected: %v", scope, err)
		}
	}
}

func TestAuthorize_SingleCallback(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	req := service.AuthorizeRequest{
		ClientID:     testutil.SingleCallbackClientID,
		ResponseType: "code",
		Scope:        "openid",
	}

	// absent redirect_uri resolves to the one callback
	auth, err := env.Service.Authorize(context.Background(), req, env.NewTestSession())
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if auth.CallbackURL != testutil.SingleCallbackURL {
		t.Errorf("CallbackURL = %s, want %s", auth.CallbackURL, testutil.SingleCallbackURL)
	}

	// a mismatched one is still rejected
	req.RedirectURI = "https://elsewhere.example.com/callback"
	_, err = env.Service.Authorize(context.Background(), req, env.NewTestSession())
	if !errors.Is(err, service.ErrRedirectUriNotValid) {
		t.Fatalf("Authorize error = %v, want RedirectUriNotValid", err)
	}
}

func TestAuthorize_AuthenticatedSessionGoesToConsent(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)
	env.RegisterTestAccount(t, testUsername, testPassword)
	ctx := context.Background()
	sess := env.NewTestSession()

	if _, err := env.Service.Authorize(ctx, authorizeRequest("c1"), sess); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if err := env.Service.Authenticate(ctx, sess, testUsername, testPassword); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	// a second authorize supersedes the first and skips login
	auth, err := env.Service.Authorize(ctx, authorizeRequest("c2"), sess)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if auth.Next != service.StepConsent {
		t.Errorf("Next = %s, want consent", auth.Next)
	}
	if sess.OAuth.Code != auth.Code {
		t.Error("session should be bound to the newest code")
	}

	// prompt=login forces the form again
	req := authorizeRequest("c3")
	req.Prompt = "login consent"
	auth, err = env.Service.Authorize(ctx, req, sess)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if auth.Next != service.StepAuthenticate {
		t.Errorf("Next = %s, want authenticate", auth.Next)
	}
}

func TestAuthorize_ConfiguredResponseTypes(t *testing.T) {
	t.Parallel()
	env := setupMemoryEnv(t, service.Options{
		ResponseTypes:    []string{"code", "code id_token"},
		ChallengeMethods: []string{"S256", "plain"},
	})

	req := authorizeRequest("plain-challenge")
	req.ResponseType = "code id_token"
	req.CodeChallengeMethod = "plain"
	if _, err := env.Service.Authorize(context.Background(), req, newSession(env.Clock.Now())); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
}
