package api_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	"git.sr.ht/~jakintosh/codeflow/internal/session"
	"git.sr.ht/~jakintosh/codeflow/internal/testutil"
)

func fetch(t *testing.T, resp *http.Response, err error) testutil.HTTPResult {
	t.Helper()
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return testutil.HTTPResult{Code: resp.StatusCode, Headers: resp.Header, Body: body}
}

// TestEndToEnd_OAuth2Client drives the grant with a standard OAuth2 client
// library against a TLS server.
func TestEndToEnd_OAuth2Client(t *testing.T) {
	t.Parallel()

	styles := []struct {
		name  string
		style oauth2.AuthStyle
	}{
		{name: "params", style: oauth2.AuthStyleInParams},
		{name: "header", style: oauth2.AuthStyleInHeader},
	}

	for _, tt := range styles {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := testutil.SetupTestEnvWithRouter(t)
			env.RegisterTestAccount(t, testUsername, testPassword)

			server := httptest.NewTLSServer(env.Router)
			t.Cleanup(server.Close)
			conf := &oauth2.Config{
				ClientID:     testutil.MultiCallbackClientID,
				ClientSecret: testutil.MultiCallbackClientSecret,
				RedirectURL:  testutil.MultiCallbackURL,
				Scopes:       []string{"openid", "email"},
				Endpoint: oauth2.Endpoint{
					AuthURL:   server.URL + "/oauth/v2/authorize",
					TokenURL:  server.URL + "/oauth/v2/token",
					AuthStyle: tt.style,
				},
			}

			// browser with cookies that stops at the client callback
			jar, err := cookiejar.New(nil)
			if err != nil {
				t.Fatalf("cookiejar.New failed: %v", err)
			}
			browser := &http.Client{
				Transport: server.Client().Transport,
				Jar:       jar,
				CheckRedirect: func(*http.Request, []*http.Request) error {
					return http.ErrUseLastResponse
				},
			}

			verifier := oauth2.GenerateVerifier()
			authURL := conf.AuthCodeURL("e2e-state", oauth2.S256ChallengeOption(verifier))

			// login form
			resp, err := browser.Get(authURL)
			result := fetch(t, resp, err)
			testutil.ExpectStatus(t, http.StatusOK, result)

			// consent form
			resp, err = browser.PostForm(server.URL+"/oauth/v2/authenticate", url.Values{
				"username":        {testUsername},
				"password":        {testPassword},
				session.CSRFField: {testutil.CSRFToken(t, result)},
			})
			result = fetch(t, resp, err)
			testutil.ExpectStatus(t, http.StatusOK, result)

			// accept
			resp, err = browser.PostForm(server.URL+"/oauth/v2/grant", url.Values{
				"grant":           {"accept"},
				session.CSRFField: {testutil.CSRFToken(t, result)},
			})
			result = fetch(t, resp, err)
			redirect := testutil.ExpectRedirect(t, result)
			if redirect.Query().Get("state") != "e2e-state" {
				t.Fatalf("state = %q", redirect.Query().Get("state"))
			}

			// exchange through the client library
			ctx := context.WithValue(t.Context(), oauth2.HTTPClient, server.Client())
			token, err := conf.Exchange(ctx, redirect.Query().Get("code"), oauth2.VerifierOption(verifier))
			if err != nil {
				t.Fatalf("Exchange failed: %v", err)
			}
			if token.AccessToken == "" {
				t.Error("expected access token")
			}
			if token.Type() != "Bearer" {
				t.Errorf("token type = %q, want Bearer", token.Type())
			}
			if token.Extra("scope") != "openid email" {
				t.Errorf("scope = %v, want 'openid email'", token.Extra("scope"))
			}
			if token.Expiry.IsZero() {
				t.Error("expected expiry from expires_in")
			}

			// the library surfaces the reuse error
			_, err = conf.Exchange(ctx, redirect.Query().Get("code"), oauth2.VerifierOption(verifier))
			var re *oauth2.RetrieveError
			if !errors.As(err, &re) || re.ErrorCode != "invalid_grant" {
				t.Fatalf("reuse error = %v, want invalid_grant", err)
			}
		})
	}
}
