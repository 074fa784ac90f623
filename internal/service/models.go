package service

import (
	"slices"
	"time"

	"git.sr.ht/~jakintosh/codeflow/internal/pkce"
)

// Client is a registered OAuth consumer. CallbackURLs is never empty.
type Client struct {
	ID           string   `json:"id"`
	Secret       string   `json:"secret"`
	Name         string   `json:"name"`
	CallbackURLs []string `json:"callback_urls"`
	PKCERequired bool     `json:"pkce_required"`
}

func (c *Client) HasCallback(u string) bool {
	return slices.Contains(c.CallbackURLs, u)
}

// Snapshot is the part of a client held in session state.
func (c *Client) Snapshot() *ClientSnapshot {
	return &ClientSnapshot{ID: c.ID, Name: c.Name}
}

type ClientSnapshot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Account struct {
	Username     string
	PasswordHash []byte
}

const GrantTypeAuthorizationCode = "authorization_code"

// ExchangeRecord is one pending or redeemed authorization code.
type ExchangeRecord struct {
	Code            string
	State           string
	Challenge       string
	ChallengeMethod pkce.Method
	ClientID        string
	CallbackURL     string
	GrantType       string
	Scope           string
	Subject         string
	Redeemed        bool
	CreatedAt       time.Time
}

func (r *ExchangeRecord) Approved() bool {
	return r.Subject != ""
}

// Session is the server-held state of one user agent. OAuth and Client are
// set together by Authorize and cleared together by Grant.
type Session struct {
	ID        string    `json:"-"`
	ExpiresAt time.Time `json:"-"`

	Account   *SessionAccount `json:"account,omitempty"`
	OAuth     *OAuthBinding   `json:"oauth,omitempty"`
	Client    *ClientSnapshot `json:"client,omitempty"`
	CSRFToken string          `json:"csrf_token,omitempty"`
}

type SessionAccount struct {
	Username        string    `json:"username"`
	IsAuthenticated bool      `json:"is_authenticated"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

type OAuthBinding struct {
	State string `json:"state"`
	Code  string `json:"code"`
	Scope string `json:"scope,omitempty"`
}

func (s *Session) Authenticated() bool {
	return s.Account != nil && s.Account.IsAuthenticated
}

// PendingGrant reports whether an authorize step left an in-flight grant.
func (s *Session) PendingGrant() bool {
	return s.OAuth != nil && s.Client != nil
}

func (s *Session) clearGrant() {
	s.OAuth = nil
	s.Client = nil
}
