package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a client-visible failure of the grant flow. Every Kind
// maps to exactly one HTTP status and OAuth error code through kindTable.
type Kind int

const (
	KindUnknown Kind = iota
	KindResponseTypeNotValid
	KindScopeNotValid
	KindClientNotFound
	KindCodeChallengeNotPresent
	KindRedirectUriNotPresent
	KindRedirectUriNotValid
	KindCodeChallengeMethodNotAccepted
	KindInteractionRequired
	KindAccountCredentialsDoNotMatch
	KindGrantTypeNotValid
	KindClientSecretNotValid
	KindExchangePayloadNotFound
	KindExchangeCodeNotValid
	KindGrantNotPending
	KindAccountNotAuthenticated
	KindGrantDecisionNotValid
	KindCsrfTokenNotValid
)

type kindInfo struct {
	name   string
	status int
	oauth  string
}

var kindTable = map[Kind]kindInfo{
	KindResponseTypeNotValid:           {"ResponseTypeNotValid", http.StatusBadRequest, "unsupported_response_type"},
	KindScopeNotValid:                  {"ScopeNotValid", http.StatusBadRequest, "invalid_scope"},
	KindClientNotFound:                 {"ClientNotFound", http.StatusBadRequest, "invalid_client"},
	KindCodeChallengeNotPresent:        {"CodeChallengeNotPresent", http.StatusBadRequest, "invalid_request"},
	KindRedirectUriNotPresent:          {"RedirectUriNotPresent", http.StatusBadRequest, "invalid_request"},
	KindRedirectUriNotValid:            {"RedirectUriNotValid", http.StatusBadRequest, "invalid_request"},
	KindCodeChallengeMethodNotAccepted: {"CodeChallengeMethodNotAccepted", http.StatusBadRequest, "invalid_request"},
	KindInteractionRequired:            {"InteractionRequired", http.StatusBadRequest, "interaction_required"},
	KindAccountCredentialsDoNotMatch:   {"AccountCredentialsDoNotMatch", http.StatusBadRequest, "access_denied"},
	KindGrantTypeNotValid:              {"GrantTypeNotValid", http.StatusBadRequest, "unsupported_grant_type"},
	KindClientSecretNotValid:           {"ClientSecretNotValid", http.StatusBadRequest, "invalid_client"},
	KindExchangePayloadNotFound:        {"ExchangePayloadNotFound", http.StatusBadRequest, "invalid_grant"},
	KindExchangeCodeNotValid:           {"ExchangeCodeNotValid", http.StatusBadRequest, "invalid_grant"},
	KindGrantNotPending:                {"GrantNotPending", http.StatusBadRequest, "invalid_request"},
	KindAccountNotAuthenticated:        {"AccountNotAuthenticated", http.StatusBadRequest, "access_denied"},
	KindGrantDecisionNotValid:          {"GrantDecisionNotValid", http.StatusBadRequest, "invalid_request"},
	KindCsrfTokenNotValid:              {"CsrfTokenNotValid", http.StatusForbidden, "invalid_request"},
}

func (k Kind) String() string {
	if info, ok := kindTable[k]; ok {
		return info.name
	}
	return "Unknown"
}

// Status is the HTTP status for k; unknown kinds are server faults.
func (k Kind) Status() int {
	if info, ok := kindTable[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// OAuthCode is the RFC 6749 error code reported for k.
func (k Kind) OAuthCode() string {
	if info, ok := kindTable[k]; ok {
		return info.oauth
	}
	return "server_error"
}

// Error is a tagged failure. Two Errors match under errors.Is when their
// kinds are equal, so the Err* sentinels below can be wrapped with detail.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

var (
	ErrResponseTypeNotValid           = &Error{Kind: KindResponseTypeNotValid}
	ErrScopeNotValid                  = &Error{Kind: KindScopeNotValid}
	ErrClientNotFound                 = &Error{Kind: KindClientNotFound}
	ErrCodeChallengeNotPresent        = &Error{Kind: KindCodeChallengeNotPresent}
	ErrRedirectUriNotPresent          = &Error{Kind: KindRedirectUriNotPresent}
	ErrRedirectUriNotValid            = &Error{Kind: KindRedirectUriNotValid}
	ErrCodeChallengeMethodNotAccepted = &Error{Kind: KindCodeChallengeMethodNotAccepted}
	ErrInteractionRequired            = &Error{Kind: KindInteractionRequired}
	ErrAccountCredentialsDoNotMatch   = &Error{Kind: KindAccountCredentialsDoNotMatch}
	ErrGrantTypeNotValid              = &Error{Kind: KindGrantTypeNotValid}
	ErrClientSecretNotValid           = &Error{Kind: KindClientSecretNotValid}
	ErrExchangePayloadNotFound        = &Error{Kind: KindExchangePayloadNotFound}
	ErrExchangeCodeNotValid           = &Error{Kind: KindExchangeCodeNotValid}
	ErrGrantNotPending                = &Error{Kind: KindGrantNotPending}
	ErrAccountNotAuthenticated        = &Error{Kind: KindAccountNotAuthenticated}
	ErrGrantDecisionNotValid          = &Error{Kind: KindGrantDecisionNotValid}
	ErrCsrfTokenNotValid              = &Error{Kind: KindCsrfTokenNotValid}
)

// KindOf extracts the Kind carried by err, or KindUnknown for anything that
// is not a tagged *Error (storage faults, timeouts).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
