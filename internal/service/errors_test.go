package service_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

func TestKind_Mapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		name   string
		status int
		oauth  string
	}{
		{service.ErrResponseTypeNotValid, "ResponseTypeNotValid", http.StatusBadRequest, "unsupported_response_type"},
		{service.ErrScopeNotValid, "ScopeNotValid", http.StatusBadRequest, "invalid_scope"},
		{service.ErrClientNotFound, "ClientNotFound", http.StatusBadRequest, "invalid_client"},
		{service.ErrCodeChallengeNotPresent, "CodeChallengeNotPresent", http.StatusBadRequest, "invalid_request"},
		{service.ErrRedirectUriNotPresent, "RedirectUriNotPresent", http.StatusBadRequest, "invalid_request"},
		{service.ErrRedirectUriNotValid, "RedirectUriNotValid", http.StatusBadRequest, "invalid_request"},
		{service.ErrCodeChallengeMethodNotAccepted, "CodeChallengeMethodNotAccepted", http.StatusBadRequest, "invalid_request"},
		{service.ErrInteractionRequired, "InteractionRequired", http.StatusBadRequest, "interaction_required"},
		{service.ErrAccountCredentialsDoNotMatch, "AccountCredentialsDoNotMatch", http.StatusBadRequest, "access_denied"},
		{service.ErrGrantTypeNotValid, "GrantTypeNotValid", http.StatusBadRequest, "unsupported_grant_type"},
		{service.ErrClientSecretNotValid, "ClientSecretNotValid", http.StatusBadRequest, "invalid_client"},
		{service.ErrExchangePayloadNotFound, "ExchangePayloadNotFound", http.StatusBadRequest, "invalid_grant"},
		{service.ErrExchangeCodeNotValid, "ExchangeCodeNotValid", http.StatusBadRequest, "invalid_grant"},
		{service.ErrCsrfTokenNotValid, "CsrfTokenNotValid", http.StatusForbidden, "invalid_request"},
		{service.ErrInternal, "Unknown", http.StatusInternalServerError, "server_error"},
	}

	for _, tt := range tests {
		kind := service.KindOf(tt.err)
		if kind.String() != tt.name {
			t.Errorf("%v: name = %s, want %s", tt.err, kind, tt.name)
		}
		if kind.Status() != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, kind.Status(), tt.status)
		}
		if kind.OAuthCode() != tt.oauth {
			t.Errorf("%s: oauth code = %s, want %s", tt.name, kind.OAuthCode(), tt.oauth)
		}
	}
}

func TestError_WrappedKeepsKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: 'token'", service.ErrResponseTypeNotValid)
	if !errors.Is(err, service.ErrResponseTypeNotValid) {
		t.Error("wrapped error should match its sentinel")
	}
	if errors.Is(err, service.ErrScopeNotValid) {
		t.Error("wrapped error should not match another kind")
	}
	if service.KindOf(err) != service.KindResponseTypeNotValid {
		t.Errorf("KindOf = %s", service.KindOf(err))
	}

	// storage faults carry no kind
	storage := fmt.Errorf("%w: disk full", service.ErrInternal)
	if service.KindOf(storage) != service.KindUnknown {
		t.Errorf("KindOf(storage) = %s, want Unknown", service.KindOf(storage))
	}
}
