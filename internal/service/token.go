package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"git.sr.ht/~jakintosh/codeflow/internal/instrumentation"
	"git.sr.ht/~jakintosh/codeflow/internal/pkce"
)

// TokenRequest is the form body of a token request.
type TokenRequest struct {
	GrantType    string
	RedirectURI  string
	Code         string
	ClientID     string
	ClientSecret string
	CodeVerifier string
}

// Redemption is handed to the token minter once a code has been redeemed.
type Redemption struct {
	ClientID    string
	Subject     string
	Scope       string
	CallbackURL string
	RedeemedAt  time.Time
}

// Exchange redeems req.Code at most once. Unknown, expired, unapproved,
// foreign and already redeemed codes all fail with
// ErrExchangePayloadNotFound. redirect_uri must repeat the callback the
// code was issued for. A failed PKCE check voids the code.
func (s *Service) Exchange(
	ctx context.Context,
	req TokenRequest,
) (
	redemption *Redemption,
	err error,
) {
	ctx, span := s.inst.StartSpan(ctx, "service.Exchange",
		attribute.String("client_id", req.ClientID))
	defer func() {
		if kind := KindOf(err); kind != KindUnknown {
			s.inst.Metrics().RecordExchangeRejected(ctx, kind.String())
		}
		instrumentation.EndSpan(span, err)
	}()

	if !slices.Contains(s.grantTypes, req.GrantType) {
		return nil, fmt.Errorf("%w: '%s'", ErrGrantTypeNotValid, req.GrantType)
	}

	client, err := s.getClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(req.ClientSecret), []byte(client.Secret)) != 1 {
		return nil, ErrClientSecretNotValid
	}

	notBefore := s.notBefore()
	record, err := s.findRedeemable(ctx, req.Code, req.GrantType, notBefore)
	if err != nil {
		return nil, err
	}
	if record.ClientID != client.ID {
		return nil, ErrExchangePayloadNotFound
	}
	if req.RedirectURI == "" || req.RedirectURI != record.CallbackURL {
		return nil, fmt.Errorf("%w: '%s'", ErrRedirectUriNotValid, req.RedirectURI)
	}

	// a failed proof burns the code so it cannot be retried with other verifiers
	if record.Challenge != "" {
		if req.CodeVerifier == "" || !pkce.Verify(record.Challenge, record.ChallengeMethod, req.CodeVerifier) {
			s.inst.Metrics().RecordPKCEValidationFailed(ctx, client.ID, string(record.ChallengeMethod))
			if err := s.voidExchange(ctx, record.Code); err != nil {
				return nil, err
			}
			return nil, ErrExchangeCodeNotValid
		}
	}

	redeemed, err := s.redeem(ctx, req.Code, req.GrantType, notBefore)
	if err != nil {
		return nil, err
	}
	if !redeemed {
		// another request redeemed the code between lookup and update
		s.inst.Metrics().RecordCodeReuseDetected(ctx, client.ID)
		s.logger.Warn("concurrent redemption lost", "client_id", client.ID)
		return nil, ErrExchangePayloadNotFound
	}

	s.inst.Metrics().RecordCodeExchanged(ctx, client.ID)
	return &Redemption{
		ClientID:    client.ID,
		Subject:     record.Subject,
		Scope:       record.Scope,
		CallbackURL: record.CallbackURL,
		RedeemedAt:  s.now(),
	}, nil
}

// Token redeems the code and mints the token response.
func (s *Service) Token(
	ctx context.Context,
	req TokenRequest,
) (
	*TokenResponse,
	error,
) {
	redemption, err := s.Exchange(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := s.minter.Mint(ctx, redemption)
	if err != nil {
		return nil, internalErr("failed to mint token", err)
	}
	return resp, nil
}

func (s *Service) findRedeemable(
	ctx context.Context,
	code string,
	grantType string,
	notBefore time.Time,
) (
	*ExchangeRecord,
	error,
) {
	if code == "" {
		return nil, ErrExchangePayloadNotFound
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	record, err := s.exchanges.FindRedeemableExchange(ctx, code, grantType, notBefore)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrExchangePayloadNotFound
		}
		return nil, internalErr("failed to find exchange", err)
	}
	return record, nil
}

func (s *Service) redeem(
	ctx context.Context,
	code string,
	grantType string,
	notBefore time.Time,
) (
	bool,
	error,
) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	redeemed, err := s.exchanges.RedeemExchange(ctx, code, grantType, notBefore)
	if err != nil {
		return false, internalErr("failed to redeem exchange", err)
	}
	return redeemed, nil
}
