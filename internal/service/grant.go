package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel/attribute"

	"git.sr.ht/~jakintosh/codeflow/internal/instrumentation"
)

const (
	DecisionAccept  = "accept"
	DecisionDecline = "decline"
)

// Grant applies the user's consent decision to the grant in flight on
// sess and returns where to send the user agent.
//
// On accept the exchange is approved for the authenticated account and the
// redirect carries code and state. On decline the exchange is voided and
// the redirect carries error=access_denied and state. Either way the
// pending grant is cleared from sess; the caller persists sess.
func (s *Service) Grant(
	ctx context.Context,
	sess *Session,
	decision string,
) (
	redirect *url.URL,
	err error,
) {
	ctx, span := s.inst.StartSpan(ctx, "service.Grant",
		attribute.String("decision", decision))
	defer func() { instrumentation.EndSpan(span, err) }()

	if !sess.PendingGrant() {
		return nil, ErrGrantNotPending
	}
	if !sess.Authenticated() {
		return nil, ErrAccountNotAuthenticated
	}
	if decision != DecisionAccept && decision != DecisionDecline {
		return nil, fmt.Errorf("%w: '%s'", ErrGrantDecisionNotValid, decision)
	}

	record, err := s.pendingExchange(ctx, sess)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	switch decision {
	case DecisionAccept:
		if err = s.approveExchange(ctx, record.Code, sess.Account.Username); err != nil {
			return nil, err
		}
		params.Set("code", record.Code)
	case DecisionDecline:
		if err = s.voidExchange(ctx, record.Code); err != nil {
			return nil, err
		}
		params.Set("error", "access_denied")
	}
	if record.State != "" {
		params.Set("state", record.State)
	}

	redirect, err = buildRedirectURL(record.CallbackURL, params)
	if err != nil {
		return nil, internalErr("failed to build redirect", err)
	}

	s.inst.Metrics().RecordGrantDecided(ctx, record.ClientID, decision)
	sess.clearGrant()
	return redirect, nil
}

// pendingExchange loads the exchange named by the session binding. The
// code is never regenerated here.
func (s *Service) pendingExchange(ctx context.Context, sess *Session) (*ExchangeRecord, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	record, err := s.exchanges.GetExchange(sctx, sess.OAuth.Code)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrExchangePayloadNotFound
		}
		return nil, internalErr("failed to get exchange", err)
	}

	if record.ClientID != sess.Client.ID ||
		record.Redeemed ||
		record.CreatedAt.Before(s.notBefore()) {
		return nil, ErrExchangePayloadNotFound
	}
	return record, nil
}

func (s *Service) approveExchange(ctx context.Context, code string, subject string) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	approved, err := s.exchanges.ApproveExchange(ctx, code, subject, s.notBefore())
	if err != nil {
		return internalErr("failed to approve exchange", err)
	}
	if !approved {
		return ErrExchangePayloadNotFound
	}
	return nil
}

func (s *Service) voidExchange(ctx context.Context, code string) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if _, err := s.exchanges.VoidExchange(ctx, code); err != nil {
		return internalErr("failed to void exchange", err)
	}
	return nil
}

func buildRedirectURL(
	callback string,
	params url.Values,
) (
	*url.URL,
	error,
) {
	redirectURL, err := url.Parse(callback)
	if err != nil {
		return nil, err
	}
	q := redirectURL.Query()
	for key, values := range params {
		q[key] = values
	}
	redirectURL.RawQuery = q.Encode()
	return redirectURL, nil
}
