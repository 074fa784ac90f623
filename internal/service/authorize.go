package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"git.sr.ht/~jakintosh/codeflow/internal/instrumentation"
	"git.sr.ht/~jakintosh/codeflow/internal/pkce"
)

// AuthorizeRequest is the parsed query of an authorization request. It is
// passed by value through the validation steps and never modified.
type AuthorizeRequest struct {
	ClientID            string
	ResponseType        string
	Scope               string
	State               string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Prompt              string
}

func (r AuthorizeRequest) prompts() []string {
	return strings.Fields(r.Prompt)
}

// Step names where the user agent goes after a successful authorize.
type Step int

const (
	StepAuthenticate Step = iota
	StepConsent
)

func (s Step) String() string {
	if s == StepConsent {
		return "consent"
	}
	return "authenticate"
}

// Authorization is the outcome of a successful authorize step.
type Authorization struct {
	Code        string
	Client      *Client
	CallbackURL string
	Next        Step
}

// authorization accumulates what the validation steps resolve.
type authorization struct {
	client      *Client
	callbackURL string
	method      pkce.Method
}

type authorizeStep func(ctx context.Context, req AuthorizeRequest, sess *Session, acc *authorization) error

// authorizeSteps run in order and stop at the first failure.
func (s *Service) authorizeSteps() []authorizeStep {
	return []authorizeStep{
		s.ensureResponseType,
		ensureScope,
		s.resolveClient,
		ensureChallengePresent,
		ensureRedirectURI,
		s.ensureChallengeMethod,
		ensurePromptSatisfiable,
	}
}

// Authorize validates req against the registered client, issues a code,
// records the exchange, and binds the pending grant to sess. The caller is
// responsible for persisting sess.
func (s *Service) Authorize(
	ctx context.Context,
	req AuthorizeRequest,
	sess *Session,
) (
	auth *Authorization,
	err error,
) {
	ctx, span := s.inst.StartSpan(ctx, "service.Authorize",
		attribute.String("client_id", req.ClientID))
	defer func() { instrumentation.EndSpan(span, err) }()

	metrics := s.inst.Metrics()
	metrics.RecordAuthorizationStarted(ctx, req.ClientID)

	acc := &authorization{}
	for _, step := range s.authorizeSteps() {
		if err = step(ctx, req, sess, acc); err != nil {
			if kind := KindOf(err); kind != KindUnknown {
				metrics.RecordAuthorizationRejected(ctx, kind.String())
			}
			return nil, err
		}
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, internalErr("failed to generate code", err)
	}

	record := &ExchangeRecord{
		Code:            code,
		State:           req.State,
		Challenge:       req.CodeChallenge,
		ChallengeMethod: acc.method,
		ClientID:        acc.client.ID,
		CallbackURL:     acc.callbackURL,
		GrantType:       GrantTypeAuthorizationCode,
		Scope:           req.Scope,
		CreatedAt:       s.now(),
	}
	if err = s.insertExchange(ctx, record); err != nil {
		return nil, err
	}
	metrics.RecordCodeIssued(ctx, acc.client.ID)

	// a new authorize supersedes any grant still in flight
	sess.OAuth = &OAuthBinding{State: req.State, Code: code, Scope: req.Scope}
	sess.Client = acc.client.Snapshot()

	next := StepAuthenticate
	if sess.Authenticated() && !slices.Contains(req.prompts(), "login") {
		next = StepConsent
	}

	s.logger.Debug("authorization code issued",
		"client_id", acc.client.ID,
		"next", next.String(),
	)

	return &Authorization{
		Code:        code,
		Client:      acc.client,
		CallbackURL: acc.callbackURL,
		Next:        next,
	}, nil
}

func (s *Service) insertExchange(ctx context.Context, record *ExchangeRecord) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.exchanges.InsertExchange(ctx, record); err != nil {
		return internalErr("failed to insert exchange", err)
	}
	return nil
}

func (s *Service) ensureResponseType(_ context.Context, req AuthorizeRequest, _ *Session, _ *authorization) error {
	if !slices.Contains(s.responseTypes, req.ResponseType) {
		return fmt.Errorf("%w: '%s'", ErrResponseTypeNotValid, req.ResponseType)
	}
	return nil
}

// ensureScope accepts space or comma delimited scope lists.
func ensureScope(_ context.Context, req AuthorizeRequest, _ *Session, _ *authorization) error {
	scopes := strings.FieldsFunc(req.Scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
	if !slices.Contains(scopes, "openid") {
		return fmt.Errorf("%w: '%s' does not include openid", ErrScopeNotValid, req.Scope)
	}
	return nil
}

func (s *Service) resolveClient(ctx context.Context, req AuthorizeRequest, _ *Session, acc *authorization) error {
	client, err := s.getClient(ctx, req.ClientID)
	if err != nil {
		return err
	}
	acc.client = client
	return nil
}

func (s *Service) getClient(ctx context.Context, id string) (*Client, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: client_id is required", ErrClientNotFound)
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	client, err := s.clients.GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrClientNotFound, id)
		}
		return nil, internalErr("failed to get client", err)
	}
	return client, nil
}

func ensureChallengePresent(_ context.Context, req AuthorizeRequest, _ *Session, acc *authorization) error {
	if acc.client.PKCERequired && req.CodeChallenge == "" {
		return fmt.Errorf("%w: client %s requires pkce", ErrCodeChallengeNotPresent, acc.client.ID)
	}
	return nil
}

// ensureRedirectURI resolves the callback for this grant. With several
// registered callbacks the request must name one of them; with a single
// callback an absent redirect_uri means that callback.
func ensureRedirectURI(_ context.Context, req AuthorizeRequest, _ *Session, acc *authorization) error {
	callbacks := acc.client.CallbackURLs
	switch {
	case len(callbacks) == 0:
		return fmt.Errorf("%w: client %s has no callback urls", ErrInternal, acc.client.ID)
	case len(callbacks) > 1:
		if req.RedirectURI == "" {
			return ErrRedirectUriNotPresent
		}
		if !acc.client.HasCallback(req.RedirectURI) {
			return fmt.Errorf("%w: '%s'", ErrRedirectUriNotValid, req.RedirectURI)
		}
		acc.callbackURL = req.RedirectURI
	case req.RedirectURI == "":
		acc.callbackURL = callbacks[0]
	case req.RedirectURI != callbacks[0]:
		return fmt.Errorf("%w: '%s'", ErrRedirectUriNotValid, req.RedirectURI)
	default:
		acc.callbackURL = req.RedirectURI
	}
	return nil
}

func (s *Service) ensureChallengeMethod(_ context.Context, req AuthorizeRequest, _ *Session, acc *authorization) error {
	if req.CodeChallengeMethod != "" && !slices.Contains(s.challengeMethods, req.CodeChallengeMethod) {
		return fmt.Errorf("%w: '%s'", ErrCodeChallengeMethodNotAccepted, req.CodeChallengeMethod)
	}
	method, ok := pkce.ParseMethod(req.CodeChallengeMethod)
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrCodeChallengeMethodNotAccepted, req.CodeChallengeMethod)
	}
	acc.method = method
	return nil
}

// ensurePromptSatisfiable rejects prompt=none when the user would have to
// log in.
func ensurePromptSatisfiable(_ context.Context, req AuthorizeRequest, sess *Session, _ *authorization) error {
	if slices.Contains(req.prompts(), "none") && !sess.Authenticated() {
		return ErrInteractionRequired
	}
	return nil
}
