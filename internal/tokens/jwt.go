// Package tokens mints ES256-signed JWT access tokens for redeemed
// authorization codes.
package tokens

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

var (
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenMalformed = errors.New("token malformed")
)

// AccessClaims are the claims of an access token. The audience is the
// client the code was issued to.
type AccessClaims struct {
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

type Options struct {
	SigningKey *ecdsa.PrivateKey
	Issuer     string
	Lifetime   time.Duration

	// Now overrides the clock.
	Now func() time.Time
}

// JWTMinter implements service.Minter.
type JWTMinter struct {
	key      *ecdsa.PrivateKey
	issuer   string
	lifetime time.Duration
	now      func() time.Time
}

func NewJWTMinter(opts Options) (*JWTMinter, error) {
	if opts.SigningKey == nil {
		return nil, errors.New("signing key is required")
	}
	if opts.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	m := &JWTMinter{
		key:      opts.SigningKey,
		issuer:   opts.Issuer,
		lifetime: opts.Lifetime,
		now:      opts.Now,
	}
	if m.lifetime <= 0 {
		m.lifetime = service.DefaultTokenLifetime
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

func (m *JWTMinter) Mint(
	_ context.Context,
	redemption *service.Redemption,
) (
	*service.TokenResponse,
	error,
) {
	now := m.now()
	claims := AccessClaims{
		Scope:    redemption.Scope,
		ClientID: redemption.ClientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   redemption.Subject,
			Audience:  jwt.ClaimStrings{redemption.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(m.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &service.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(m.lifetime / time.Second),
		Scope:       redemption.Scope,
	}, nil
}

// Verify checks the signature, issuer and lifetime of token and returns its
// claims.
func (m *JWTMinter) Verify(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return &m.key.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}
