package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const DefaultTokenLifetime = time.Hour

// TokenResponse is the JSON body returned by the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// Minter turns a redemption into tokens.
type Minter interface {
	Mint(ctx context.Context, redemption *Redemption) (*TokenResponse, error)
}

// OpaqueMinter issues random bearer tokens with no embedded claims.
type OpaqueMinter struct {
	Lifetime time.Duration
}

func (m OpaqueMinter) Mint(
	_ context.Context,
	redemption *Redemption,
) (
	*TokenResponse,
	error,
) {
	lifetime := m.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate access token: %v", err)
	}

	return &TokenResponse{
		AccessToken: base64.RawURLEncoding.EncodeToString(b),
		TokenType:   "Bearer",
		ExpiresIn:   int64(lifetime / time.Second),
		Scope:       redemption.Scope,
	}, nil
}
