// Package pkce implements the Proof Key for Code Exchange (RFC 7636)
// challenge check used when an authorization code is redeemed.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Method is a code challenge method.
type Method string

const (
	MethodPlain Method = "plain"
	MethodS256  Method = "S256"
)

// verifierBytes gives generated verifiers 256 bits of entropy.
const verifierBytes = 32

// ParseMethod resolves a code_challenge_method parameter. An absent method
// means plain, per RFC 7636 section 4.3.
func ParseMethod(
	raw string,
) (
	Method,
	bool,
) {
	switch Method(raw) {
	case "":
		return MethodPlain, true
	case MethodPlain:
		return MethodPlain, true
	case MethodS256:
		return MethodS256, true
	default:
		return Method(raw), false
	}
}

// Verify reports whether verifier matches challenge under method. Unknown
// methods never match.
func Verify(
	challenge string,
	method Method,
	verifier string,
) bool {
	var derived string
	switch method {
	case MethodPlain:
		derived = verifier
	case MethodS256:
		derived = S256Challenge(verifier)
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}

// S256Challenge derives the S256 challenge for a verifier:
// base64url(sha256(verifier)) without padding.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateVerifier returns a random verifier and its S256 challenge.
func GenerateVerifier() (verifier string, challenge string, err error) {
	b := make([]byte, verifierBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate verifier bytes: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	return verifier, S256Challenge(verifier), nil
}
