package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

// CSRFField is the form field that carries the token.
const CSRFField = "_csrf"

// IssueToken returns the CSRF token bound to sess, generating one on first
// use. The caller persists sess.
func IssueToken(sess *service.Session) (string, error) {
	if sess.CSRFToken != "" {
		return sess.CSRFToken, nil
	}
	token, err := generateCSRFCode()
	if err != nil {
		return "", err
	}
	sess.CSRFToken = token
	return token, nil
}

// VerifyToken reports whether token matches the one bound to sess.
func VerifyToken(sess *service.Session, token string) bool {
	if sess.CSRFToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sess.CSRFToken), []byte(token)) == 1
}

func generateCSRFCode() (string, error) {
	randomBytes := make([]byte, 32)
	_, err := rand.Read(randomBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate random CSRF bytes: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}
