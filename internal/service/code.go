package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// codeBytes gives 256 bits of entropy; the encoded code is 43 characters.
const codeBytes = 32

// GenerateCode returns a fresh URL-safe authorization code drawn from
// crypto/rand. Nothing client-supplied goes into it.
func GenerateCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate code bytes: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
