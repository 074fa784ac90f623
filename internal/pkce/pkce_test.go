package pkce_test

import (
	"testing"

	"git.sr.ht/~jakintosh/codeflow/internal/pkce"
)

// RFC 7636 appendix B
const (
	rfcVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestS256Challenge_RFCVector(t *testing.T) {
	t.Parallel()
	if got := pkce.S256Challenge(rfcVerifier); got != rfcChallenge {
		t.Errorf("S256Challenge = %q, want %q", got, rfcChallenge)
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		challenge string
		method    pkce.Method
		verifier  string
		want      bool
	}{
		{"s256 match", rfcChallenge, pkce.MethodS256, rfcVerifier, true},
		{"s256 wrong verifier", rfcChallenge, pkce.MethodS256, rfcVerifier + "x", false},
		{"s256 verifier equal to challenge", rfcChallenge, pkce.MethodS256, rfcChallenge, false},
		{"plain match", "plain-verifier", pkce.MethodPlain, "plain-verifier", true},
		{"plain mismatch", "plain-verifier", pkce.MethodPlain, "plain-verifie", false},
		{"plain is case sensitive", "Verifier", pkce.MethodPlain, "verifier", false},
		{"empty verifier", rfcChallenge, pkce.MethodS256, "", false},
		{"unknown method", "abc", pkce.Method("S512"), "abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := pkce.Verify(tt.challenge, tt.method, tt.verifier); got != tt.want {
				t.Errorf("Verify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMethod(t *testing.T) {
	t.Parallel()

	// absent method implies plain
	m, ok := pkce.ParseMethod("")
	if !ok || m != pkce.MethodPlain {
		t.Errorf("ParseMethod(\"\") = %q, %v", m, ok)
	}

	m, ok = pkce.ParseMethod("S256")
	if !ok || m != pkce.MethodS256 {
		t.Errorf("ParseMethod(S256) = %q, %v", m, ok)
	}

	// method names are case sensitive
	if _, ok := pkce.ParseMethod("s256"); ok {
		t.Error("ParseMethod accepted s256")
	}
}

func TestGenerateVerifier_RoundTrip(t *testing.T) {
	t.Parallel()

	verifier, challenge, err := pkce.GenerateVerifier()
	if err != nil {
		t.Fatalf("GenerateVerifier failed: %v", err)
	}
	if len(verifier) != 43 {
		t.Errorf("verifier length = %d, want 43", len(verifier))
	}
	if !pkce.Verify(challenge, pkce.MethodS256, verifier) {
		t.Error("verifier does not match its challenge")
	}

	other, _, err := pkce.GenerateVerifier()
	if err != nil {
		t.Fatalf("GenerateVerifier failed: %v", err)
	}
	if other == verifier {
		t.Error("two verifiers are equal")
	}
	if pkce.Verify(challenge, pkce.MethodS256, other) {
		t.Error("foreign verifier matched the challenge")
	}
}
