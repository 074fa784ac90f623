package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestHeaders(t *testing.T) {
	tests := []struct {
		name       string
		tls        bool
		trustProxy bool
		wantHSTS   bool
	}{
		{name: "tls", tls: true, wantHSTS: true},
		{name: "trusted proxy", trustProxy: true, wantHSTS: true},
		{name: "plain http", wantHSTS: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			w := httptest.NewRecorder()

			Headers(tt.trustProxy)(okHandler).ServeHTTP(w, req)

			want := map[string]string{
				"X-Frame-Options":        "DENY",
				"X-Content-Type-Options": "nosniff",
				"Referrer-Policy":        "no-referrer",
			}
			for name, value := range want {
				if got := w.Header().Get(name); got != value {
					t.Errorf("%s = %q, want %q", name, got, value)
				}
			}
			if csp := w.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "frame-ancestors 'none'") {
				t.Errorf("Content-Security-Policy = %q", csp)
			}
			if got := w.Header().Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("HSTS set = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}

func TestRequireHTTPS(t *testing.T) {
	tests := []struct {
		name       string
		tls        bool
		trustProxy bool
		wantStatus int
	}{
		{name: "plain http rejected", wantStatus: http.StatusNotAcceptable},
		{name: "tls accepted", tls: true, wantStatus: http.StatusOK},
		{name: "trusted proxy accepted", trustProxy: true, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/oauth/v2/authorize", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			w := httptest.NewRecorder()

			RequireHTTPS(tt.trustProxy)(okHandler).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	t.Run("generates when missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if seen == "" {
			t.Fatal("no request id in context")
		}
		if got := w.Header().Get(RequestIDHeader); got != seen {
			t.Errorf("header = %q, context = %q", got, seen)
		}
	})

	t.Run("keeps valid upstream id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "upstream-123")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if seen != "upstream-123" {
			t.Errorf("request id = %q, want upstream-123", seen)
		}
	})

	t.Run("replaces malformed upstream id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "bad id\r\ninjected: yes")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if !requestIDPattern.MatchString(seen) {
			t.Errorf("request id %q was not replaced", seen)
		}
	})
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 3, nil)
	now := time.Now()
	rl.now = func() time.Time { return now }

	// burst is allowed, then the bucket is empty
	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("request past the burst was allowed")
	}

	// other identifiers have their own bucket
	if !rl.Allow("5.6.7.8") {
		t.Error("second identifier was limited")
	}

	// a second later one token is back
	now = now.Add(time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Error("refilled token was not allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Error("only one token should refill")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(time.Hour)
	rl.Allow("new")

	if removed := rl.Cleanup(30 * time.Minute); removed != 1 {
		t.Errorf("Cleanup removed %d, want 1", removed)
	}
	if rl.Len() != 1 {
		t.Errorf("Len = %d, want 1", rl.Len())
	}
}

func TestRateLimiter_Limit(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	now := time.Now()
	rl.now = func() time.Time { return now }

	limited := 0
	h := rl.Limit(false, func(*http.Request) { limited++ })(okHandler)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/oauth/v2/token", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(); code != http.StatusOK {
		t.Errorf("first status = %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", code)
	}
	if limited != 1 {
		t.Errorf("limited = %d, want 1", limited)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")

	if ip := ClientIP(req, false); ip != "10.0.0.1" {
		t.Errorf("untrusted ClientIP = %q", ip)
	}
	if ip := ClientIP(req, true); ip != "203.0.113.7" {
		t.Errorf("trusted ClientIP = %q", ip)
	}

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	if ip := ClientIP(req, true); ip != "10.0.0.1" {
		t.Errorf("ClientIP with bad header = %q", ip)
	}
}
