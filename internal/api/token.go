package api

import (
	"net/http"
	"net/url"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

type tokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// Token redeems an authorization code. Client credentials are read from the
// form body, or from HTTP Basic auth when the body carries none.
func (a *API) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := parseForm(w, r); err != nil {
			returnJsonStatus(http.StatusBadRequest, tokenError{
				Error:       "invalid_request",
				Description: "malformed form body",
			}, w)
			return
		}

		req := service.TokenRequest{
			GrantType:    r.PostFormValue("grant_type"),
			RedirectURI:  r.PostFormValue("redirect_uri"),
			Code:         r.PostFormValue("code"),
			ClientID:     r.PostFormValue("client_id"),
			ClientSecret: r.PostFormValue("client_secret"),
			CodeVerifier: r.PostFormValue("code_verifier"),
		}
		if req.ClientID == "" {
			if id, secret, ok := basicCredentials(r); ok {
				req.ClientID = id
				req.ClientSecret = secret
			}
		}

		resp, err := a.service.Token(r.Context(), req)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		if err != nil {
			a.writeTokenError(w, r, err)
			return
		}
		returnJson(resp, w)
	}
}

func (a *API) writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	if kind == service.KindUnknown {
		a.logApiErr(r, "token request failed", err)
		returnJsonStatus(kind.Status(), tokenError{Error: kind.OAuthCode()}, w)
		return
	}
	returnJsonStatus(kind.Status(), tokenError{
		Error:       kind.OAuthCode(),
		Description: kind.String(),
	}, w)
}

// basicCredentials decodes client credentials sent as HTTP Basic auth. Per
// RFC 6749 section 2.3.1 both parts are form-urlencoded first.
func basicCredentials(r *http.Request) (string, string, bool) {
	rawID, rawSecret, ok := r.BasicAuth()
	if !ok {
		return "", "", false
	}
	id, err := url.QueryUnescape(rawID)
	if err != nil {
		return "", "", false
	}
	secret, err := url.QueryUnescape(rawSecret)
	if err != nil {
		return "", "", false
	}
	return id, secret, true
}
