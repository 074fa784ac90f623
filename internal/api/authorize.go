package api

import (
	"net/http"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

// Authorize validates the authorization request, issues the code and binds
// the pending grant to the session. The user agent is shown the login form,
// or the consent form when the session is already authenticated.
func (a *API) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := a.sessionFrom(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		req := service.AuthorizeRequest{
			ClientID:            q.Get("client_id"),
			ResponseType:        q.Get("response_type"),
			Scope:               q.Get("scope"),
			State:               q.Get("state"),
			RedirectURI:         q.Get("redirect_uri"),
			CodeChallenge:       q.Get("code_challenge"),
			CodeChallengeMethod: q.Get("code_challenge_method"),
			Prompt:              q.Get("prompt"),
		}

		auth, err := a.service.Authorize(r.Context(), req, sess)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		switch auth.Next {
		case service.StepConsent:
			a.renderConsent(w, r, sess)
		default:
			a.renderLogin(w, r, http.StatusOK, sess, "")
		}
	}
}
