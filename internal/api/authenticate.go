package api

import (
	"errors"
	"fmt"
	"net/http"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
	"git.sr.ht/~jakintosh/codeflow/internal/session"
)

const credentialsMessage = "The username or password is incorrect."

// AuthenticateForm shows the login form for the grant in flight.
func (a *API) AuthenticateForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := a.sessionFrom(w, r)
		if !ok {
			return
		}

		if _, err := a.service.PendingClient(sess); err != nil {
			a.writeError(w, r, err)
			return
		}
		a.renderLogin(w, r, http.StatusOK, sess, "")
	}
}

// Authenticate checks the submitted credentials. On success the session is
// rotated and the consent form is shown; wrong credentials redisplay the
// login form.
func (a *API) Authenticate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := a.sessionFrom(w, r)
		if !ok {
			return
		}
		if !a.checkForm(w, r, sess) {
			return
		}

		username := r.PostFormValue("username")
		password := r.PostFormValue("password")

		err := a.service.Authenticate(r.Context(), sess, username, password)
		if errors.Is(err, service.ErrAccountCredentialsDoNotMatch) {
			a.renderLogin(w, r, http.StatusBadRequest, sess, credentialsMessage)
			return
		}
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		if err := a.sessions.Rotate(r.Context(), w, sess); err != nil {
			a.writeError(w, r, fmt.Errorf("%w: %v", service.ErrInternal, err))
			return
		}
		a.renderConsent(w, r, sess)
	}
}

// checkForm parses the form body and verifies its CSRF token against sess.
func (a *API) checkForm(w http.ResponseWriter, r *http.Request, sess *service.Session) bool {
	if err := parseForm(w, r); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %v", service.ErrCsrfTokenNotValid, err))
		return false
	}
	if !session.VerifyToken(sess, r.PostFormValue(session.CSRFField)) {
		a.writeError(w, r, service.ErrCsrfTokenNotValid)
		return false
	}
	return true
}
