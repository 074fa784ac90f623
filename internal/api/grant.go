package api

import (
	"net/http"
)

// Grant applies the consent decision and redirects the user agent back to
// the client's callback.
func (a *API) Grant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := a.sessionFrom(w, r)
		if !ok {
			return
		}
		if !a.checkForm(w, r, sess) {
			return
		}

		redirect, err := a.service.Grant(r.Context(), sess, r.PostFormValue("grant"))
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		// the token is single use
		sess.CSRFToken = ""
		if !a.saveSession(w, r, sess) {
			return
		}
		http.Redirect(w, r, redirect.String(), http.StatusFound)
	}
}
