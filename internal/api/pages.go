package api

import (
	"fmt"
	"net/http"

	"git.sr.ht/~jakintosh/codeflow/internal/resources"
	"git.sr.ht/~jakintosh/codeflow/internal/security"
	"git.sr.ht/~jakintosh/codeflow/internal/service"
	"git.sr.ht/~jakintosh/codeflow/internal/session"
)

// served when the error template itself cannot be rendered
const serverErrorHTML = `<!doctype html>
<html><body><h1>Internal Server Error</h1></body></html>
`

type loginPage struct {
	Action     string
	ClientName string
	CSRFToken  string
	Error      string
}

type consentPage struct {
	Action     string
	ClientName string
	Scope      string
	Username   string
	CSRFToken  string
}

type errorPage struct {
	Status     int
	StatusText string
	Error      string
	RequestID  string
}

func (a *API) render(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	name string,
	data any,
) {
	page, err := a.templates.Render(name, data)
	if err != nil {
		a.logApiErr(r, "couldn't render template", err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(serverErrorHTML))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(page)
}

// renderLogin issues the CSRF token, persists sess and shows the login
// form for the pending client.
func (a *API) renderLogin(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	sess *service.Session,
	message string,
) {
	token, ok := a.issueCSRF(w, r, sess)
	if !ok {
		return
	}
	a.render(w, r, status, resources.TemplateLogin, loginPage{
		Action:     a.path("/authenticate"),
		ClientName: sess.Client.Name,
		CSRFToken:  token,
		Error:      message,
	})
}

// renderConsent issues the CSRF token, persists sess and asks the
// authenticated account to accept or decline the pending grant.
func (a *API) renderConsent(
	w http.ResponseWriter,
	r *http.Request,
	sess *service.Session,
) {
	token, ok := a.issueCSRF(w, r, sess)
	if !ok {
		return
	}
	a.render(w, r, http.StatusOK, resources.TemplateConsent, consentPage{
		Action:     a.path("/grant"),
		ClientName: sess.Client.Name,
		Scope:      sess.OAuth.Scope,
		Username:   sess.Account.Username,
		CSRFToken:  token,
	})
}

func (a *API) issueCSRF(w http.ResponseWriter, r *http.Request, sess *service.Session) (string, bool) {
	token, err := session.IssueToken(sess)
	if err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %v", service.ErrInternal, err))
		return "", false
	}
	if !a.saveSession(w, r, sess) {
		return "", false
	}
	return token, true
}

// writeError renders err as an HTML error page. Tagged errors keep their
// status; anything else is logged and shown as a 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	status := kind.Status()

	message := kind.String()
	if kind == service.KindUnknown {
		a.logApiErr(r, "request failed", err)
		message = "The server could not complete the request."
	}

	a.render(w, r, status, resources.TemplateError, errorPage{
		Status:     status,
		StatusText: http.StatusText(status),
		Error:      message,
		RequestID:  security.RequestID(r.Context()),
	})
}
