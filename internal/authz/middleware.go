package authz

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tagvault/tagvault/internal/shared"
)

// Middleware wires the authorization policy into the HTTP layer. Guards run
// before the handler, so a denied request reaches no mutating code at all.
type Middleware struct {
	Logger *slog.Logger
}

// RequireUser redirects anonymous requests to the login page, preserving
// the original URL in the next parameter.
func (m Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ActorFromContext(r.Context()) == nil {
			http.Redirect(w, r, "/auth/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Require ensures the current actor may perform the action. Denials carry a
// flash message and land on the dashboard, matching the permission failure
// mode everywhere in the app.
func (m Middleware) Require(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if actor == nil {
				http.Redirect(w, r, "/auth/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
				return
			}
			if !Can(actor, action) {
				if m.Logger != nil {
					m.Logger.Warn("authorization denied",
						slog.String("action", string(action)),
						slog.String("username", actor.Username),
						slog.String("path", r.URL.Path))
				}
				if sess := shared.SessionFromContext(r.Context()); sess != nil {
					sess.AddFlash(shared.FlashMessage{Kind: "danger", Message: "You do not have permission to access this page."})
				}
				http.Redirect(w, r, "/assets/", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
