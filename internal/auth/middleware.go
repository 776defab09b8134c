package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tagvault/tagvault/internal/authz"
	"github.com/tagvault/tagvault/internal/shared"
)

// ActorMiddleware resolves the session's user id into the current actor and
// stores it in the request context. A session pointing at a deleted user is
// silently downgraded to anonymous.
func ActorMiddleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := strconv.ParseInt(sess.User(), 10, 64)
			if err != nil {
				sess.SetUser("")
				next.ServeHTTP(w, r)
				return
			}
			actor, err := service.ActorByID(r.Context(), id)
			if err != nil {
				if !errors.Is(err, shared.ErrNotFound) && logger != nil {
					logger.Error("resolve actor", slog.Any("error", err))
				}
				sess.SetUser("")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(authz.ContextWithActor(r.Context(), actor)))
		})
	}
}
