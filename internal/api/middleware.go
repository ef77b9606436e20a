package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"mindmate.app/companion/internal/logger"
	"mindmate.app/companion/internal/session"
)

type ctxKey int

const sessionKey ctxKey = iota

func sessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey).(*session.Session)
	return sess
}

// currentSession resolves the session cookie to a live in-memory session.
func (h *APIHandler) currentSession(r *http.Request) (*session.Session, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	userID, sessionID, err := h.tokens.Validate(cookie.Value)
	if err != nil {
		h.log.Debug("Rejected session cookie", "error", err)
		return nil, false
	}
	return h.sessions.Get(sessionID, userID)
}

// SessionMiddleware sends requests without a live session back to the login
// page. That is a redirect, not an error.
func (h *APIHandler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.currentSession(r)
		if !ok {
			if _, err := r.Cookie(sessionCookieName); err == nil {
				h.clearCookie(w)
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

// RequestLogger logs one line per request through the application logger.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("Request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
