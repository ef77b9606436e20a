package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mindmate.app/companion/internal/logger"
)

func NewRouter(apiHandler *APIHandler, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// Public routes
	r.Get("/", apiHandler.IndexHandler)
	r.Post("/login", apiHandler.LoginHandler)
	r.Get("/logout", apiHandler.LogoutHandler)
	r.Handle("/static/*", staticHandler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Session-bound routes
	r.Group(func(r chi.Router) {
		r.Use(apiHandler.SessionMiddleware)

		r.Get("/chat", apiHandler.ChatPageHandler)
		r.Post("/chat", apiHandler.PostMessageHandler)
		r.Get("/chat/history", apiHandler.HistoryHandler)
	})

	return r
}
