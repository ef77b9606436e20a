package api

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"mindmate.app/companion/internal/auth"
	"mindmate.app/companion/internal/core"
	"mindmate.app/companion/internal/logger"
	"mindmate.app/companion/internal/session"
)

const (
	sessionCookieName = "mindmate_session"
	// maxMessageLength caps a chat message in characters, counted after trimming.
	maxMessageLength = 4000
)

type APIHandler struct {
	authService   *core.AuthService
	chatService   *core.ChatService
	sessions      *session.Manager
	tokens        *auth.TokenIssuer
	log           *logger.Logger
	pages         *template.Template
	secureCookies bool
}

func NewAPIHandler(as *core.AuthService, cs *core.ChatService, sessions *session.Manager, tokens *auth.TokenIssuer, secureCookies bool, log *logger.Logger) (*APIHandler, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &APIHandler{
		authService:   as,
		chatService:   cs,
		sessions:      sessions,
		tokens:        tokens,
		log:           log,
		pages:         pages,
		secureCookies: secureCookies,
	}, nil
}

type ChatResponse struct {
	Response string `json:"response"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *APIHandler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.currentSession(r); ok {
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
		return
	}
	h.renderLogin(w, http.StatusOK, loginPage{})
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, http.StatusBadRequest, loginPage{Error: "Invalid form submission."})
		return
	}
	name := strings.TrimSpace(r.PostFormValue("name"))
	password := r.PostFormValue("password")

	user, created, err := h.authService.Login(r.Context(), name, password)
	switch {
	case errors.Is(err, core.ErrIncorrectPassword):
		h.renderLogin(w, http.StatusOK, loginPage{Error: "Incorrect password.", Name: name})
		return
	case errors.Is(err, core.ErrInvalidCredentials):
		h.renderLogin(w, http.StatusBadRequest, loginPage{Error: "Please enter a name and a password.", Name: name})
		return
	case err != nil:
		h.log.Error("Login failed", "name", name, "error", err)
		h.renderLogin(w, http.StatusInternalServerError, loginPage{Error: "Something went wrong. Please try again.", Name: name})
		return
	}

	sess := h.sessions.Create(user.UserID, user.Name)
	token, err := h.tokens.Generate(user.UserID, sess.ID)
	if err != nil {
		h.sessions.Delete(sess.ID)
		h.log.Error("Failed to sign session token", "user_id", user.UserID, "error", err)
		h.renderLogin(w, http.StatusInternalServerError, loginPage{Error: "Something went wrong. Please try again.", Name: name})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(h.tokens.TTL()),
	})
	h.log.Info("User logged in", "user_id", user.UserID, "registered", created)
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

func (h *APIHandler) ChatPageHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages.ExecuteTemplate(w, "chat.html", chatPage{Name: sess.Name, Sessions: sess.History()}); err != nil {
		h.log.Error("Failed to render chat page", "error", err)
	}
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid form submission"})
		return
	}
	message := strings.TrimSpace(r.PostFormValue("message"))
	if message == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Message cannot be empty"})
		return
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Message is too long"})
		return
	}

	result, err := h.chatService.Turn(r.Context(), sess, message)
	if err != nil {
		// The reply was generated and is in the live session; only the
		// durable copy is missing.
		h.log.Error("Failed to persist chat turn", "user_id", sess.UserID, "error", err)
	}
	writeJSON(w, http.StatusOK, ChatResponse{Response: sanitizeReply(result.Response)})
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	transcript, err := h.chatService.History(r.Context(), sess.UserID)
	if err != nil {
		h.log.Error("Failed to load transcript", "user_id", sess.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to load history"})
		return
	}
	writeJSON(w, http.StatusOK, transcript)
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.currentSession(r); ok {
		h.sessions.Delete(sess.ID)
		h.log.Info("User logged out", "user_id", sess.UserID)
	}
	h.clearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *APIHandler) renderLogin(w http.ResponseWriter, status int, page loginPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.pages.ExecuteTemplate(w, "login.html", page); err != nil {
		h.log.Error("Failed to render login page", "error", err)
	}
}

func (h *APIHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
