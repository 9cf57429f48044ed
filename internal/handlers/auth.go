package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/types"
)

// AuthHandler serves account registration and login and guards routes
// that need a signed-in user.
type AuthHandler struct {
	users  *services.UserService
	tokens *tokenSigner
}

// NewAuthHandler constructs an AuthHandler signing tokens with jwtSecret.
// A non-positive tokenTTL falls back to 24 hours.
func NewAuthHandler(users *services.UserService, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		users:  users,
		tokens: newTokenSigner(jwtSecret, tokenTTL),
	}
}

// UserRouter registers account routes on the given router.
func UserRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth is middleware that admits only requests carrying a valid
// bearer token.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return h.tokens.Middleware(next)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body RegisterRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.users.Register(r.Context(), services.Registration{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
	})
	switch {
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "email already registered")
	case err != nil:
		writeServiceError(w, r, err, "user")
	default:
		writeJSON(w, http.StatusCreated, created)
	}
}

// Login exchanges an email and password for an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body LoginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	account, err := h.users.Authenticate(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeServiceError(w, r, err, "user")
		return
	}

	signed, expiresAt, err := h.tokens.Issue(account.ID)
	if err != nil {
		writeServiceError(w, r, err, "token")
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: signed, ExpiresAt: expiresAt, User: account})
}

// Me returns the signed-in user. A token whose user no longer exists is
// treated as unauthenticated.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := userIDFromContext(r.Context())
	if err == nil {
		var account types.User
		account, err = h.users.GetByID(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, account)
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			writeServiceError(w, r, err, "user")
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by a successful login.
type AuthResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      types.User `json:"user"`
}
