package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/milligram-be/internal/apperror"
	"github.com/isdelr/milligram-be/internal/auth"
	"github.com/isdelr/milligram-be/internal/models"
	"github.com/isdelr/milligram-be/internal/services"
	"github.com/rs/zerolog/hlog"
)

// UserHandler handles HTTP requests for accounts, sessions and profiles.
type UserHandler struct {
	service services.UserServiceProvider
	issuer  *auth.TokenIssuer
	cookies auth.Cookies
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider, issuer *auth.TokenIssuer, cookies auth.Cookies) *UserHandler {
	return &UserHandler{service: service, issuer: issuer, cookies: cookies}
}

// AuthPayload defines the structure for login requests.
type AuthPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// startSession issues a token for user and stores it in the session cookie.
func (h *UserHandler) startSession(w http.ResponseWriter, r *http.Request, user models.User) bool {
	token, expires, err := h.issuer.Issue(user.ID)
	if err != nil {
		WriteError(w, r, apperror.Internal("failed to generate token", err))
		return false
	}
	h.cookies.Set(w, token, expires)
	return true
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload services.RegisterInput
	if err := decodeJSON(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), payload)
	if err != nil {
		if apperror.Is(err, apperror.KindConflict) {
			hlog.FromRequest(r).Info().Str("username", payload.Username).Msg("Registration conflict")
		}
		WriteError(w, r, err)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	writeJSON(w, http.StatusCreated, M{"user": user})
}

// Login handles user authentication and sets the session cookie.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload AuthPayload
	if err := decodeJSON(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.service.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if apperror.Is(err, apperror.KindAuth) {
			hlog.FromRequest(r).Warn().Msg("Failed authentication attempt")
		}
		WriteError(w, r, err)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	writeJSON(w, http.StatusOK, M{"user": user})
}

// GetMe returns the user resolved by the auth middleware.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		WriteError(w, r, apperror.Auth("not authenticated"))
		return
	}
	writeJSON(w, http.StatusOK, M{"user": user})
}

// Logout clears the session cookie. The token itself stays valid until it expires.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, M{"message": "logged out successfully!"})
}

// GetProfile handles retrieving a user by username.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetProfile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, M{"user": user})
}
