package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/affirmations/internal/auth"
	"github.com/sakif/affirmations/internal/model"
	"github.com/sakif/affirmations/internal/service"
)

// AccountService is the part of service.AccountService the auth handler
// needs.
type AccountService interface {
	Signup(ctx context.Context, name, email, password string) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthHandler manages signup, login, logout and the current-user lookup.
//
// A successful signup or login returns {user, token} and also sets the
// token as an HttpOnly cookie, so browser clients never handle the JWT and
// API clients can send it as a Bearer header instead.
type AuthHandler struct {
	accounts AccountService
	tokenTTL time.Duration
	logger   *slog.Logger
}

func NewAuthHandler(accounts AccountService, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, tokenTTL: tokenTTL, logger: logger}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignup creates an account.
//
// HTTP: POST /api/auth/signup
// REQUEST BODY: {"name": "Ada", "email": "ada@example.com", "password": "secret1"}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if status, _ := errorStatus(err); status == http.StatusInternalServerError {
			h.logger.Error("signup failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, r, res.Token, int(h.tokenTTL.Seconds()))
	writeJSON(w, http.StatusCreated, res)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin checks credentials.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if status, _ := errorStatus(err); status == http.StatusInternalServerError {
			h.logger.Error("login failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, r, res.Token, int(h.tokenTTL.Seconds()))
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout clears the token cookie.
//
// HTTP: POST /api/auth/logout
//
// Tokens are stateless, so an already-issued JWT stays valid until it
// expires. Logout only removes the browser's copy.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.setTokenCookie(w, r, "", -1)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /api/me (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
		return
	}

	user, err := h.accounts.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Warn("me: user lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// setTokenCookie writes the JWT cookie. maxAge -1 deletes it. Secure is set
// when the request arrived over TLS, directly or behind a proxy.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}
