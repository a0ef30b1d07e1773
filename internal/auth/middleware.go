package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/affirmations/internal/apperror"
)

// CookieName is the HttpOnly cookie the login and signup handlers set.
const CookieName = "token"

// contextKey is unexported so only this package can set or read the userID
// stored in a request context.
type contextKey string

const (
	userIDKey contextKey = "userID"
	slotKey   contextKey = "userIDSlot"
)

// identitySlot is shared by every context derived from the one
// WithIdentitySlot returned, so middleware that runs before authentication
// can read the user ID after the handler returns.
type identitySlot struct {
	userID string
}

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the JWT from the "token" cookie or an Authorization: Bearer header,
// validates it and stores the userID in the request context. A missing or
// invalid token ends the chain with 401.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth extracts the user identity when a valid token is present but
// never blocks the request.
//
// The daily-affirmation and user routes use it: they accept anonymous calls
// with a userId parameter, and handlers compare that parameter with the token
// subject when there is one.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminChecker reports whether a user has the admin flag.
// service.AccountService satisfies it.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RequireAdmin must run after RequireAuth. It rejects non-admins with 403 and
// tokens for users that no longer exist with 401.
func RequireAdmin(admins AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			isAdmin, err := admins.IsAdmin(r.Context(), userID)
			switch {
			case errors.Is(err, apperror.ErrNotFound):
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			case err != nil:
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
				return
			case !isAdmin:
				writeJSONError(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a context carrying userID, as the auth middlewares
// produce it. Handler tests use it to simulate a signed-in caller. When ctx
// holds an identity slot the ID is recorded there too.
func WithUserID(ctx context.Context, userID string) context.Context {
	if slot, ok := ctx.Value(slotKey).(*identitySlot); ok {
		slot.userID = userID
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// WithIdentitySlot prepares ctx so that an auth middleware further down the
// chain can report the resolved user back up. The request logger installs it
// before calling the rest of the chain.
func WithIdentitySlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, slotKey, &identitySlot{})
}

// ResolvedUserID returns the user ID an inner auth middleware recorded in the
// slot, or the one already on ctx.
func ResolvedUserID(ctx context.Context) (string, bool) {
	if slot, ok := ctx.Value(slotKey).(*identitySlot); ok && slot.userID != "" {
		return slot.userID, true
	}
	return UserIDFromContext(ctx)
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context. It returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// TokenFromRequest returns the raw JWT from the Authorization header or,
// failing that, the "token" cookie. The header wins so API clients can
// override a stale browser cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return "", errors.New("auth: no token")
	}
	return tokens.Validate(token)
}

// writeJSONError writes the same {"error","message"} shape as the handler
// package without importing it.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}
