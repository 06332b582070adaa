package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/isdelr/milligram-be/internal/apperror"
	"github.com/isdelr/milligram-be/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type contextKey string

const userKey = contextKey("user")

// UserLookup resolves the user a token refers to.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

// ErrorWriter renders an error response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFrom returns the authenticated user stored by Middleware.
func UserFrom(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey).(models.User)
	return user, ok
}

// TokenFromRequest reads the session token from the Authorization header or the session cookie.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Middleware rejects requests without a valid session and stores the
// sanitized user in the request context.
func Middleware(issuer *TokenIssuer, users UserLookup, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := TokenFromRequest(r)
			if tokenStr == "" {
				writeError(w, r, apperror.Auth("not authenticated"))
				return
			}

			claims, err := issuer.Verify(tokenStr)
			if err != nil {
				hlog.FromRequest(r).Debug().Err(err).Msg("Rejected session token")
				writeError(w, r, apperror.Auth("invalid or expired token!"))
				return
			}

			user, err := users.GetUserByID(r.Context(), claims.UserID)
			if err != nil {
				if apperror.Is(err, apperror.KindNotFound) {
					writeError(w, r, apperror.Auth("user not found!"))
					return
				}
				writeError(w, r, err)
				return
			}

			ctx := WithUser(r.Context(), user.Sanitized())
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("user_id", user.ID)
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
