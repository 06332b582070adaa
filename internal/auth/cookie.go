package auth

import (
	"net/http"
	"time"
)

// CookieName is the session cookie carrying the token.
const CookieName = "token"

// Cookies writes the session cookie. Production cookies are Secure and
// SameSite=None so a separately hosted frontend can send them.
type Cookies struct {
	Production bool
}

func (c Cookies) sameSite() http.SameSite {
	if c.Production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// Set stores token in the session cookie until expires.
func (c Cookies) Set(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   c.Production,
		SameSite: c.sameSite(),
	})
}

// Clear expires the session cookie.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Production,
		SameSite: c.sameSite(),
	})
}
