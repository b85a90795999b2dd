package session

import (
	"net/http"
	"time"
)

// CookieName is the transport cookie carrying the session token.
const CookieName = "session"

// CookieOptions controls the attributes written on the session cookie.
type CookieOptions struct {
	Secure bool
	Path   string
	Domain string
}

func (o CookieOptions) path() string {
	if o.Path == "" {
		return "/"
	}
	return o.Path
}

// SetCookie writes the session cookie; Expires mirrors the token's own expiry.
func SetCookie(w http.ResponseWriter, token string, claims Claims, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     opts.path(),
		Domain:   opts.Domain,
		Expires:  claims.ExpiresAt.UTC(),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie instructs the client to drop the session cookie.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     opts.path(),
		Domain:   opts.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the raw session cookie value, or "" when absent.
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
