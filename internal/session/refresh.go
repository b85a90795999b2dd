package session

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// Refresh returns the sliding-window middleware. On safe methods a valid
// session cookie is reissued with a fresh expiry; an invalid one is deleted and
// the request continues anonymous. Unsafe methods see the cookie unchanged.
// Paths under any of skip are passed through untouched.
func Refresh(codec *Codec, opts CookieOptions, logger *zap.SugaredLogger, skip ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range skip {
				if p != "" && strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			token := TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !isSafeMethod(r.Method) {
				next.ServeHTTP(w, r.WithContext(withTokenState(r.Context(), tokenState{token: token})))
				return
			}

			st := refreshToken(codec, w, token, opts, logger)
			next.ServeHTTP(w, r.WithContext(withTokenState(r.Context(), st)))
		})
	}
}

func refreshToken(codec *Codec, w http.ResponseWriter, token string, opts CookieOptions, logger *zap.SugaredLogger) tokenState {
	claims, err := codec.Verify(token)
	if err != nil {
		auditRejected(logger, err, "refresh")
		ClearCookie(w, opts)
		return tokenState{cleared: true}
	}
	claims.ExpiresAt = time.Time{}
	fresh, issued, err := codec.Issue(claims)
	if err != nil {
		// keep the still-valid token; the next request retries
		logger.Warnw("session reissue failed", "user_id", claims.UserID, "err", err)
		return tokenState{token: token}
	}
	SetCookie(w, fresh, issued, opts)
	return tokenState{token: fresh}
}
