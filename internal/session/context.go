package session

import (
	"context"
	"net/http"
)

type tokenStateKey struct{}

// tokenState is the request-scoped view of the session cookie after any
// mutation made by the refresh middleware.
type tokenState struct {
	token   string
	cleared bool
}

func withTokenState(ctx context.Context, st tokenState) context.Context {
	return context.WithValue(ctx, tokenStateKey{}, st)
}

// WithRequest attaches r's session cookie to its context unless a token state
// is already present. Routes outside the refresh middleware use this.
func WithRequest(r *http.Request) *http.Request {
	if _, ok := r.Context().Value(tokenStateKey{}).(tokenState); ok {
		return r
	}
	return r.WithContext(withTokenState(r.Context(), tokenState{token: TokenFromRequest(r)}))
}

// ContextWithToken is for callers that obtained a token outside HTTP.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return withTokenState(ctx, tokenState{token: token})
}

func tokenFromContext(ctx context.Context) string {
	st, ok := ctx.Value(tokenStateKey{}).(tokenState)
	if !ok || st.cleared {
		return ""
	}
	return st.token
}
