// Package action wraps application actions with authentication and input
// validation preconditions. Each wrapper returns a function with the same
// calling contract as the one it wraps.
package action

import (
	"context"
	"errors"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrConflict marks errors caused by a clash with existing data.
	ErrConflict = errors.New("conflict")
)

// Func is a plain action over a declared input shape.
type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

// AuthedFunc is an action body that may assume a non-nil caller.
type AuthedFunc[In, Out any] func(ctx context.Context, caller *entity.Profile, in In) (Out, error)

// Identity resolves the authenticated caller for a context.
type Identity interface {
	CurrentUser(ctx context.Context) *entity.Profile
}

// RequireAuth fails with ErrUnauthenticated before fn runs when ctx carries no
// valid session. Lookup failures count as unauthenticated.
func RequireAuth[In, Out any](id Identity, fn AuthedFunc[In, Out]) Func[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		caller := id.CurrentUser(ctx)
		if caller == nil {
			var zero Out
			return zero, ErrUnauthenticated
		}
		return fn(ctx, caller, in)
	}
}

// WithValidatedInput returns a *ValidationError instead of invoking fn when in
// does not satisfy its `validate` tags.
func WithValidatedInput[In, Out any](v *Validator, fn Func[In, Out]) Func[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		if err := v.Validate(in); err != nil {
			var zero Out
			return zero, err
		}
		return fn(ctx, in)
	}
}

// Protected validates input, then authenticates, then runs fn. Validation
// errors never require a session.
func Protected[In, Out any](v *Validator, id Identity, fn AuthedFunc[In, Out]) Func[In, Out] {
	return WithValidatedInput(v, RequireAuth(id, fn))
}
