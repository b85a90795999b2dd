package user

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/action"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// Handler exposes HTTP endpoints for account and session operations.
type Handler struct {
	svc       *Service
	accessor  *session.Accessor
	validator *action.Validator
	cookies   session.CookieOptions
	logger    *zap.SugaredLogger
}

func NewHandler(svc *Service, accessor *session.Accessor, cookies session.CookieOptions, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		svc:       svc,
		accessor:  accessor,
		validator: action.NewValidator(),
		cookies:   cookies,
		logger:    logger,
	}
}

// RegisterRoutes mounts the account routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /auth/register", h.withSession(action.Endpoint[RegisterInput, SessionResult]{
		Action:    action.WithValidatedInput(h.validator, h.svc.Register),
		Status:    http.StatusCreated,
		OnSuccess: h.setSession,
		Logger:    h.logger,
	}))
	mux.Handle("POST /auth/login", h.withSession(action.Endpoint[LoginInput, SessionResult]{
		Action:    action.WithValidatedInput(h.validator, h.svc.Login),
		OnSuccess: h.setSession,
		Logger:    h.logger,
	}))
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.Handle("GET /session", h.withSession(http.HandlerFunc(h.Session)))

	mux.Handle("GET /me", h.withSession(action.Endpoint[struct{}, *entity.Profile]{
		Action: action.RequireAuth(h.accessor, h.svc.Me),
		Logger: h.logger,
	}))
	mux.Handle("PUT /me/profile", h.withSession(action.Endpoint[UpdateProfileInput, SessionResult]{
		Action:    action.Protected(h.validator, h.accessor, h.svc.UpdateProfile),
		OnSuccess: h.setSession,
		Logger:    h.logger,
	}))
	mux.Handle("POST /me/password", h.withSession(action.Endpoint[ChangePasswordInput, SessionResult]{
		Action:    action.Protected(h.validator, h.accessor, h.svc.ChangePassword),
		OnSuccess: h.setSession,
		Logger:    h.logger,
	}))
	mux.Handle("DELETE /me", h.withSession(action.Endpoint[DeleteAccountInput, struct{}]{
		Action: action.Protected(h.validator, h.accessor, h.svc.DeleteAccount),
		Status: http.StatusNoContent,
		OnSuccess: func(w http.ResponseWriter, _ *http.Request, _ struct{}) error {
			session.ClearCookie(w, h.cookies)
			return nil
		},
		Logger: h.logger,
	}))
}

// Logout deletes the session cookie. It needs no valid session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session.ClearCookie(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

// sessionResponse is the body of GET /session.
type sessionResponse struct {
	Authenticated bool      `json:"authenticated"`
	UserID        string    `json:"user_id,omitempty"`
	Email         string    `json:"email,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	Role          string    `json:"role,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	claims := h.accessor.CurrentSession(r.Context())
	if claims == nil {
		action.WriteJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	action.WriteJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		UserID:        claims.UserID,
		Email:         claims.Email,
		DisplayName:   claims.DisplayName,
		Role:          claims.Role,
		ExpiresAt:     claims.ExpiresAt,
	})
}

func (h *Handler) setSession(w http.ResponseWriter, _ *http.Request, out SessionResult) error {
	session.SetCookie(w, out.Token, out.Claims, h.cookies)
	return nil
}

// withSession gives routes outside the refresh middleware the same
// request-scoped session view.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, session.WithRequest(r))
	})
}
