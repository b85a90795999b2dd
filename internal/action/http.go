package action

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/credential"
)

const maxBodyBytes = 1 << 20

// Endpoint exposes an action over HTTP: JSON body in, JSON result out.
type Endpoint[In, Out any] struct {
	Action Func[In, Out]
	Logger *zap.SugaredLogger
	// Status is written on success; defaults to 200. 204 writes no body.
	Status int
	// OnSuccess runs before the response is written, e.g. to set cookies.
	OnSuccess func(w http.ResponseWriter, r *http.Request, out Out) error
}

func (e Endpoint[In, Out]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	var in In
	if r.Body != nil && r.Body != http.NoBody {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
			logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
			WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
	}

	out, err := e.Action(r.Context(), in)
	if err != nil {
		WriteError(w, logger, r, err)
		return
	}
	if e.OnSuccess != nil {
		if err := e.OnSuccess(w, r, out); err != nil {
			WriteError(w, logger, r, err)
			return
		}
	}

	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	WriteJSON(w, status, out)
}

// WriteError maps action errors onto uniform client responses. Internal
// causes are logged, never echoed.
func WriteError(w http.ResponseWriter, logger *zap.SugaredLogger, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, ErrUnauthenticated):
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "please sign in again"})
	case errors.Is(err, credential.ErrInvalidCredentials):
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, ErrConflict):
		logger.Infow("conflict", "method", r.Method, "path", r.URL.Path, "err", err)
		WriteJSON(w, http.StatusConflict, map[string]string{"error": "conflict"})
	default:
		logger.Errorw("action failed", "method", r.Method, "path", r.URL.Path, "err", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
