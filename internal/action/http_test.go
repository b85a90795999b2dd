package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestEndpointSuccess(t *testing.T) {
	ep := Endpoint[renameInput, map[string]string]{
		Action: WithValidatedInput(NewValidator(), func(ctx context.Context, in renameInput) (map[string]string, error) {
			return map[string]string{"display_name": in.DisplayName}, nil
		}),
		Status: http.StatusCreated,
	}
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"display_name":"Ada"}`))
	rec := httptest.NewRecorder()
	ep.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Ada", decodeBody(t, rec)["display_name"])
}

func TestEndpointValidationFailure(t *testing.T) {
	ep := Endpoint[renameInput, string]{
		Action: WithValidatedInput(NewValidator(), func(context.Context, renameInput) (string, error) { return "", nil }),
	}
	rec := httptest.NewRecorder()
	ep.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	fields, ok := body["fields"].([]any)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "display_name", fields[0].(map[string]any)["field"])
}

func TestEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{ErrUnauthenticated, http.StatusUnauthorized, "please sign in again"},
		{credential.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{fmt.Errorf("%w: email already registered", ErrConflict), http.StatusConflict, "conflict"},
		{errors.New("db exploded at 10.0.0.3"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		ep := Endpoint[struct{}, string]{
			Action: func(context.Context, struct{}) (string, error) { return "", tc.err },
		}
		rec := httptest.NewRecorder()
		ep.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.msg, decodeBody(t, rec)["error"])
	}
}

func TestEndpointConflictLogsCause(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ep := Endpoint[struct{}, string]{
		Action: func(context.Context, struct{}) (string, error) {
			return "", fmt.Errorf("%w: email already registered", ErrConflict)
		},
		Logger: zap.New(core).Sugar(),
	}
	rec := httptest.NewRecorder()
	ep.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotContains(t, rec.Body.String(), "email already registered")
	entries := logs.FilterMessage("conflict").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["err"], "email already registered")
}

func TestEndpointBadJSON(t *testing.T) {
	called := false
	ep := Endpoint[renameInput, string]{
		Action: func(context.Context, renameInput) (string, error) {
			called = true
			return "", nil
		},
	}
	rec := httptest.NewRecorder()
	ep.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"display_name":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestEndpointOnSuccessAndNoContent(t *testing.T) {
	id := &staticIdentity{user: &entity.Profile{ID: "1"}}
	ep := Endpoint[struct{}, string]{
		Action: RequireAuth(id, func(context.Context, *entity.Profile, struct{}) (string, error) { return "bye", nil }),
		Status: http.StatusNoContent,
		OnSuccess: func(w http.ResponseWriter, r *http.Request, out string) error {
			w.Header().Set("X-Out", out)
			return nil
		},
	}
	rec := httptest.NewRecorder()
	ep.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/me", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "bye", rec.Header().Get("X-Out"))
	assert.Empty(t, rec.Body.String())
}
