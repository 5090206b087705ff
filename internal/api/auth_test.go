package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/septivank/iot-telemetry-hub/internal/maintenance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_IssueAndVerify(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	tok := token(t, auth, "tech-1", maintenance.RoleTech)

	actor, err := auth.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, maintenance.Actor{UserID: "tech-1", Role: maintenance.RoleTech}, actor)

	_, err = NewAuthenticator("other-secret").Verify(tok)
	assert.Error(t, err)
}

func TestAuthenticator_RejectsExpiredToken(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	tok, err := auth.Issue(maintenance.Actor{UserID: "u-1", Role: maintenance.RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	_, err = auth.Verify(tok)
	assert.Error(t, err)
}

func TestAuthenticator_RejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{UserID: "u-1", Role: "admin"}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewAuthenticator(testSecret).Verify(unsigned)
	assert.Error(t, err)
}

func TestMiddlewareAndRequireRole(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, found := ActorFrom(r.Context())
		assert.True(t, found)
		respondOK(w, actor)
	})
	h := auth.Middleware(RequireRole(maintenance.RoleAdmin)(ok))

	code, resp := do(t, h, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)

	code, _ = do(t, h, http.MethodGet, "/", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, h, http.MethodGet, "/", token(t, auth, "tech-1", maintenance.RoleTech), "")
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = do(t, h, http.MethodGet, "/", token(t, auth, "admin-1", maintenance.RoleAdmin), "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"userId":"admin-1","role":"admin"}`, string(resp.Data))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.Validation("bad"), http.StatusBadRequest},
		{errs.NotFound("missing"), http.StatusNotFound},
		{errs.Forbidden("no"), http.StatusForbidden},
		{&errs.TransitionError{From: "approved", To: "pending"}, http.StatusConflict},
		{errs.Conflict("changed"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestHealth(t *testing.T) {
	r := NewRouter("telemetry-service", zapNop())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
