package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func protected(perm Permission) (http.Handler, *JWTMiddleware) {
	m := NewJWTMiddleware(testSecret)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	return m.Authenticate(NewRBAC(m).RequirePermission(perm)(ok)), m
}

func do(h http.Handler, token string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthenticate(t *testing.T) {
	h, _ := protected(PermPromptsRead)
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", sign(t, Claims{Sub: "u1", Role: "viewer"}, "other"), http.StatusUnauthorized},
		{"expired", sign(t, Claims{Sub: "u1", Role: "viewer", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: past}}, testSecret), http.StatusUnauthorized},
		{"no subject", sign(t, Claims{Role: "viewer"}, testSecret), http.StatusUnauthorized},
		{"viewer can read", sign(t, Claims{Sub: "u1", Role: "viewer", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}, testSecret), http.StatusNoContent},
		{"unknown role is denied", sign(t, Claims{Sub: "u1", Role: "guest"}, testSecret), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(h, tt.token))
		})
	}
}

func TestRequirePermission(t *testing.T) {
	h, _ := protected(PermSettingsManage)

	assert.Equal(t, http.StatusForbidden, do(h, sign(t, Claims{Sub: "u1", Role: "editor"}, testSecret)))
	assert.Equal(t, http.StatusNoContent, do(h, sign(t, Claims{Sub: "u1", Role: "admin"}, testSecret)))
	assert.Equal(t, http.StatusNoContent, do(h, sign(t, Claims{Sub: "u1", Role: "viewer", Permissions: []string{"settings:manage"}}, testSecret)))
}

func TestDisabledAuthPassesThrough(t *testing.T) {
	m := NewJWTMiddleware("")
	require.False(t, m.Enabled())

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := m.Authenticate(NewRBAC(m).RequirePermission(PermSettingsManage)(ok))

	assert.Equal(t, http.StatusNoContent, do(h, ""))
}
