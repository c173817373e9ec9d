package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func sign(t *testing.T, v *JWTValidator, sub string, role int, ttl time.Duration) string {
	t.Helper()
	token, err := v.Sign(Claims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	require.NoError(t, err)
	return token
}

func TestValidateToken(t *testing.T) {
	v := NewJWTValidator("secret")

	claims, err := v.ValidateToken(sign(t, v, "u1", RoleAdmin, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.GetUserID())
	assert.True(t, claims.IsAdmin())

	_, err = v.ValidateToken(sign(t, v, "u1", RoleStudent, -time.Minute))
	assert.ErrorIs(t, err, ErrExpiredToken)

	other := NewJWTValidator("other")
	_, err = v.ValidateToken(sign(t, other, "u1", RoleStudent, time.Hour))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.ValidateToken(sign(t, v, "", RoleStudent, time.Hour))
	assert.ErrorIs(t, err, ErrInvalidClaims)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Sub: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.ValidateToken(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRoles(t *testing.T) {
	assert.False(t, (&Claims{Role: RoleStudent}).IsAdmin())
	assert.False(t, (&Claims{Role: RoleSetter}).IsAdmin())
	assert.True(t, (&Claims{Role: RoleAdmin}).IsAdmin())
	assert.True(t, (&Claims{Role: RoleAdmin + 1}).IsAdmin())
}

func TestMiddleware(t *testing.T) {
	v := NewJWTValidator("secret")
	m := metrics.New(prometheus.NewRegistry())

	r := gin.New()
	r.GET("/me", Authenticate(v, m), func(c *gin.Context) {
		c.String(http.StatusOK, ClaimsFrom(c).GetUserID())
	})
	r.GET("/admin", Authenticate(v, m), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	do := func(path, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	student := sign(t, v, "u1", RoleStudent, time.Hour)
	admin := sign(t, v, "root", RoleAdmin, time.Hour)

	w := do("/me", "Bearer "+student)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	w = do("/me?token="+student, "")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusUnauthorized, do("/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do("/me", "Bearer garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, do("/me", "Basic "+student).Code)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.AuthFailures))

	assert.Equal(t, http.StatusForbidden, do("/admin", "Bearer "+student).Code)
	assert.Equal(t, http.StatusNoContent, do("/admin", "Bearer "+admin).Code)
}
