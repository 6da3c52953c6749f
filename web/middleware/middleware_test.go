package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-hotspot/metrics"
)

var secret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func token(t *testing.T, key []byte, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func claims(sub, role string, ttl time.Duration) Claims {
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", RequireAuth(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c), "role": Role(c)})
	})
	r.GET("/admin", RequireAuth(secret), AdminAuth, func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	r := authRouter()

	rec := do(r, "/me", token(t, secret, jwt.SigningMethodHS256, claims("user-1", "", time.Hour)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"user-1","role":""}`, rec.Body.String())

	tests := []struct {
		name   string
		bearer string
	}{
		{"missing", ""},
		{"garbage", "not-a-token"},
		{"wrong key", token(t, []byte("other"), jwt.SigningMethodHS256, claims("user-1", "", time.Hour))},
		{"expired", token(t, secret, jwt.SigningMethodHS256, claims("user-1", "", -time.Minute))},
		{"no expiry", token(t, secret, jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})},
		{"no subject", token(t, secret, jwt.SigningMethodHS256, claims("", "", time.Hour))},
		{"wrong alg", token(t, secret, jwt.SigningMethodHS512, claims("user-1", "", time.Hour))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, do(r, "/me", tt.bearer).Code)
		})
	}
}

func TestAdminAuth(t *testing.T) {
	r := authRouter()

	assert.Equal(t, http.StatusNoContent, do(r, "/admin", token(t, secret, jwt.SigningMethodHS256, claims("a", RoleAdmin, time.Hour))).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", token(t, secret, jwt.SigningMethodHS256, claims("s", RoleStaff, time.Hour))).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/admin", token(t, secret, jwt.SigningMethodHS256, claims("c", "", time.Hour))).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/admin", "").Code)
}

func limitedRouter(l Limiter) *gin.Engine {
	r := gin.New()
	r.GET("/plans", RateLimit(l, zap.NewNop()), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimiterInMemory(t *testing.T) {
	r := limitedRouter(NewRateLimiter(3, time.Minute))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(r, "/plans", "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, do(r, "/plans", "").Code)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	_, err := rl.Allow(t.Context(), "10.0.0.1")
	require.NoError(t, err)

	rl.cleanup(time.Now())
	assert.Len(t, rl.visitors, 1)
	rl.cleanup(time.Now().Add(2 * time.Minute))
	assert.Empty(t, rl.visitors)
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewRedisRateLimiter(client, 2, time.Minute)
	r := limitedRouter(rl)

	assert.Equal(t, http.StatusOK, do(r, "/plans", "").Code)
	assert.Equal(t, http.StatusOK, do(r, "/plans", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, "/plans", "").Code)

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, do(r, "/plans", "").Code)
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	r := limitedRouter(NewRedisRateLimiter(client, 1, time.Minute))
	assert.Equal(t, http.StatusOK, do(r, "/plans", "").Code)
	assert.Equal(t, http.StatusOK, do(r, "/plans", "").Code)
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/plans/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	do(r, "/plans/1", "")
	do(r, "/plans/2", "")
	do(r, "/nowhere", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/plans/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
