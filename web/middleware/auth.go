package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"

	userIDKey = "userID"
	roleKey   = "role"
)

// Claims are the bearer token claims issued by the auth provider. Subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RequireAuth verifies the HS256 bearer token and stores the caller's id and role in
// the gin context.
func RequireAuth(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var claims Claims
		_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// AdminAuth admits admin and staff callers. It must run after RequireAuth.
func AdminAuth(c *gin.Context) {
	switch c.GetString(roleKey) {
	case RoleAdmin, RoleStaff:
		c.Next()
	default:
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	}
}

// UserID returns the authenticated caller's id.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// Role returns the authenticated caller's role, if any.
func Role(c *gin.Context) string {
	return c.GetString(roleKey)
}
