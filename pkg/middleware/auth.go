package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/DarkMonkDev/witchcityrope-availability/pkg/response"
)

const (
	// ContextKeyUserID is the gin context key carrying the caller's user id
	ContextKeyUserID = "user_id"
	// ContextKeyRoles is the gin context key carrying the caller's roles
	ContextKeyRoles = "roles"

	// RoleOrganizer may author and publish events
	RoleOrganizer = "organizer"
	// RoleStaff may check members in
	RoleStaff = "staff"
	// RoleAdmin may trigger waitlist promotion and everything above
	RoleAdmin = "admin"
)

// AuthConfig holds JWT verification settings
type AuthConfig struct {
	Secret string
	Issuer string
}

// Claims is the expected token payload. Identity and roles come from the
// external identity provider; this service only verifies and reads them.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Auth returns a middleware that verifies the bearer token and stores the
// caller's identity and roles in the request context.
func Auth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(401, response.ErrorBody("UNAUTHORIZED", "missing bearer token"))
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		}, jwt.WithIssuer(cfg.Issuer))

		if err != nil || !token.Valid || claims.Subject == "" {
			c.AbortWithStatusJSON(401, response.ErrorBody("UNAUTHORIZED", "invalid token"))
			return
		}

		c.Set(ContextKeyUserID, claims.Subject)
		c.Set(ContextKeyRoles, claims.Roles)
		c.Next()
	}
}

// RequireRole returns a middleware that rejects callers lacking the role.
// Admin passes every role gate.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !HasRole(c, role) {
			c.AbortWithStatusJSON(403, response.ErrorBody("FORBIDDEN", "insufficient role"))
			return
		}
		c.Next()
	}
}

// HasRole reports whether the caller carries the role (or admin).
func HasRole(c *gin.Context, role string) bool {
	v, exists := c.Get(ContextKeyRoles)
	if !exists {
		return false
	}
	roles, ok := v.([]string)
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}
