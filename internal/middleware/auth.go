package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appctx "bibleverse-backend/pkg/context"
	"bibleverse-backend/pkg/jwt"
	"bibleverse-backend/pkg/logger"
	"bibleverse-backend/pkg/response"
)

// RevocationChecker reports whether a token has been revoked
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, tokenString string) (bool, error)
}

// AuthMiddleware validates the bearer token and exposes the caller as
// user_id and role in the gin context and as an appctx.Actor in the request context.
// revocationChecker may be nil.
func AuthMiddleware(jwtManager *jwt.JWTManager, revocationChecker RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		tokenString := parts[1]

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			response.Error(c, 401, "INVALID_TOKEN", "Invalid token")
			c.Abort()
			return
		}

		if revocationChecker != nil {
			revoked, err := revocationChecker.IsTokenRevoked(c.Request.Context(), tokenString)
			if err != nil {
				// Fail open: the signature is valid and revocation is best effort
				logger.Warn("Token revocation check failed", logger.UserID(claims.UserID), zap.Error(err))
			} else if revoked {
				response.Unauthorized(c, "Token revoked")
				c.Abort()
				return
			}
		}

		role := claims.Role
		if role == "" {
			role = appctx.RoleUser
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", role)
		c.Request = c.Request.WithContext(appctx.WithActor(c.Request.Context(), appctx.Actor{
			UserID: claims.UserID,
			Role:   role,
		}))
		c.Next()
	}
}

// RequireRole rejects callers whose token does not carry role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != role {
			response.Forbidden(c, "Insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
