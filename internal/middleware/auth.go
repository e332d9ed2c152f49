package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"callhub-backend/pkg/jwt"
	"callhub-backend/pkg/logger"
	"callhub-backend/pkg/metrics"
	"callhub-backend/pkg/response"
)

// RevocationChecker defines interface for checking if a token is revoked (blacklisted)
type RevocationChecker interface {
	// IsTokenRevoked checks if the token with the given jti has been revoked
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthMiddleware creates a Gin middleware that validates JWT tokens.
// The token is read from the Authorization header or, for WebSocket
// upgrades where browsers cannot set headers, from the token query parameter.
// If valid, it sets user_id, username, and role in the Gin context.
// Parameters:
//   - jwtManager: JWT manager for token validation
//   - revocationChecker: Optional checker for token revocation (can be nil)
//   - m: Optional metrics sink for auth failures (can be nil)
func AuthMiddleware(jwtManager *jwt.JWTManager, revocationChecker RevocationChecker, m *metrics.Metrics) gin.HandlerFunc {
	fail := func(c *gin.Context, reason, message string) {
		if m != nil {
			m.RecordAuthFailure(reason)
		}
		response.Unauthorized(c, message)
		c.Abort()
	}

	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			fail(c, "missing_token", "Authorization header required")
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			fail(c, "invalid_token", "Invalid token")
			return
		}

		// Check revocation
		if revocationChecker != nil && claims.ID != "" {
			revoked, err := revocationChecker.IsTokenRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				// Fail-open: the signature already verified, revocation is best-effort
				logger.Warn("Token revocation check failed, allowing request",
					zap.String("user_id", claims.UserID.String()),
					zap.Error(err))
			} else if revoked {
				fail(c, "revoked", "Token revoked")
				return
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}
