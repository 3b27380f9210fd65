package middleware

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/fleet-api/pkg/auth"
)

// AccountIDKey is the gin context key holding the authenticated account id (uint).
const AccountIDKey = "accountID"

// APIKeyHeader carries the shared key on host-to-subsystem calls.
const APIKeyHeader = "X-API-Key"

// TokenParser validates bearer tokens.
type TokenParser interface {
	ParseToken(tokenString string) (*auth.Claims, error)
}

// AuthMiddleware обеспечивает аутентификацию для защищенных маршрутов
type AuthMiddleware struct {
	tokens  TokenParser
	apiKeys [][]byte
}

func NewAuthMiddleware(tokens TokenParser, apiKeys []string) *AuthMiddleware {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return &AuthMiddleware{tokens: tokens, apiKeys: keys}
}

// RequireAuth проверяет Bearer токен и кладет account_id в контекст
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
			return
		}

		claims, err := m.tokens.ParseToken(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired", "error_type": "token_expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "error_type": "token_invalid"})
			return
		}

		c.Set(AccountIDKey, claims.AccountID)
		c.Next()
	}
}

// RequireAPIKey пропускает только вызовы хост-приложения с известным ключом
func (m *AuthMiddleware) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := []byte(c.GetHeader(APIKeyHeader))
		if len(presented) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key is required", "error_type": "api_key_missing"})
			return
		}

		for _, key := range m.apiKeys {
			if subtle.ConstantTimeCompare(presented, key) == 1 {
				c.Next()
				return
			}
		}

		slog.Warn("[AuthMiddleware] rejected API key", "ip", c.ClientIP(), "path", c.FullPath())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid API key", "error_type": "forbidden"})
	}
}
