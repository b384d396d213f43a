package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"go-gin-auth-session/internal/core/auth"
	resp "go-gin-auth-session/internal/transport/http/response"
)

const KeyUserID = "userId"

// AuthJWT 只接受 access token；通过后 userId 写入上下文
func AuthJWT(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ah := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(ah, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			resp.Fail(c, resp.CodeUnauthorized, "missing token")
			return
		}
		claims, err := tokens.Verify(strings.TrimSpace(raw), auth.KindAccess)
		if errors.Is(err, auth.ErrTokenExpired) {
			resp.Fail(c, resp.CodeUnauthorized, "token expired")
			return
		}
		if err != nil {
			resp.Fail(c, resp.CodeUnauthorized, "invalid token")
			return
		}
		c.Set(KeyUserID, claims.UserID())
		c.Next()
	}
}
