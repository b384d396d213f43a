package middleware

import (
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	resp "go-gin-auth-session/internal/transport/http/response"
)

// Recovery panic 记录堆栈，客户端只拿到统一的 500 信封
func Recovery(l *zap.Logger) gin.HandlerFunc {
	return ginzap.CustomRecoveryWithZap(l, true, func(c *gin.Context, _ any) {
		resp.Fail(c, resp.CodeServerError, "internal error")
	})
}
