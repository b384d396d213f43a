package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-gin-auth-session/internal/core/auth"
	"go-gin-auth-session/internal/core/config"
	"go-gin-auth-session/internal/core/metrics"
	"go-gin-auth-session/internal/core/server"
	"go-gin-auth-session/internal/service"
	mdw "go-gin-auth-session/internal/transport/http/middleware"
	resp "go-gin-auth-session/internal/transport/http/response"
)

// Deps 引擎依赖，由 cmd 组装
type Deps struct {
	Log     *zap.Logger
	Session *service.SessionService
	Tokens  *auth.TokenService
	Metrics *metrics.Metrics
	HTTP    config.HTTP
}

// baseMiddlewares 用户端与后台共用的链路；RPS<=0 表示不限速。
// Timeout 在 ConcurrencyLimit 之前，排队也受超时约束
func baseMiddlewares(d Deps) []gin.HandlerFunc {
	h := d.HTTP
	hs := []gin.HandlerFunc{
		mdw.RequestID(),
		mdw.Recovery(d.Log),
		mdw.AccessLog(d.Log),
		mdw.Metrics(d.Metrics),
	}
	if h.RateLimitRPS > 0 {
		hs = append(hs, mdw.RateLimit(rate.Limit(h.RateLimitRPS), h.RateLimitBurst))
	}
	if h.PerIPRPS > 0 {
		hs = append(hs, mdw.RateLimitPerIP(mdw.NewIPLimiter(rate.Limit(h.PerIPRPS), h.PerIPBurst)))
	}
	return append(hs,
		mdw.MaxBodyBytes(h.MaxBodyBytes),
		mdw.Timeout(time.Duration(h.RequestTimeoutSec)*time.Second),
		mdw.ConcurrencyLimit(int64(h.MaxConcurrent)),
	)
}

func mountOps(r *gin.Engine, d Deps) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	r.NoRoute(func(c *gin.Context) { resp.Fail(c, resp.CodeNotFound, "route not found") })
	r.NoMethod(func(c *gin.Context) { resp.Fail(c, resp.CodeMethodNotAllowed, "") })
}

func NewAPIEngine(d Deps) *gin.Engine {
	r := server.NewEngine(d.HTTP.CORSOrigins)
	r.Use(baseMiddlewares(d)...)
	mountOps(r, d)

	var reg Registry
	reg.Register(
		&authModule{session: d.Session, tokens: d.Tokens},
		&accountModule{session: d.Session, tokens: d.Tokens},
	)
	reg.MountAPI(New(r.Group("/api/v1"), d.Log, d.Metrics))
	return r
}
