package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewEngine 裸引擎 + CORS；origins 为空时不挂 CORS（后台端）
func NewEngine(origins []string) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	if len(origins) > 0 {
		cfg := cors.DefaultConfig()
		if len(origins) == 1 && origins[0] == "*" {
			cfg.AllowAllOrigins = true
		} else {
			cfg.AllowOrigins = origins
		}
		cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "X-Request-ID")
		cfg.ExposeHeaders = []string{"X-Request-ID"}
		r.Use(cors.New(cfg))
	}
	return r
}

func StartHTTP(srv *http.Server, l *zap.Logger) error {
	l.Info("http starting", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}

func BuildServer(addr string, handler http.Handler, rt, wt, it time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       rt,
		ReadHeaderTimeout: rt,
		WriteTimeout:      wt,
		IdleTimeout:       it,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
}

func Addr(host string, port int) string { return fmt.Sprintf("%s:%d", host, port) }

// BaseURL 启动日志里给人点的地址
func BaseURL(host string, port int) string {
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return "http://" + Addr(host, port)
}
