package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"go-gin-auth-session/internal/app"
	"go-gin-auth-session/internal/core/config"
	"go-gin-auth-session/internal/core/server"
	"go-gin-auth-session/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, cleanup := app.NewLogger(cfg)
	defer cleanup()

	if cfg.Store.Driver == "memory" {
		// 内存库不跨进程，后台只能看到自己进程里的数据
		log.Warn("admin console on memory store sees an empty, private user set")
	}
	if cfg.App.Admin.Token == "" {
		log.Warn("app.admin.token is empty, /admin/v1 will reject every request")
	}

	deps, closeDeps, err := app.Build(cfg, log, "auth_admin")
	if err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	defer closeDeps()

	// 路由（后台端）
	r := router.NewAdminEngine(deps, cfg.App.Admin.Token)

	addr := server.Addr(cfg.App.Admin.Host, cfg.App.Admin.Port)
	srv := server.BuildServer(addr, r, 5*time.Second, 10*time.Second, 60*time.Second)

	baseURL := server.BaseURL(cfg.App.Admin.Host, cfg.App.Admin.Port)
	log.Info("admin api starting",
		zap.String("addr", addr),
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("admin_v1", baseURL+"/admin/v1"),
	)

	// 异步启动；失败立即退出
	go func() {
		if err := server.StartHTTP(srv, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("admin api start FAILED", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("admin api stopped gracefully")
}
