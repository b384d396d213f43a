package app

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"go-gin-auth-session/internal/core/auth"
	"go-gin-auth-session/internal/core/cache"
	"go-gin-auth-session/internal/core/config"
	"go-gin-auth-session/internal/core/database"
	"go-gin-auth-session/internal/core/logger"
	"go-gin-auth-session/internal/core/metrics"
	"go-gin-auth-session/internal/core/oauth"
	"go-gin-auth-session/internal/domain"
	"go-gin-auth-session/internal/repo"
	"go-gin-auth-session/internal/service"
	"go-gin-auth-session/internal/transport/http/router"
)

// NewLogger 按配置建 logger，并把标准库 log 也接到 zap
func NewLogger(cfg *config.Config) (*zap.Logger, func()) {
	l, cleanup := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		JSON:        cfg.Log.JSON,
		AddCaller:   true,
		Development: cfg.App.Env == "local",
		Rotate: logger.FileRotate{
			Enable:     cfg.Log.Rotate.Enable,
			Filename:   cfg.Log.Rotate.Filename,
			MaxSizeMB:  cfg.Log.Rotate.MaxSizeMB,
			MaxBackups: cfg.Log.Rotate.MaxBackups,
			MaxAgeDays: cfg.Log.Rotate.MaxAgeDays,
			Compress:   cfg.Log.Rotate.Compress,
		},
	})
	undo := logger.RedirectStdLog(l, zap.InfoLevel)
	return l, func() {
		undo()
		cleanup()
	}
}

// OpenStore memory 时进程内建空库；mysql/postgres 走 gorm，按需迁移
func OpenStore(cfg *config.Config, l *zap.Logger) (domain.UserRepository, func(), error) {
	if cfg.Store.Driver == "memory" {
		l.Info("user store ready", zap.String("driver", "memory"))
		return repo.NewMemoryUserRepo(), func() {}, nil
	}
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.Store.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
	}, l)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	r := repo.NewGormUserRepo(db)
	if cfg.DB.AutoMigrate {
		if err := r.AutoMigrate(); err != nil {
			closeDB()
			return nil, nil, err
		}
		l.Info("automigrate done")
	}
	l.Info("user store ready", zap.String("driver", cfg.Store.Driver))
	return r, closeDB, nil
}

// NewCache redis 不可用时退回进程内缓存，只影响证书缓存的共享
func NewCache(cfg *config.Config, l *zap.Logger) *cache.Cache {
	c := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if cfg.Redis.Addr == "" {
		return c
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		l.Warn("redis unreachable, falling back to in-process cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = c.Close()
		return cache.NewMemory()
	}
	l.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	return c
}

// Providers 只注册配置了 client id 的提供方
func Providers(cfg *config.Config, certs *cache.Cache) []oauth.Provider {
	hc := &http.Client{Timeout: 10 * time.Second}
	var ps []oauth.Provider
	if g := cfg.OAuth.Google; g.Enabled() {
		ps = append(ps, oauth.NewGoogle(oauth.GoogleConfig{
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			RedirectURL:  g.RedirectURL,
			Scopes:       g.Scopes,
		}, certs, hc))
	}
	if g := cfg.OAuth.GitHub; g.Enabled() {
		ps = append(ps, oauth.NewGitHub(oauth.GitHubConfig{
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			RedirectURL:  g.RedirectURL,
			Scopes:       g.Scopes,
		}, hc))
	}
	return ps
}

// Build 组装两个引擎共用的依赖；cleanup 逆序释放
func Build(cfg *config.Config, l *zap.Logger, namespace string) (router.Deps, func(), error) {
	store, closeStore, err := OpenStore(cfg, l)
	if err != nil {
		return router.Deps{}, nil, err
	}
	certs := NewCache(cfg, l)

	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	creds := service.NewCredentialStore(store, cfg.Store.HashWorkers)
	idents := service.NewIdentityReconciler(store, l, Providers(cfg, certs)...)
	l.Info("oauth providers", zap.Strings("enabled", idents.Providers()))

	deps := router.Deps{
		Log:     l,
		Session: service.NewSessionService(creds, idents, tokens, l),
		Tokens:  tokens,
		Metrics: metrics.New(namespace),
		HTTP:    cfg.App.HTTP,
	}
	return deps, func() {
		_ = certs.Close()
		closeStore()
	}, nil
}
