package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-gin-auth-session/internal/core/config"
	"go-gin-auth-session/internal/core/database"
	"go-gin-auth-session/internal/repo"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT:   config.JWT{Secret: "s", Issuer: "iss", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
		Store: config.Store{Driver: "memory", HashWorkers: 2},
	}
}

func TestBuild_Memory(t *testing.T) {
	cfg := testConfig()
	cfg.OAuth.GitHub = config.OAuthClient{ClientID: "gh-id", ClientSecret: "gh-secret"}

	deps, cleanup, err := Build(cfg, zap.NewNop(), "wire_test")
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, deps.Session)
	require.NotNil(t, deps.Tokens)
	require.NotNil(t, deps.Metrics)
	assert.Equal(t, []string{"github"}, deps.Session.Identities().Providers())
	_, ok := deps.Session.Credentials().Repo().(*repo.MemoryUserRepo)
	assert.True(t, ok)
}

func TestProviders_OnlyConfigured(t *testing.T) {
	cfg := testConfig()
	assert.Empty(t, Providers(cfg, nil))

	cfg.OAuth.Google = config.OAuthClient{ClientID: "g-id"}
	cfg.OAuth.GitHub = config.OAuthClient{ClientID: "gh-id"}
	ps := Providers(cfg, nil)
	require.Len(t, ps, 2)
	assert.Equal(t, "google", ps[0].Name())
	assert.Equal(t, "github", ps[1].Name())
}

func TestOpenStore_UnsupportedDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Driver = "oracle"
	_, _, err := OpenStore(cfg, zap.NewNop())
	assert.ErrorIs(t, err, database.ErrUnsupportedDriver)
}

func TestNewCache_FallsBackWithoutRedis(t *testing.T) {
	cfg := testConfig()
	assert.Nil(t, NewCache(cfg, zap.NewNop()).RDB)

	cfg.Redis.Addr = "127.0.0.1:1"
	assert.Nil(t, NewCache(cfg, zap.NewNop()).RDB)
}
