package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultPath = "./configs/config.local.yaml"

type HTTP struct {
	Host              string
	Port              int
	ReadTimeoutSec    int
	WriteTimeoutSec   int
	IdleTimeoutSec    int
	RequestTimeoutSec int
	MaxBodyBytes      int64
	MaxConcurrent     int
	RateLimitRPS      float64 // 全局令牌桶
	RateLimitBurst    int
	PerIPRPS          float64
	PerIPBurst        int
	CORSOrigins       []string
}

type AdminHTTP struct {
	Host  string
	Port  int
	Token string // X-Admin-Token，空则后台拒绝所有请求
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP
}

type LogRotate struct {
	Enable     bool
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Log struct {
	Level  string
	JSON   bool
	Rotate LogRotate
}

type JWT struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Store 用户存储：memory（默认）/ mysql / postgres
type Store struct {
	Driver      string
	HashWorkers int // bcrypt 并发上限，0 为 GOMAXPROCS
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DB struct {
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Enabled 未配置 client id 的提供方不注册
func (o OAuthClient) Enabled() bool { return o.ClientID != "" }

type OAuth struct {
	Google OAuthClient
	GitHub OAuthClient
}

type Config struct {
	App   App
	Log   Log
	JWT   JWT
	Store Store
	DB    DB
	Redis Redis `mapstructure:"redis"`
	OAuth OAuth
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "auth-session")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readTimeoutSec", 5)
	v.SetDefault("app.http.writeTimeoutSec", 15)
	v.SetDefault("app.http.idleTimeoutSec", 60)
	v.SetDefault("app.http.requestTimeoutSec", 10)
	v.SetDefault("app.http.maxBodyBytes", 1<<20)
	v.SetDefault("app.http.maxConcurrent", 512)
	v.SetDefault("app.http.rateLimitRPS", 200)
	v.SetDefault("app.http.rateLimitBurst", 400)
	v.SetDefault("app.http.perIPRPS", 10)
	v.SetDefault("app.http.perIPBurst", 20)
	v.SetDefault("app.http.corsOrigins", []string{})
	v.SetDefault("app.admin.host", "127.0.0.1")
	v.SetDefault("app.admin.port", 8081)
	v.SetDefault("app.admin.token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.rotate.enable", false)
	v.SetDefault("log.rotate.filename", "logs/app.log")
	v.SetDefault("log.rotate.maxSizeMB", 100)
	v.SetDefault("log.rotate.maxBackups", 7)
	v.SetDefault("log.rotate.maxAgeDays", 30)
	v.SetDefault("log.rotate.compress", true)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "auth-session")
	v.SetDefault("jwt.accessTTL", "168h")
	v.SetDefault("jwt.refreshTTL", "720h")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.hashWorkers", 0)

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.username", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.maxOpenConns", 50)
	v.SetDefault("db.maxIdleConns", 10)
	v.SetDefault("db.connMaxLifetimeMin", 30)
	v.SetDefault("db.autoMigrate", true)
	v.SetDefault("db.logLevel", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	for _, p := range []string{"google", "github"} {
		v.SetDefault("oauth."+p+".clientID", "")
		v.SetDefault("oauth."+p+".clientSecret", "")
		v.SetDefault("oauth."+p+".redirectURL", "")
		v.SetDefault("oauth."+p+".scopes", []string{})
	}
}

// Load path 为空时依次取 CONFIG_PATH、默认路径；默认路径不存在时只用默认值 + 环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if !explicit {
		path = defaultPath
	}
	if _, err := os.Stat(path); err == nil || explicit {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt.secret is required")
	}
	if c.JWT.AccessTTL < 0 || c.JWT.RefreshTTL < 0 {
		return errors.New("config: jwt ttl must not be negative")
	}
	switch c.Store.Driver {
	case "memory", "mysql", "postgres":
	default:
		return fmt.Errorf("config: unsupported store.driver %q", c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.DB.DSN == "" {
		return fmt.Errorf("config: db.dsn is required for store.driver %q", c.Store.Driver)
	}
	return nil
}
