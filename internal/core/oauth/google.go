package oauth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"go-gin-auth-session/internal/core/cache"
)

const (
	defaultGoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	defaultGoogleCertsURL    = "https://www.googleapis.com/oauth2/v1/certs"
	googleCertsKey           = "oauth:google:certs"
	googleCertsTTL           = time.Hour
	// 两次拉取证书的最小间隔，伪造 kid 不能把每个请求都变成一次外呼
	googleCertsMinRefresh = time.Minute
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// 测试时覆盖
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	CertsURL    string
}

// Google 支持授权码与 ID token 两种断言
type Google struct {
	conf        *oauth2.Config
	userInfoURL string
	certsURL    string
	certs       *cache.Cache
	hc          *http.Client
	now         func() time.Time

	mu        sync.Mutex
	fetchedAt time.Time // 本进程最近一次向 Google 拉取证书的时间
}

var _ Provider = (*Google)(nil)

func NewGoogle(cfg GoogleConfig, certs *cache.Cache, hc *http.Client) *Google {
	ep := endpoints.Google
	if cfg.AuthURL != "" {
		ep.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		ep.TokenURL = cfg.TokenURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultGoogleUserInfoURL
	}
	if cfg.CertsURL == "" {
		cfg.CertsURL = defaultGoogleCertsURL
	}
	if certs == nil {
		certs = cache.NewMemory()
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Google{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     ep,
			Scopes:       cfg.Scopes,
		},
		userInfoURL: cfg.UserInfoURL,
		certsURL:    cfg.CertsURL,
		certs:       certs,
		hc:          hc,
		now:         time.Now,
	}
}

func (g *Google) Name() string { return ProviderGoogle }

func (g *Google) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (g *Google) Exchange(ctx context.Context, a Assertion) (*ExternalIdentity, error) {
	switch {
	case a.IDToken != "":
		return g.verifyIDToken(ctx, a.IDToken)
	case a.Code != "":
		return g.exchangeCode(ctx, a.Code)
	default:
		return nil, ErrMissingAssertion
	}
}

type googleUserInfo struct {
	Sub           string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
}

func (g *Google) exchangeCode(ctx context.Context, code string) (*ExternalIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.hc)
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google exchange: %w", err)
	}
	var info googleUserInfo
	if err := getJSON(ctx, g.conf.Client(ctx, tok), g.userInfoURL, &info); err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("google userinfo: empty sub")
	}
	if info.Email == "" || !bool(info.EmailVerified) {
		return nil, ErrNoVerifiedEmail
	}
	return &ExternalIdentity{
		Provider: ProviderGoogle,
		Subject:  info.Sub,
		Email:    info.Email,
		Name:     info.Name,
		Avatar:   info.Picture,
	}, nil
}

type googleIDClaims struct {
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
	jwt.RegisteredClaims
}

func (g *Google) verifyIDToken(ctx context.Context, raw string) (*ExternalIdentity, error) {
	var claims googleIDClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return g.publicKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(g.conf.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	if !validIssuer(claims.Issuer) || claims.Subject == "" {
		return nil, ErrInvalidIDToken
	}
	if claims.Email == "" || !bool(claims.EmailVerified) {
		return nil, ErrNoVerifiedEmail
	}
	return &ExternalIdentity{
		Provider: ProviderGoogle,
		Subject:  claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Avatar:   claims.Picture,
	}, nil
}

func validIssuer(iss string) bool {
	for _, s := range googleIssuers {
		if iss == s {
			return true
		}
	}
	return false
}

// publicKey 证书走缓存；kid 不在缓存里说明 Google 可能已轮换，
// 距上次拉取超过 googleCertsMinRefresh 才强制刷新一次
func (g *Google) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, fmt.Errorf("missing kid")
	}
	for attempt := 0; attempt < 2; attempt++ {
		certs, err := cache.GetOrLoadJSON(g.certs, ctx, googleCertsKey, googleCertsTTL, g.fetchCerts)
		if err != nil {
			return nil, fmt.Errorf("google certs: %w", err)
		}
		if pem, ok := certs[kid]; ok {
			return jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		}
		if attempt > 0 || !g.refreshDue() {
			break
		}
		_ = g.certs.Delete(ctx, googleCertsKey)
	}
	return nil, fmt.Errorf("unknown kid %q", kid)
}

func (g *Google) refreshDue() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetchedAt.IsZero() || g.now().Sub(g.fetchedAt) >= googleCertsMinRefresh
}

func (g *Google) fetchCerts(ctx context.Context) (map[string]string, error) {
	var certs map[string]string
	if err := getJSON(ctx, g.hc, g.certsURL, &certs); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.fetchedAt = g.now()
	g.mu.Unlock()
	return certs, nil
}

// flexBool Google 的 email_verified 有时是字符串 "true"
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	*b = flexBool(strings.Trim(string(data), `"`) == "true")
	return nil
}
