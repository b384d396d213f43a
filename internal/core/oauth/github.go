package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const defaultGitHubAPIURL = "https://api.github.com"

type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// 测试时覆盖
	AuthURL  string
	TokenURL string
	APIURL   string
}

// GitHub 只支持授权码；邮箱取 /user/emails 中已验证的主邮箱
type GitHub struct {
	conf   *oauth2.Config
	apiURL string
	hc     *http.Client
}

var _ Provider = (*GitHub)(nil)

func NewGitHub(cfg GitHubConfig, hc *http.Client) *GitHub {
	ep := endpoints.GitHub
	if cfg.AuthURL != "" {
		ep.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		ep.TokenURL = cfg.TokenURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"read:user", "user:email"}
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultGitHubAPIURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &GitHub{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     ep,
			Scopes:       cfg.Scopes,
		},
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		hc:     hc,
	}
}

func (g *GitHub) Name() string { return ProviderGitHub }

func (g *GitHub) AuthCodeURL(state string) string { return g.conf.AuthCodeURL(state) }

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHub) Exchange(ctx context.Context, a Assertion) (*ExternalIdentity, error) {
	if a.Code == "" {
		if a.IDToken != "" {
			return nil, ErrUnsupportedAssertion
		}
		return nil, ErrMissingAssertion
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.hc)
	tok, err := g.conf.Exchange(ctx, a.Code)
	if err != nil {
		return nil, fmt.Errorf("github exchange: %w", err)
	}
	client := g.conf.Client(ctx, tok)

	var u githubUser
	if err := getJSON(ctx, client, g.apiURL+"/user", &u); err != nil {
		return nil, fmt.Errorf("github user: %w", err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("github user: empty id")
	}
	var emails []githubEmail
	if err := getJSON(ctx, client, g.apiURL+"/user/emails", &emails); err != nil {
		return nil, fmt.Errorf("github emails: %w", err)
	}
	email := pickEmail(emails)
	if email == "" {
		return nil, ErrNoVerifiedEmail
	}
	name := u.Name
	if name == "" {
		name = u.Login
	}
	return &ExternalIdentity{
		Provider: ProviderGitHub,
		Subject:  strconv.FormatInt(u.ID, 10),
		Email:    email,
		Name:     name,
		Avatar:   u.AvatarURL,
	}, nil
}

// pickEmail 主邮箱优先，其次任一已验证邮箱
func pickEmail(emails []githubEmail) string {
	var fallback string
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback
}
