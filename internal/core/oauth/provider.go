package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

var (
	ErrMissingAssertion     = errors.New("oauth: code or id token is required")
	ErrUnsupportedAssertion = errors.New("oauth: assertion type not supported by provider")
	ErrNoVerifiedEmail      = errors.New("oauth: provider returned no verified email")
	ErrInvalidIDToken       = errors.New("oauth: invalid id token")
)

// Assertion 客户端带回的凭据：授权码或 ID token 二选一
type Assertion struct {
	Code    string
	IDToken string
}

// ExternalIdentity 提供方确认过的身份
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Avatar   string
}

// Provider 启动时构建一次，注入到身份对账服务
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, a Assertion) (*ExternalIdentity, error)
}

// NewState 生成 consent URL 用的随机 state
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func getJSON(ctx context.Context, hc *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}
