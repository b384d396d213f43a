package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	DefaultAccessTTL  = 7 * 24 * time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

type Claims struct {
	Kind Kind `json:"typ"`
	jwt.RegisteredClaims
}

// UserID 即 sub
func (c *Claims) UserID() string { return c.Subject }

// TokenService 无状态签发/校验；不记录已签发的 token
type TokenService struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time // 测试可注入
}

func NewTokenService(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		Secret:     []byte(secret),
		Issuer:     issuer,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
	}
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) IssueAccessToken(uid string) (string, time.Time, error) {
	return s.issue(uid, KindAccess, s.AccessTTL)
}

func (s *TokenService) IssueRefreshToken(uid string) (string, time.Time, error) {
	return s.issue(uid, KindRefresh, s.RefreshTTL)
}

func (s *TokenService) issue(uid string, kind Kind, ttl time.Duration) (string, time.Time, error) {
	if uid == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    s.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify 校验签名、签发者、过期时间与 token 类型。
// 过期返回 ErrTokenExpired，其余（格式/签名/类型）一律 ErrTokenInvalid。
func (s *TokenService) Verify(tokenStr string, kind Kind) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected alg %v", token.Header["alg"])
		}
		return s.Secret, nil
	},
		jwt.WithIssuer(s.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		// 签名正确但已过期
		if errors.Is(err, jwt.ErrTokenExpired) &&
			!errors.Is(err, jwt.ErrTokenSignatureInvalid) &&
			!errors.Is(err, jwt.ErrTokenInvalidIssuer) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if c.Kind != kind {
		return nil, fmt.Errorf("%w: want %s token, got %q", ErrTokenInvalid, kind, c.Kind)
	}
	return c, nil
}
