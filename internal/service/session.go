package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"go-gin-auth-session/internal/core/auth"
	"go-gin-auth-session/internal/core/oauth"
	"go-gin-auth-session/internal/domain"
)

// AuthResult 登录类操作的统一结果；User 不含密码哈希（json:"-"）
type AuthResult struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

type RefreshResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// SessionService 编排注册、登录、刷新与第三方登录；令牌无状态，服务端不存会话
type SessionService struct {
	creds  *CredentialStore
	idents *IdentityReconciler
	tokens *auth.TokenService
	log    *zap.Logger
}

func NewSessionService(creds *CredentialStore, idents *IdentityReconciler, tokens *auth.TokenService, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionService{creds: creds, idents: idents, tokens: tokens, log: log}
}

func (s *SessionService) Credentials() *CredentialStore { return s.creds }

func (s *SessionService) Identities() *IdentityReconciler { return s.idents }

func (s *SessionService) issue(u *domain.User) (*AuthResult, error) {
	access, exp, err := s.tokens.IssueAccessToken(u.ID)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.IssueRefreshToken(u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}, nil
}

func (s *SessionService) Signup(ctx context.Context, name, email, password string) (*AuthResult, error) {
	u, err := s.creds.CreateUser(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	s.log.Info("user signed up", zap.String("userId", u.ID))
	return s.issue(u)
}

// Signin 先查账号状态再验密码；邮箱不存在、无密码、密码错误统一返回 ErrBadCredentials，耗时一致
func (s *SessionService) Signin(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.creds.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if u == nil || !u.HasPassword() {
		if _, err := s.creds.VerifyPassword(ctx, nil, password); err != nil {
			return nil, err
		}
		return nil, domain.ErrBadCredentials
	}
	if !u.IsActive {
		// 停用账号也跑一次比较，耗时与正常路径一致
		if _, err := s.creds.VerifyPassword(ctx, nil, password); err != nil {
			return nil, err
		}
		return nil, domain.ErrAccountDisabled
	}
	ok, err := s.creds.VerifyPassword(ctx, u, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrBadCredentials
	}
	u, err = s.creds.RecordLogin(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("user signed in", zap.String("userId", u.ID))
	return s.issue(u)
}

// Refresh 只签发新的 access token，refresh token 不轮换
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.Verify(refreshToken, auth.KindRefresh)
	if errors.Is(err, auth.ErrTokenExpired) {
		return nil, domain.ErrRefreshExpired
	}
	if err != nil {
		return nil, domain.ErrInvalidRefresh
	}
	u, err := s.creds.FindByID(ctx, claims.UserID())
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidRefresh
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, domain.ErrAccountDisabled
	}
	access, exp, err := s.tokens.IssueAccessToken(u.ID)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{AccessToken: access, ExpiresAt: exp}, nil
}

func (s *SessionService) SocialSignin(ctx context.Context, provider string, a oauth.Assertion) (*AuthResult, error) {
	u, err := s.idents.Resolve(ctx, provider, a)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, domain.ErrAccountDisabled
	}
	u, err = s.creds.RecordLogin(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("user signed in via provider", zap.String("provider", provider), zap.String("userId", u.ID))
	return s.issue(u)
}

// Signout 无服务端会话可清理，客户端丢弃令牌即可
func (s *SessionService) Signout(_ context.Context, userID string) error {
	s.log.Info("user signed out", zap.String("userId", userID))
	return nil
}

func (s *SessionService) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.creds.FindByID(ctx, userID)
}

func (s *SessionService) UpdateProfile(ctx context.Context, userID string, p ProfilePatch) (*domain.User, error) {
	return s.creds.UpdateProfile(ctx, userID, p)
}

func (s *SessionService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := s.creds.ChangePassword(ctx, userID, current, next); err != nil {
		return err
	}
	s.log.Info("password changed", zap.String("userId", userID))
	return nil
}

func (s *SessionService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.creds.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.log.Info("account deleted", zap.String("userId", userID))
	return nil
}

func (s *SessionService) ForgotPassword(_ context.Context, _ string) error {
	return domain.ErrNotImplemented
}

func (s *SessionService) ResetPassword(_ context.Context, _, _ string) error {
	return domain.ErrNotImplemented
}
