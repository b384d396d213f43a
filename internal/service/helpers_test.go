package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"go-gin-auth-session/internal/core/auth"
	"go-gin-auth-session/internal/core/oauth"
	"go-gin-auth-session/internal/domain"
	"go-gin-auth-session/internal/repo"
)

// MockProvider is a mock implementation of oauth.Provider.
type MockProvider struct {
	mock.Mock
	name string
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) AuthCodeURL(state string) string {
	return "https://idp.example/auth?state=" + state
}

func (m *MockProvider) Exchange(ctx context.Context, a oauth.Assertion) (*oauth.ExternalIdentity, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth.ExternalIdentity), args.Error(1)
}

// racingRepo 在下一次 Update 前插入一段动作，模拟并发写
type racingRepo struct {
	*repo.MemoryUserRepo
	once   sync.Once
	before func()
}

func (r *racingRepo) Update(ctx context.Context, id string, mutate func(u *domain.User) error) (*domain.User, error) {
	if r.before != nil {
		r.once.Do(r.before)
	}
	return r.MemoryUserRepo.Update(ctx, id, mutate)
}

type fixture struct {
	repo   *repo.MemoryUserRepo
	creds  *CredentialStore
	idents *IdentityReconciler
	tokens *auth.TokenService
	svc    *SessionService
	google *MockProvider
	github *MockProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   repo.NewMemoryUserRepo(),
		tokens: auth.NewTokenService("test-secret", "auth-test", time.Hour, 24*time.Hour),
		google: &MockProvider{name: oauth.ProviderGoogle},
		github: &MockProvider{name: oauth.ProviderGitHub},
	}
	log := zap.NewNop()
	f.creds = NewCredentialStore(f.repo, 4)
	f.idents = NewIdentityReconciler(f.repo, log, f.google, f.github)
	f.svc = NewSessionService(f.creds, f.idents, f.tokens, log)
	return f
}

func strPtr(s string) *string { return &s }
