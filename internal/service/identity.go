package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"go-gin-auth-session/internal/core/oauth"
	"go-gin-auth-session/internal/domain"
	"go-gin-auth-session/pkg/utils"
)

// IdentityReconciler 把提供方确认的身份落到本地用户：
// 先按 (provider, subject) 找，再按邮箱找，找不到就建号。
type IdentityReconciler struct {
	repo      domain.UserRepository
	providers map[string]oauth.Provider
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewIdentityReconciler(repo domain.UserRepository, log *zap.Logger, providers ...oauth.Provider) *IdentityReconciler {
	m := make(map[string]oauth.Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityReconciler{repo: repo, providers: m, log: log, now: time.Now, newID: utils.NewID}
}

func (r *IdentityReconciler) Provider(name string) (oauth.Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return p, nil
}

// Providers 已配置的提供方名，排序后返回
func (r *IdentityReconciler) Providers() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve 校验断言并返回对应本地用户（必要时新建或绑定）
func (r *IdentityReconciler) Resolve(ctx context.Context, provider string, a oauth.Assertion) (*domain.User, error) {
	p, err := r.Provider(provider)
	if err != nil {
		return nil, err
	}
	ext, err := p.Exchange(ctx, a)
	if err != nil {
		// 细节只进日志
		r.log.Warn("external auth failed", zap.String("provider", provider), zap.Error(err))
		return nil, mapProviderErr(err)
	}
	if ext.Email == "" {
		return nil, domain.ErrProviderNoEmail
	}

	u, err := r.repo.FindByIdentity(ctx, ext.Provider, ext.Subject)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	u, err = r.repo.FindByEmail(ctx, ext.Email)
	switch {
	case err == nil:
		return r.link(ctx, u.ID, ext)
	case errors.Is(err, domain.ErrNotFound):
		return r.create(ctx, ext)
	default:
		return nil, err
	}
}

func (r *IdentityReconciler) create(ctx context.Context, ext *oauth.ExternalIdentity) (*domain.User, error) {
	now := r.now().UTC()
	u := &domain.User{
		ID:            r.newID(),
		Email:         ext.Email,
		Name:          ext.Name,
		Avatar:        ext.Avatar,
		EmailVerified: true,
		Identities:    []domain.Identity{{Provider: ext.Provider, Subject: ext.Subject, LinkedAt: now}},
		Role:          domain.RoleUser,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if u.Name == "" {
		u.Name = ext.Email
	}
	err := r.repo.Create(ctx, u)
	if errors.Is(err, domain.ErrEmailConflict) || errors.Is(err, domain.ErrIdentityConflict) {
		// 并发首登：另一请求抢先建号，重走一次查找
		if existing, ferr := r.repo.FindByIdentity(ctx, ext.Provider, ext.Subject); ferr == nil {
			return existing, nil
		}
		if existing, ferr := r.repo.FindByEmail(ctx, ext.Email); ferr == nil {
			return r.link(ctx, existing.ID, ext)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	r.log.Info("user created from provider", zap.String("provider", ext.Provider), zap.String("userId", u.ID))
	return u, nil
}

// link 同一提供方只占一个槽位：已绑定其它 subject 时拒绝，不覆盖；停用账号拒绝绑定
func (r *IdentityReconciler) link(ctx context.Context, id string, ext *oauth.ExternalIdentity) (*domain.User, error) {
	u, err := r.repo.Update(ctx, id, func(u *domain.User) error {
		// 停用账号不合并新身份，失败的登录不留痕迹
		if !u.IsActive {
			return domain.ErrAccountDisabled
		}
		if cur := u.Identity(ext.Provider); cur != nil {
			if cur.Subject == ext.Subject {
				return nil
			}
			return domain.ErrIdentityConflict
		}
		now := r.now().UTC()
		u.Identities = append(u.Identities, domain.Identity{Provider: ext.Provider, Subject: ext.Subject, LinkedAt: now})
		if u.Avatar == "" {
			u.Avatar = ext.Avatar
		}
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("identity linked", zap.String("provider", ext.Provider), zap.String("userId", u.ID))
	return u, nil
}

func mapProviderErr(err error) error {
	switch {
	case errors.Is(err, oauth.ErrNoVerifiedEmail):
		return domain.ErrProviderNoEmail
	case errors.Is(err, oauth.ErrMissingAssertion):
		return domain.ErrAssertionRequired
	case errors.Is(err, oauth.ErrUnsupportedAssertion):
		return fmt.Errorf("%w: assertion type not supported", domain.ErrExternalAuthFailed)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return domain.ErrExternalAuthFailed
	}
}
