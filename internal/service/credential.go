package service

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"go-gin-auth-session/internal/domain"
	"go-gin-auth-session/pkg/utils"
)

// CredentialStore 用户记录 + 密码哈希。bcrypt 在存储锁之外执行，
// 并由信号量限流，突发注册/登录排队而不是把 CPU 打满。
type CredentialStore struct {
	repo   domain.UserRepository
	hashes *semaphore.Weighted
	now    func() time.Time
	newID  func() string
}

func NewCredentialStore(repo domain.UserRepository, hashWorkers int) *CredentialStore {
	if hashWorkers <= 0 {
		hashWorkers = runtime.GOMAXPROCS(0)
	}
	return &CredentialStore{
		repo:   repo,
		hashes: semaphore.NewWeighted(int64(hashWorkers)),
		now:    time.Now,
		newID:  utils.NewID,
	}
}

func (s *CredentialStore) Repo() domain.UserRepository { return s.repo }

// ProfilePatch nil 字段表示不修改
type ProfilePatch struct {
	Name  *string
	Email *string
}

func (s *CredentialStore) hash(ctx context.Context, pw string) (string, error) {
	if err := s.hashes.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.hashes.Release(1)
	h, err := utils.HashPassword(pw)
	if utils.IsTooLong(err) {
		return "", fmt.Errorf("%w: password exceeds 72 bytes", domain.ErrWeakPassword)
	}
	return h, err
}

// VerifyPassword user 为 nil 或无密码时仍做一次等价耗时的比较；
// 排队被 ctx 取消或超时时返回 ctx 的错误
func (s *CredentialStore) VerifyPassword(ctx context.Context, u *domain.User, pw string) (bool, error) {
	if err := s.hashes.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer s.hashes.Release(1)
	if u == nil {
		return utils.CheckPassword(pw, ""), nil
	}
	return utils.CheckPassword(pw, u.PasswordHash), nil
}

func (s *CredentialStore) CreateUser(ctx context.Context, name, email, password string) (*domain.User, error) {
	if !utils.PasswordPolicyOK(password) {
		return nil, domain.ErrWeakPassword
	}
	// 快速失败，省一次 bcrypt；最终以 repo.Create 为准
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrEmailConflict
	}
	h, err := s.hash(ctx, password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &domain.User{
		ID:           s.newID(),
		Email:        email,
		Name:         name,
		PasswordHash: h,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.FindByEmail(ctx, email)
}

func (s *CredentialStore) UpdateProfile(ctx context.Context, id string, p ProfilePatch) (*domain.User, error) {
	return s.repo.Update(ctx, id, func(u *domain.User) error {
		if p.Name != nil {
			u.Name = *p.Name
		}
		if p.Email != nil && *p.Email != u.Email {
			u.Email = *p.Email
			if u.HasPassword() {
				u.EmailVerified = false
			}
		}
		u.UpdatedAt = s.now().UTC()
		return nil
	})
}

// ChangePassword 校验旧密码后换新哈希；提交时若哈希已被并发修改则按旧密码错误处理
func (s *CredentialStore) ChangePassword(ctx context.Context, id, current, next string) error {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !u.HasPassword() {
		if _, err := s.VerifyPassword(ctx, nil, current); err != nil {
			return err
		}
		return domain.ErrInvalidCredential
	}
	ok, err := s.VerifyPassword(ctx, u, current)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCredential
	}
	if !utils.PasswordPolicyOK(next) {
		return domain.ErrWeakPassword
	}
	h, err := s.hash(ctx, next)
	if err != nil {
		return err
	}
	verified := u.PasswordHash
	_, err = s.repo.Update(ctx, id, func(cur *domain.User) error {
		if cur.PasswordHash != verified {
			return domain.ErrInvalidCredential
		}
		cur.PasswordHash = h
		cur.UpdatedAt = s.now().UTC()
		return nil
	})
	return err
}

// RecordLogin 更新 lastLogin；账号在此期间被停用则拒绝
func (s *CredentialStore) RecordLogin(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.Update(ctx, id, func(u *domain.User) error {
		if !u.IsActive {
			return domain.ErrAccountDisabled
		}
		now := s.now().UTC()
		u.LastLogin = &now
		u.UpdatedAt = now
		return nil
	})
}

func (s *CredentialStore) SetActive(ctx context.Context, id string, active bool) (*domain.User, error) {
	return s.repo.Update(ctx, id, func(u *domain.User) error {
		u.IsActive = active
		u.UpdatedAt = s.now().UTC()
		return nil
	})
}

func (s *CredentialStore) DeleteUser(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *CredentialStore) List(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	return s.repo.List(ctx, offset, limit)
}
