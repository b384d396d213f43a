package domain

import (
	"context"
	"time"
)

const RoleUser = "user"

type Identity struct {
	Provider string    `json:"provider"` // "google" / "github"
	Subject  string    `json:"-"`        // 提供方的 sub / id
	LinkedAt time.Time `json:"linkedAt"`
}

type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	PasswordHash  string     `json:"-"`
	Avatar        string     `json:"avatar,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
	Identities    []Identity `json:"identities"`
	Role          string     `json:"role"` // 目前固定 "user"
	IsActive      bool       `json:"isActive"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
}

// HasPassword 是否为密码账号
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// Identity 返回指定提供方的绑定（无则 nil）
func (u *User) Identity(provider string) *Identity {
	for i := range u.Identities {
		if u.Identities[i].Provider == provider {
			return &u.Identities[i]
		}
	}
	return nil
}

// Clone 深拷贝，存储层对外只给副本
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.Identities != nil {
		cp.Identities = append([]Identity(nil), u.Identities...)
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		cp.LastLogin = &t
	}
	return &cp
}

// Validate 检查记录级不变量
func (u *User) Validate() error {
	if !u.HasPassword() && len(u.Identities) == 0 {
		return ErrNoCredential
	}
	seen := make(map[string]struct{}, len(u.Identities))
	for _, id := range u.Identities {
		if _, dup := seen[id.Provider]; dup {
			return ErrIdentityConflict // 同一提供方只能绑定一个
		}
		seen[id.Provider] = struct{}{}
	}
	if u.UpdatedAt.Before(u.CreatedAt) {
		u.UpdatedAt = u.CreatedAt
	}
	return nil
}

// UserRepository 用户存储；内存实现为默认，gorm 实现可原地替换
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByIdentity(ctx context.Context, provider, subject string) (*User, error)
	// Update 对单条记录做原子的读-改-写；mutate 返回错误或唯一性冲突时记录保持不变
	Update(ctx context.Context, id string, mutate func(u *User) error) (*User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, offset, limit int) ([]User, int64, error)
}
