package user

import (
	"time"

	"go-gin-auth-session/internal/domain"
)

// UserModel users 表（gorm 存储用）
type UserModel struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	Email         string `gorm:"uniqueIndex;size:191;not null"`
	Name          string `gorm:"size:64;not null"`
	PasswordHash  string `gorm:"size:100"` // 纯第三方账号为空
	Avatar        string `gorm:"size:512"`
	EmailVerified bool   `gorm:"not null;default:false"`
	Role          string `gorm:"size:16;not null;default:user"`
	IsActive      bool   `gorm:"not null"`
	LastLogin     *time.Time

	Identities []IdentityModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserModel) TableName() string { return "users" }

// IdentityModel user_identities 表；(provider, subject) 全局唯一，(user_id, provider) 每人一条
type IdentityModel struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   string `gorm:"type:varchar(36);not null;uniqueIndex:uk_user_provider"`
	Provider string `gorm:"size:32;not null;uniqueIndex:uk_provider_subject;uniqueIndex:uk_user_provider"`
	Subject  string `gorm:"size:191;not null;uniqueIndex:uk_provider_subject"`
	LinkedAt time.Time
}

func (IdentityModel) TableName() string { return "user_identities" }

func FromDomain(u *domain.User) *UserModel {
	m := &UserModel{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		PasswordHash:  u.PasswordHash,
		Avatar:        u.Avatar,
		EmailVerified: u.EmailVerified,
		Role:          u.Role,
		IsActive:      u.IsActive,
		LastLogin:     u.LastLogin,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	for _, id := range u.Identities {
		m.Identities = append(m.Identities, IdentityModel{
			UserID: u.ID, Provider: id.Provider, Subject: id.Subject, LinkedAt: id.LinkedAt,
		})
	}
	return m
}

func (m *UserModel) ToDomain() *domain.User {
	u := &domain.User{
		ID:            m.ID,
		Email:         m.Email,
		Name:          m.Name,
		PasswordHash:  m.PasswordHash,
		Avatar:        m.Avatar,
		EmailVerified: m.EmailVerified,
		Role:          m.Role,
		IsActive:      m.IsActive,
		LastLogin:     m.LastLogin,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	for _, id := range m.Identities {
		u.Identities = append(u.Identities, domain.Identity{
			Provider: id.Provider, Subject: id.Subject, LinkedAt: id.LinkedAt,
		})
	}
	return u
}
