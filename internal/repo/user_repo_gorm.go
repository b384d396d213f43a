package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-gin-auth-session/internal/domain"
	"go-gin-auth-session/internal/feature/user"
)

// GormUserRepo 与 MemoryUserRepo 同一契约，唯一性由数据库唯一索引兜底
type GormUserRepo struct{ db *gorm.DB }

var _ domain.UserRepository = (*GormUserRepo)(nil)

func NewGormUserRepo(db *gorm.DB) *GormUserRepo { return &GormUserRepo{db: db} }

func (r *GormUserRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&user.UserModel{}, &user.IdentityModel{})
}

func (r *GormUserRepo) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	m := user.FromDomain(u)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkEmailFree(tx, u.Email, ""); err != nil {
			return err
		}
		if err := checkIdentitiesFree(tx, u.Identities, ""); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(m).Error; err != nil {
			return err
		}
		if len(m.Identities) > 0 {
			return tx.Create(&m.Identities).Error
		}
		return nil
	})
	if err != nil {
		return mapWriteErr(err)
	}
	u.CreatedAt, u.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (r *GormUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(r.db.WithContext(ctx), "id = ?", id)
}

func (r *GormUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(r.db.WithContext(ctx), "email = ?", email)
}

func (r *GormUserRepo) FindByIdentity(ctx context.Context, provider, subject string) (*domain.User, error) {
	var ident user.IdentityModel
	err := r.db.WithContext(ctx).
		Where("provider = ? AND subject = ?", provider, subject).
		First(&ident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, ident.UserID)
}

func (r *GormUserRepo) first(q *gorm.DB, where string, arg any) (*domain.User, error) {
	var m user.UserModel
	err := q.Preload("Identities").Where(where, arg).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// Update 事务内 SELECT ... FOR UPDATE 锁行，改完整体写回，外部身份按新集合重建
func (r *GormUserRepo) Update(ctx context.Context, id string, mutate func(u *domain.User) error) (*domain.User, error) {
	var out *domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur user.UserModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Identities").
			Where("id = ?", id).
			First(&cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		next := cur.ToDomain()
		if err := mutate(next); err != nil {
			return err
		}
		next.ID, next.CreatedAt = cur.ID, cur.CreatedAt
		if err := next.Validate(); err != nil {
			return err
		}
		if next.Email != cur.Email {
			if err := checkEmailFree(tx, next.Email, id); err != nil {
				return err
			}
		}
		if err := checkIdentitiesFree(tx, next.Identities, id); err != nil {
			return err
		}

		m := user.FromDomain(next)
		if err := tx.Omit(clause.Associations).Save(m).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&user.IdentityModel{}).Error; err != nil {
			return err
		}
		if len(m.Identities) > 0 {
			if err := tx.Create(&m.Identities).Error; err != nil {
				return err
			}
		}
		next.UpdatedAt = m.UpdatedAt
		out = next
		return nil
	})
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return out, nil
}

func (r *GormUserRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&user.IdentityModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&user.UserModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *GormUserRepo) List(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&user.UserModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q := r.db.WithContext(ctx).Preload("Identities").Order("created_at desc").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []user.UserModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.User, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, total, nil
}

func checkEmailFree(tx *gorm.DB, email, selfID string) error {
	q := tx.Model(&user.UserModel{}).Where("email = ?", email)
	if selfID != "" {
		q = q.Where("id <> ?", selfID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrEmailConflict
	}
	return nil
}

func checkIdentitiesFree(tx *gorm.DB, idents []domain.Identity, selfID string) error {
	for _, id := range idents {
		q := tx.Model(&user.IdentityModel{}).Where("provider = ? AND subject = ?", id.Provider, id.Subject)
		if selfID != "" {
			q = q.Where("user_id <> ?", selfID)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrIdentityConflict
		}
	}
	return nil
}

// mapWriteErr 并发下预检查可能都通过，最终靠唯一索引报错
func mapWriteErr(err error) error {
	if !isDupKey(err) {
		return err
	}
	if strings.Contains(strings.ToLower(err.Error()), "email") {
		return domain.ErrEmailConflict
	}
	return domain.ErrIdentityConflict
}

func isDupKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation")
}
