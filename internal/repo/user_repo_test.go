package repo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-gin-auth-session/internal/domain"
)

func newPasswordUser(id, email string, at time.Time) *domain.User {
	return &domain.User{
		ID:           id,
		Email:        email,
		Name:         "name-" + id,
		PasswordHash: "$2a$10$hash",
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func newSocialUser(id, email, provider, subject string, at time.Time) *domain.User {
	return &domain.User{
		ID:            id,
		Email:         email,
		Name:          "social-" + id,
		EmailVerified: true,
		Identities:    []domain.Identity{{Provider: provider, Subject: subject, LinkedAt: at}},
		Role:          domain.RoleUser,
		IsActive:      true,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

var dbSeq int64

func newSQLiteRepo(t *testing.T) *GormUserRepo {
	t.Helper()
	dsn := fmt.Sprintf("file:repo%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	r := NewGormUserRepo(db)
	require.NoError(t, r.AutoMigrate())
	return r
}

func repoImpls() map[string]func(t *testing.T) domain.UserRepository {
	return map[string]func(t *testing.T) domain.UserRepository{
		"memory": func(t *testing.T) domain.UserRepository { return NewMemoryUserRepo() },
		"gorm":   func(t *testing.T) domain.UserRepository { return newSQLiteRepo(t) },
	}
}

func TestUserRepo_Contract(t *testing.T) {
	for name, mk := range repoImpls() {
		t.Run(name, func(t *testing.T) {
			t.Run("create and find", func(t *testing.T) {
				r := mk(t)
				ctx := context.Background()
				now := time.Now().UTC().Truncate(time.Second)

				require.NoError(t, r.Create(ctx, newPasswordUser("u1", "ann@x.com", now)))

				byID, err := r.FindByID(ctx, "u1")
				require.NoError(t, err)
				assert.Equal(t, "ann@x.com", byID.Email)
				assert.True(t, byID.IsActive)

				byEmail, err := r.FindByEmail(ctx, "ann@x.com")
				require.NoError(t, err)
				assert.Equal(t, "u1", byEmail.ID)

				_, err = r.FindByEmail(ctx, "ANN@x.com")
				assert.ErrorIs(t, err, domain.ErrNotFound, "email match is case-sensitive")
				_, err = r.FindByID(ctx, "missing")
				assert.ErrorIs(t, err, domain.ErrNotFound)
			})

			t.Run("email uniqueness on create", func(t *testing.T) {
				r := mk(t)
				ctx := context.Background()
				now := time.Now().UTC()
				require.NoError(t, r.Create(ctx, newPasswordUser("u1", "ann@x.com", now)))
				err := r.Create(ctx, newPasswordUser("u2", "ann@x.com", now))
				assert.ErrorIs(t, err, domain.ErrEmailConflict)

				_, total, err := r.List(ctx, 0, 10)
				require.NoError(t, err)
				assert.EqualValues(t, 1, total)
			})

			t.Run("rejects user without credential", func(t *testing.T) {
				r := mk(t)
				u := newPasswordUser("u1", "a@x.com", time.Now())
				u.PasswordHash = ""
				assert.ErrorIs(t, r.Create(context.Background(), u), domain.ErrNoCredential)
			})

			t.Run("identity lookup and uniqueness", func(t *testing.T) {
				r := mk(t)
				ctx := context.Background()
				now := time.Now().UTC()
				require.NoError(t, r.Create(ctx, newSocialUser("s1", "s1@x.com", "google", "g-1", now)))

				u, err := r.FindByIdentity(ctx, "google", "g-1")
				require.NoError(t, err)
				assert.Equal(t, "s1", u.ID)
				_, err = r.FindByIdentity(ctx, "github", "g-1")
				assert.ErrorIs(t, err, domain.ErrNotFound)

				err = r.Create(ctx, newSocialUser("s2", "s2@x.com", "google", "g-1", now))
				assert.ErrorIs(t, err, domain.ErrIdentityConflict)
			})

			t.Run("update links identity atomically", func(t *testing.T) {
				r := mk(t)
				ctx := context.Background()
				now := time.Now().UTC()
				require.NoError(t, r.Create(ctx, newPasswordUser("u1", "ann@x.com", now)))

				got, err := r.Update(ctx, "u1", func(u *domain.User) error {
					u.Identities = append(u.Identities, domain.Identity{Provider: "github", Subject: "42", LinkedAt: now})
					u.UpdatedAt = now.Add(time.Second)
					return nil
				})
				require.NoError(t, err)
				require.NotNil(t, got.Identity("github"))

				byIdent, err := r.FindByIdentity(ctx, "github", "42")
				require.NoError(t, err)
				assert.Equal(t, "u1", byIdent.ID)
				assert.True(t, byIdent.HasPassword())
			})

			t.Run("update email conflict leaves record untouched", func(t *testing.T) {
				r := mk(t)
				ctx := context.Background()
				now := time.Now().UTC()
				require.NoError(t, r.Create(ctx, newPasswordUser("u1", "a@x.com", now)))
				require.NoError(t, r.Create(ctx, newPasswordUser("u2", "b@x.com", now)))

				_, err := r.Update(ctx, "u2", func(u *domain.User) error {
					u.Name = "changed"
					u.Email = "a@x.com"
					return nil
				})
				assert.ErrorIs(t, err, domain.ErrEmailConflict)

				u2, err := r.FindByID(ctx, "u2")
				require.NoError(t, err)
				assert.Equal(t, "name-u2", u2.Name)
				assert.Equal(t, "b@x.com", u2.Email)
			})

			t.Run("update mutate error aborts", func(t *testing.T) {
				r := mk(t)
				ctx := context.Background()
				require.NoError(t, r.Create(ctx, newPasswordUser("u1", "a@x.com", time.Now().UTC())))
				boom := fmt.Errorf("boom")
				_, err := r.Update(ctx, "u1", func(u *domain.User) error {
					u.Name = "partial"
					return boom
				})
				assert.ErrorIs(t, err, boom)
				u, err := r.FindByID(ctx, "u1")
				require.NoError(t, err)
				assert.Equal(t, "name-u1", u.Name)

				_, err = r.Update(ctx, "missing", func(u *domain.User) error { return nil })
				assert.ErrorIs(t, err, domain.ErrNotFound)
			})

			t.Run("email change frees old email", func(t *testing.T) {
				r := mk(t)
				ctx := context.Background()
				now := time.Now().UTC()
				require.NoError(t, r.Create(ctx, newPasswordUser("u1", "old@x.com", now)))
				_, err := r.Update(ctx, "u1", func(u *domain.User) error {
					u.Email = "new@x.com"
					return nil
				})
				require.NoError(t, err)

				_, err = r.FindByEmail(ctx, "old@x.com")
				assert.ErrorIs(t, err, domain.ErrNotFound)
				require.NoError(t, r.Create(ctx, newPasswordUser("u2", "old@x.com", now)))
			})

			t.Run("delete is hard", func(t *testing.T) {
				r := mk(t)
				ctx := context.Background()
				now := time.Now().UTC()
				require.NoError(t, r.Create(ctx, newSocialUser("s1", "s1@x.com", "google", "g-1", now)))
				require.NoError(t, r.Delete(ctx, "s1"))
				assert.ErrorIs(t, r.Delete(ctx, "s1"), domain.ErrNotFound)

				_, err := r.FindByIdentity(ctx, "google", "g-1")
				assert.ErrorIs(t, err, domain.ErrNotFound)
				// 邮箱与身份均可复用
				require.NoError(t, r.Create(ctx, newSocialUser("s2", "s1@x.com", "google", "g-1", now)))
			})

			t.Run("list paginates newest first", func(t *testing.T) {
				r := mk(t)
				ctx := context.Background()
				base := time.Now().UTC().Truncate(time.Second)
				for i := 0; i < 5; i++ {
					require.NoError(t, r.Create(ctx, newPasswordUser(fmt.Sprintf("u%d", i), fmt.Sprintf("u%d@x.com", i), base.Add(time.Duration(i)*time.Minute))))
				}
				page, total, err := r.List(ctx, 1, 2)
				require.NoError(t, err)
				assert.EqualValues(t, 5, total)
				require.Len(t, page, 2)
				assert.Equal(t, "u3", page[0].ID)
				assert.Equal(t, "u2", page[1].ID)
			})
		})
	}
}

func TestMemoryUserRepo_ReturnsCopies(t *testing.T) {
	r := NewMemoryUserRepo()
	ctx := context.Background()
	u := newPasswordUser("u1", "a@x.com", time.Now())
	require.NoError(t, r.Create(ctx, u))
	u.Name = "mutated after create"

	got, err := r.FindByID(ctx, "u1")
	require.NoError(t, err)
	got.Email = "hijack@x.com"

	again, err := r.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "name-u1", again.Name)
	assert.Equal(t, "a@x.com", again.Email)
}

func TestMemoryUserRepo_ConcurrentCreateSameEmail(t *testing.T) {
	r := NewMemoryUserRepo()
	ctx := context.Background()
	const n = 32
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := r.Create(ctx, newPasswordUser(fmt.Sprintf("u%d", i), "same@x.com", time.Now())); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrEmailConflict)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, oks)
}

func TestMemoryUserRepo_ConcurrentEmailUpdates(t *testing.T) {
	r := NewMemoryUserRepo()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, r.Create(ctx, newPasswordUser("u1", "a@x.com", now)))
	require.NoError(t, r.Create(ctx, newPasswordUser("u2", "b@x.com", now)))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = r.Update(ctx, id, func(u *domain.User) error {
				u.Email = "target@x.com"
				return nil
			})
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrEmailConflict)
		}
	}
	assert.Equal(t, 1, succeeded)

	owner, err := r.FindByEmail(ctx, "target@x.com")
	require.NoError(t, err)
	assert.Contains(t, []string{"u1", "u2"}, owner.ID)
}
