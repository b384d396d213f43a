package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-gin-auth-session/internal/domain"
	"go-gin-auth-session/internal/repo"
	"go-gin-auth-session/pkg/utils"
)

func TestCredentialStore_CreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.creds.CreateUser(ctx, "Ann", "ann@x.com", "Abcd1234")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "Abcd1234", u.PasswordHash)
	assert.True(t, utils.CheckPassword("Abcd1234", u.PasswordHash))
	assert.True(t, u.IsActive)
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.False(t, u.UpdatedAt.Before(u.CreatedAt))

	_, err = f.creds.CreateUser(ctx, "Ann2", "ann@x.com", "Abcd1234")
	assert.ErrorIs(t, err, domain.ErrEmailConflict)
}

func TestCredentialStore_CreateUserWeakPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, pw := range []string{"short1A", "alllowercase1", "ALLUPPER123", "NoDigitsHere", strings.Repeat("Ab1", 30)} {
		_, err := f.creds.CreateUser(ctx, "x", "x@x.com", pw)
		assert.ErrorIs(t, err, domain.ErrWeakPassword, pw)
	}
	_, total, err := f.creds.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCredentialStore_VerifyPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.creds.CreateUser(ctx, "Ann", "ann@x.com", "Abcd1234")
	require.NoError(t, err)

	ok, err := f.creds.VerifyPassword(ctx, u, "Abcd1234")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.creds.VerifyPassword(ctx, u, "abcd1234")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.creds.VerifyPassword(ctx, nil, "Abcd1234")
	require.NoError(t, err)
	assert.False(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	// 上下文已取消，不再排队做比较，错误原样返回
	ok, err = f.creds.VerifyPassword(cancelled, u, "Abcd1234")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)

	expired, cancel2 := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer cancel2()
	assert.ErrorIs(t, f.creds.ChangePassword(expired, u.ID, "Abcd1234", "Newpass123"), context.DeadlineExceeded)
}

func TestCredentialStore_ChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.creds.CreateUser(ctx, "Ann", "ann@x.com", "Abcd1234")
	require.NoError(t, err)

	t.Run("wrong current never mutates", func(t *testing.T) {
		err := f.creds.ChangePassword(ctx, u.ID, "Wrong1234", "Newpass123")
		assert.ErrorIs(t, err, domain.ErrInvalidCredential)
		got, _ := f.repo.FindByID(ctx, u.ID)
		assert.Equal(t, u.PasswordHash, got.PasswordHash)
	})

	t.Run("weak new password", func(t *testing.T) {
		err := f.creds.ChangePassword(ctx, u.ID, "Abcd1234", "weak")
		assert.ErrorIs(t, err, domain.ErrWeakPassword)
		got, _ := f.repo.FindByID(ctx, u.ID)
		assert.Equal(t, u.PasswordHash, got.PasswordHash)
	})

	t.Run("missing user", func(t *testing.T) {
		assert.ErrorIs(t, f.creds.ChangePassword(ctx, "nope", "Abcd1234", "Newpass123"), domain.ErrNotFound)
	})

	t.Run("success", func(t *testing.T) {
		require.NoError(t, f.creds.ChangePassword(ctx, u.ID, "Abcd1234", "Newpass123"))
		got, _ := f.repo.FindByID(ctx, u.ID)
		assert.True(t, utils.CheckPassword("Newpass123", got.PasswordHash))
		assert.False(t, utils.CheckPassword("Abcd1234", got.PasswordHash))
	})
}

func TestCredentialStore_ChangePasswordProviderOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := &domain.User{
		ID:         "s1",
		Email:      "s@x.com",
		Identities: []domain.Identity{{Provider: "google", Subject: "g"}},
		IsActive:   true,
	}
	require.NoError(t, f.repo.Create(ctx, u))
	assert.ErrorIs(t, f.creds.ChangePassword(ctx, "s1", "", "Newpass123"), domain.ErrInvalidCredential)
}

func TestCredentialStore_ChangePasswordLosesRace(t *testing.T) {
	base := repo.NewMemoryUserRepo()
	rr := &racingRepo{MemoryUserRepo: base}
	creds := NewCredentialStore(rr, 2)
	ctx := context.Background()

	u, err := creds.CreateUser(ctx, "Ann", "ann@x.com", "Abcd1234")
	require.NoError(t, err)

	otherHash, err := utils.HashPassword("Other1234")
	require.NoError(t, err)
	rr.before = func() {
		_, err := base.Update(ctx, u.ID, func(u *domain.User) error {
			u.PasswordHash = otherHash
			return nil
		})
		require.NoError(t, err)
	}

	err = creds.ChangePassword(ctx, u.ID, "Abcd1234", "Newpass123")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
	got, _ := base.FindByID(ctx, u.ID)
	assert.Equal(t, otherHash, got.PasswordHash)
}

func TestCredentialStore_UpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.creds.CreateUser(ctx, "Ann", "ann@x.com", "Abcd1234")
	require.NoError(t, err)
	_, err = f.creds.CreateUser(ctx, "Bob", "bob@x.com", "Abcd1234")
	require.NoError(t, err)

	got, err := f.creds.UpdateProfile(ctx, a.ID, ProfilePatch{Name: strPtr("Annie")})
	require.NoError(t, err)
	assert.Equal(t, "Annie", got.Name)
	assert.Equal(t, "ann@x.com", got.Email)

	_, err = f.creds.UpdateProfile(ctx, a.ID, ProfilePatch{Name: strPtr("Hijack"), Email: strPtr("bob@x.com")})
	assert.ErrorIs(t, err, domain.ErrEmailConflict)
	cur, _ := f.creds.FindByID(ctx, a.ID)
	assert.Equal(t, "Annie", cur.Name, "no partial apply")

	got, err = f.creds.UpdateProfile(ctx, a.ID, ProfilePatch{Email: strPtr("ann2@x.com")})
	require.NoError(t, err)
	assert.Equal(t, "ann2@x.com", got.Email)

	_, err = f.creds.UpdateProfile(ctx, "nope", ProfilePatch{Name: strPtr("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCredentialStore_SetActiveAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.creds.CreateUser(ctx, "Ann", "ann@x.com", "Abcd1234")
	require.NoError(t, err)

	got, err := f.creds.SetActive(ctx, u.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = f.creds.RecordLogin(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrAccountDisabled)

	require.NoError(t, f.creds.DeleteUser(ctx, u.ID))
	assert.ErrorIs(t, f.creds.DeleteUser(ctx, u.ID), domain.ErrNotFound)
	_, err = f.creds.FindByEmail(ctx, "ann@x.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
