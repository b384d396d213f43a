package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmailConflict      = errors.New("email already registered")
	ErrIdentityConflict   = errors.New("account already linked to a different identity of this provider")
	ErrNotFound           = errors.New("user not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredential  = errors.New("current password is incorrect")
	ErrWeakPassword       = errors.New("password must be at least 8 characters and contain a lowercase letter, an uppercase letter and a digit")
	ErrExternalAuthFailed = errors.New("external authentication failed")
	ErrNotImplemented     = errors.New("not implemented")

	// ErrNoCredential 既无密码也无外部身份的用户不允许落库
	ErrNoCredential = errors.New("user has neither password nor external identity")
)

// 细分原因，errors.Is 仍命中上层分类
var (
	ErrBadCredentials    = fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	ErrAccountDisabled   = fmt.Errorf("%w: account is deactivated", ErrForbidden)
	ErrInvalidRefresh    = fmt.Errorf("%w: invalid refresh token", ErrForbidden)
	ErrRefreshExpired    = fmt.Errorf("%w: refresh token expired, please sign in again", ErrForbidden)
	ErrUnknownProvider   = fmt.Errorf("%w: unknown provider", ErrExternalAuthFailed)
	ErrProviderNoEmail   = fmt.Errorf("%w: provider returned no verified email", ErrExternalAuthFailed)
	ErrAssertionRequired = fmt.Errorf("%w: code or idToken is required", ErrExternalAuthFailed)
)
