package utils

import (
	"errors"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	PasswordMinLen = 8
	BcryptCost     = bcrypt.DefaultCost
)

// dummyHash 用户不存在时也做一次比较，避免按耗时判断邮箱是否注册
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), BcryptCost)

var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword hashed 为空时对 dummyHash 比较并返回 false
func CheckPassword(pw, hashed string) bool {
	if hashed == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(pw))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(pw)) == nil
}

// PasswordPolicyOK 至少 8 个字符（按 rune 计），含小写、大写、数字
func PasswordPolicyOK(pw string) bool {
	if utf8.RuneCountInString(pw) < PasswordMinLen {
		return false
	}
	var lower, upper, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

func IsTooLong(err error) bool { return errors.Is(err, ErrPasswordTooLong) }
