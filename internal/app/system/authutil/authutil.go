// internal/app/system/authutil/authutil.go
//
// Package authutil resolves and validates portal-user sign-in
// settings. Every method keys on the user's email: password adds a
// bcrypt hash, google defers to OAuth, trust accepts an upstream
// assertion without a local credential.
package authutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/ivrhub/internal/app/system/inputval"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnknownMethod    = errors.New("unknown auth method")
	ErrEmailRequired    = errors.New("an email address is required")
	ErrInvalidEmail     = errors.New("the email address is not valid")
	ErrPasswordRequired = errors.New("a temporary password is required")
)

// Password length limits. The upper bound matches bcrypt's input cap.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	ErrPasswordCommon   = errors.New("password is too common")
)

// commonPasswords trips the most frequent breach-list entries.
var commonPasswords = map[string]bool{
	"123456":   true,
	"password": true,
	"qwerty":   true,
	"abc123":   true,
	"iloveyou": true,
	"letmein":  true,
	"football": true,
	"welcome":  true,
}

// AuthInput carries the sign-in fields from the portal-user form.
type AuthInput struct {
	Method       string
	Email        string
	TempPassword string
	// IsEdit relaxes the password requirement: an empty password on
	// edit keeps the stored hash.
	IsEdit bool
}

// Resolved is the validated, store-ready view of an AuthInput.
type Resolved struct {
	Method       string
	Email        string
	PasswordHash *string
	PasswordTemp *bool
}

// ValidateAndResolve normalizes and checks the sign-in fields for the
// given method, hashing the temporary password when one is required.
func ValidateAndResolve(in AuthInput) (Resolved, error) {
	method := normalize.AuthMethod(in.Method)
	if !models.IsValidAuthMethod(method) {
		return Resolved{}, ErrUnknownMethod
	}
	email := normalize.Email(in.Email)
	if email == "" {
		return Resolved{}, ErrEmailRequired
	}
	if !inputval.IsValidEmail(email) {
		return Resolved{}, ErrInvalidEmail
	}

	out := Resolved{Method: method, Email: email}
	if method != models.AuthMethodPassword {
		return out, nil
	}

	if in.TempPassword == "" {
		if in.IsEdit {
			return out, nil
		}
		return Resolved{}, ErrPasswordRequired
	}
	if err := ValidatePassword(in.TempPassword); err != nil {
		return Resolved{}, err
	}
	hash, err := HashPassword(in.TempPassword)
	if err != nil {
		return Resolved{}, err
	}
	temp := true
	out.PasswordHash = &hash
	out.PasswordTemp = &temp
	return out, nil
}

// ValidatePassword enforces the length bounds and the common-password
// block list (case-insensitive).
func ValidatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(pw) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	if commonPasswords[strings.ToLower(pw)] {
		return ErrPasswordCommon
	}
	return nil
}

// HashPassword bcrypt-hashes a password at the default cost.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether pw matches the stored bcrypt hash.
func CheckPassword(pw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// PasswordRules describes the password requirements for form help text.
func PasswordRules() string {
	return fmt.Sprintf("Passwords must be %d-%d characters and may not be a commonly used password.", MinPasswordLength, MaxPasswordLength)
}
