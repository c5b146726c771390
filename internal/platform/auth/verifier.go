// Package auth issues bearer tokens for the single clinic operator account
// and, when enforcement is enabled, checks them on protected routes.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by a Verifier for any username or
// password mismatch.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Verifier checks a username/password pair.
type Verifier interface {
	Verify(ctx context.Context, username, password string) error
}

// StaticVerifier accepts exactly one credential pair. When PasswordHash is
// set it is compared with bcrypt and Password is ignored.
type StaticVerifier struct {
	Username     string
	Password     string
	PasswordHash string
}

func (v *StaticVerifier) Verify(_ context.Context, username, password string) error {
	if subtle.ConstantTimeCompare([]byte(username), []byte(v.Username)) != 1 {
		return ErrInvalidCredentials
	}
	if v.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(v.PasswordHash), []byte(password)); err != nil {
			return ErrInvalidCredentials
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(v.Password)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
