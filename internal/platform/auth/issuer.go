package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Issuer mints bearer tokens after a successful sign-in and validates them
// when token enforcement is on.
type Issuer interface {
	Issue(subject string) (string, error)
	Validate(token string) (subject string, err error)
}

// StaticIssuer hands out one fixed token to every caller.
type StaticIssuer struct {
	Token string
}

func (s *StaticIssuer) Issue(string) (string, error) {
	return s.Token, nil
}

func (s *StaticIssuer) Validate(token string) (string, error) {
	if s.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		return "", ErrInvalidToken
	}
	return "", nil
}

// JWTIssuer signs HS256 tokens carrying the subject and an expiry.
type JWTIssuer struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewJWTIssuer(key []byte, ttl time.Duration) *JWTIssuer {
	return &JWTIssuer{key: key, ttl: ttl, issuer: "reabilita", now: time.Now}
}

func (j *JWTIssuer) Issue(subject string) (string, error) {
	now := j.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    j.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (j *JWTIssuer) Validate(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return j.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(j.issuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
