package services

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

var ErrInvalidIdentityToken = errors.New("invalid identity token")

const identityIssuer = "livebingo"

// identityNamespace scopes provider-linked identities.
var identityNamespace = uuid.MustParse("6f1c2a7e-3b7d-4c55-9a0e-2d9f4f8b1c30")

// IdentityService issues the opaque identities participants are keyed by,
// carried in signed tokens.
type IdentityService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIdentityService(secret string, ttl time.Duration) (*IdentityService, error) {
	if secret == "" {
		return nil, errors.New("identity secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("identity token ttl must be positive")
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("livebingo identity token v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving identity key: %w", err)
	}

	return &IdentityService{
		key: key,
		ttl: ttl,
		now: time.Now,
	}, nil
}

func (s *IdentityService) NewAnonymous() string {
	return uuid.NewString()
}

// FromProvider maps a provider account to the same identity every time.
func (s *IdentityService) FromProvider(provider Provider, subject string) string {
	return uuid.NewSHA1(identityNamespace, []byte(string(provider)+"|"+subject)).String()
}

func (s *IdentityService) Issue(identity string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    identityIssuer,
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing identity token: %w", err)
	}
	return signed, expires, nil
}

// Verify returns the identity a token was issued for.
func (s *IdentityService) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(identityIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidIdentityToken, err)
	}
	if !validIdentity(claims.Subject) {
		return "", ErrInvalidIdentityToken
	}
	return claims.Subject, nil
}
