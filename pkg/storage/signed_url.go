package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const downloadAudience = "notice-download"

type downloadClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// SignedURLSigner issues short-lived HS256 tokens that name one stored notice file.
// The audience keeps them from being accepted as access tokens and vice versa.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner returns a signer; a non-positive ttl means 24h.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate signs a token for noticeID stored at relPath.
func (s *SignedURLSigner) Generate(noticeID, relPath string) (string, time.Time, error) {
	if noticeID == "" || relPath == "" {
		return "", time.Time{}, errors.New("notice id and path are required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.ttl).Truncate(time.Second)
	claims := downloadClaims{
		Path: relPath,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        noticeID,
			Audience:  jwt.ClaimStrings{downloadAudience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign download token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse verifies token and returns the notice id and path it names.
// allowExpired skips only the expiry check; the signature and audience are always verified.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (noticeID, relPath string, expiresAt time.Time, err error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	} else {
		opts = append(opts, jwt.WithAudience(downloadAudience), jwt.WithExpirationRequired())
	}

	var claims downloadClaims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...); err != nil {
		return "", "", time.Time{}, fmt.Errorf("parse download token: %w", err)
	}
	if allowExpired && !hasAudience(claims.Audience, downloadAudience) {
		return "", "", time.Time{}, errors.New("parse download token: wrong audience")
	}
	if claims.ID == "" || claims.Path == "" {
		return "", "", time.Time{}, errors.New("parse download token: missing notice reference")
	}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return claims.ID, claims.Path, expiresAt, nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
