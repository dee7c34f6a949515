package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/pkg/config"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	accounts := []config.AccountConfig{
		{Email: "Office@Example.com", PasswordHash: string(hash), FullName: "教學組", Role: "OPERATOR"},
		{Email: "nohash@example.com", Role: "ADMIN"},
	}
	return NewAuthService(accounts, nil, nil, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "sma-substitute",
	})
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc := newTestAuthService(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "office@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleOperator, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "office@example.com", claims.UserID)
	assert.Equal(t, models.RoleOperator, claims.Role)
	assert.Equal(t, "sma-substitute", claims.Issuer)
}

func TestAuthServiceLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestAuthService(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "office@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nohash@example.com", Password: "secret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginValidation(t *testing.T) {
	svc := newTestAuthService(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsForeignSignature(t *testing.T) {
	svc := newTestAuthService(t)

	claims := &models.JWTClaims{UserID: "x", Role: models.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(forged)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsExpired(t *testing.T) {
	svc := newTestAuthService(t)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "office@example.com", Password: "secret"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}
