package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/house-points-api/internal/models"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "idp", Audience: []string{"house-points"}})
	token, expiresAt, err := svc.Issue("counselor-1", models.RoleCounselor, time.Hour)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "counselor-1", claims.UserID)
	assert.Equal(t, models.RoleCounselor, claims.Role)
}

func TestTokenServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "idp"})

	other := NewTokenService(TokenConfig{Secret: "other", Issuer: "idp"})
	forged, _, err := other.Issue("u1", models.RoleAdmin, time.Hour)
	require.NoError(t, err)

	wrongIssuer := NewTokenService(TokenConfig{Secret: "secret", Issuer: "elsewhere"})
	foreign, _, err := wrongIssuer.Issue("u1", models.RoleAdmin, time.Hour)
	require.NoError(t, err)

	expired, _, err := svc.Issue("u1", models.RoleAdmin, -time.Minute)
	require.NoError(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "idp", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for _, token := range []string{"not-a-jwt", forged, foreign, expired, noRole} {
		_, err := svc.ValidateToken(token)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	}
}

func TestTokenServiceFallsBackToSubject(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret"})
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		Role:             models.RoleTeacher,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "teacher-7"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "teacher-7", claims.UserID)
}
