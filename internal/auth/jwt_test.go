package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", 1)
	id := uuid.New()

	token, err := svc.Generate(id, "ops@example.com", RoleAdmin)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "ops@example.com", claims.Email)
	assert.True(t, claims.IsAdmin())

	uid, role, err := svc.ValidateSubject(token)
	require.NoError(t, err)
	assert.Equal(t, id.String(), uid)
	assert.Equal(t, RoleAdmin, role)
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	token, err := NewJWTService("other", 1).Generate(uuid.New(), "a@example.com", RoleAdmin)
	require.NoError(t, err)
	_, err = NewJWTService("secret", 1).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTService("secret", 1).Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           uuid.New(),
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	})
	signed, err := wrongIssuer.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = NewJWTService("secret", 1).Validate(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	svc := NewJWTService("secret", 1)
	issued := time.Now().Add(-3 * time.Hour)
	svc.now = func() time.Time { return issued }
	token, err := svc.Generate(uuid.New(), "a@example.com", RoleInstructor)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
