package services

import (
	"context"
	"testing"
	"time"

	"github.com/smarttransit/rail-reservation/internal/database/memory"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthService_LoginWithBootstrappedUser(t *testing.T) {
	ctx := context.Background()
	jwtService := jwt.NewService("test-secret-test-secret-test-secret", 15*time.Minute)
	auth := NewAuthService(memory.New(), jwtService, testLogger())

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	user, err := auth.EnsureUser(ctx, " Admin@Rail.LK ", "Admin", string(hash), []string{models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "admin@rail.lk", user.Email)

	// A second bootstrap keeps the existing account
	again, err := auth.EnsureUser(ctx, "admin@rail.lk", "Other", string(hash), []string{models.RolePassenger})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	resp, err := auth.Login(ctx, &models.LoginRequest{Email: "ADMIN@rail.lk", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(900), resp.ExpiresIn)

	claims, err := jwtService.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.True(t, claims.HasRole(models.RoleAdmin))

	_, err = auth.Login(ctx, &models.LoginRequest{Email: "admin@rail.lk", Password: "wrong"})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = auth.Login(ctx, &models.LoginRequest{Email: "nobody@rail.lk", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAuthService_EnsureUserRejectsPlainPassword(t *testing.T) {
	auth := NewAuthService(memory.New(), jwt.NewService("secret", time.Minute), testLogger())

	_, err := auth.EnsureUser(context.Background(), "admin@rail.lk", "Admin", "plain-text", nil)
	assert.Error(t, err)
}
