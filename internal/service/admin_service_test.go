package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAdminService(t *testing.T) *AdminService {
	t.Helper()
	s := NewAdminService(newTestRepo(t), zerolog.Nop())
	s.cost = bcrypt.MinCost
	return s
}

func TestAdminService_EnsureAndAuthenticate(t *testing.T) {
	s := newTestAdminService(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureAdmin(ctx, "root", "s3cret"))

	assert.NoError(t, s.Authenticate(ctx, "root", "s3cret"))
	assert.NoError(t, s.Authenticate(ctx, " root ", "s3cret"))
	assert.ErrorIs(t, s.Authenticate(ctx, "root", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, s.Authenticate(ctx, "nobody", "s3cret"), ErrInvalidCredentials)
	assert.ErrorIs(t, s.Authenticate(ctx, "", ""), ErrInvalidCredentials)
}

func TestAdminService_EnsureKeepsExistingPassword(t *testing.T) {
	s := newTestAdminService(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureAdmin(ctx, "root", "first"))
	require.NoError(t, s.EnsureAdmin(ctx, "root", "second"))

	assert.NoError(t, s.Authenticate(ctx, "root", "first"))
	assert.ErrorIs(t, s.Authenticate(ctx, "root", "second"), ErrInvalidCredentials)
}

func TestAdminService_StoresHashNotPassword(t *testing.T) {
	repo := newTestRepo(t)
	s := NewAdminService(repo, zerolog.Nop())
	s.cost = bcrypt.MinCost
	ctx := context.Background()

	require.NoError(t, s.EnsureAdmin(ctx, "root", "s3cret"))

	admin, err := repo.GetAdmin(ctx, "root")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", admin.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("s3cret")))
}
