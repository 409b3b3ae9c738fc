package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

func newAuthService(t *testing.T) (*AuthService, *auth.Tokens) {
	t.Helper()
	tokens := auth.NewTokens("0123456789abcdef0123456789abcdef", time.Hour)
	return NewAuthService(newTestRepo(t), tokens, log.Discard()), tokens
}

func TestAuthService_Signup(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)

	valid := SignupRequest{Name: "Asha", Email: "Asha@Example.com", Password: "s3cret-pass", AcceptTerms: true}

	tests := []struct {
		name    string
		mutate  func(*SignupRequest)
		wantErr error
	}{
		{"empty name", func(r *SignupRequest) { r.Name = " <p></p> " }, core.ErrEmptyName},
		{"bad email", func(r *SignupRequest) { r.Email = "not-an-email" }, core.ErrInvalidEmail},
		{"display name email", func(r *SignupRequest) { r.Email = "Asha <asha@example.com>" }, core.ErrInvalidEmail},
		{"short password", func(r *SignupRequest) { r.Password = "short" }, core.ErrWeakPassword},
		{"terms", func(r *SignupRequest) { r.AcceptTerms = false }, core.ErrTermsNotAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := svc.Signup(ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	u, err := svc.Signup(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", u.Email)
	assert.Equal(t, "Asha", u.Name)

	_, err = svc.Signup(ctx, valid)
	assert.ErrorIs(t, err, storage.ErrEmailTaken)
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	svc, tokens := newAuthService(t)

	u, err := svc.Signup(ctx, SignupRequest{Name: "Ravi", Email: "ravi@example.com", Password: "password1", AcceptTerms: true})
	require.NoError(t, err)

	token, got, err := svc.Login(ctx, " RAVI@example.com ", "password1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	id, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)

	_, _, err = svc.Login(ctx, "ravi@example.com", "wrong-password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestAuthService_Profile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)

	u, err := svc.Signup(ctx, SignupRequest{Name: "Meera", Email: "meera@example.com", Password: "password1", AcceptTerms: true})
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, u.ID, "Meera K", dec("85000.456"))
	require.NoError(t, err)
	assert.Equal(t, "Meera K", updated.Name)
	assert.True(t, updated.MonthlySalary.Equal(dec("85000.46")))

	_, err = svc.UpdateProfile(ctx, u.ID, "Meera", dec("-1"))
	assert.ErrorIs(t, err, core.ErrNegativeSalary)
	_, err = svc.UpdateProfile(ctx, u.ID, "", dec("1"))
	assert.ErrorIs(t, err, core.ErrEmptyName)

	got, err := svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Meera K", got.Name)

	_, err = svc.Profile(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)

	u, err := svc.Signup(ctx, SignupRequest{Name: "Dev", Email: "dev@example.com", Password: "password1", AcceptTerms: true})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "wrong-one", "password2"), auth.ErrInvalidCredentials)
	assert.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "password1", "short"), core.ErrWeakPassword)
	require.NoError(t, svc.ChangePassword(ctx, u.ID, "password1", "password2"))

	_, _, err = svc.Login(ctx, "dev@example.com", "password1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "dev@example.com", "password2")
	assert.NoError(t, err)
}
