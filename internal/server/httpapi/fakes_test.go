package httpapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/server/models"
	"github.com/Tarcisio20/meu-gerente/internal/server/services"
)

type fakeAuth struct {
	mu sync.Mutex

	user        *models.User
	registerErr error
	loginErr    error
	refreshErr  error
	logoutErr   error
	profileErr  error
	forgotErr   error
	resetErr    error

	loginIdentifier string
	logouts         []services.LogoutInput
	forgotEmails    []string
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{user: &models.User{
		ID:        "u-1",
		Name:      "Ana",
		Email:     "ana@example.com",
		Slug:      "ana",
		Role:      "user",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
}

func (f *fakeAuth) Register(_ context.Context, in services.RegisterInput) (*models.User, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	u := *f.user
	u.Name, u.Email, u.Slug = in.Name, in.Email, in.Slug
	return &u, nil
}

func (f *fakeAuth) Login(_ context.Context, identifier, _ string) (*services.LoginResult, error) {
	f.mu.Lock()
	f.loginIdentifier = identifier
	f.mu.Unlock()
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &services.LoginResult{
		TokenPair: services.TokenPair{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Unix(1700000000, 0)},
		User:      f.user,
	}, nil
}

func (f *fakeAuth) RefreshToken(_ context.Context, rt string) (*services.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &services.TokenPair{AccessToken: "access-2", RefreshToken: rt + "-2", ExpiresAt: time.Unix(1700000000, 0)}, nil
}

func (f *fakeAuth) Logout(_ context.Context, in services.LogoutInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, in)
	return f.logoutErr
}

func (f *fakeAuth) Profile(_ context.Context, userID string) (*models.User, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if userID != f.user.ID {
		return nil, common.ErrUnauthorized
	}
	return f.user, nil
}

func (f *fakeAuth) RequestPasswordReset(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotEmails = append(f.forgotEmails, email)
	return f.forgotErr
}

func (f *fakeAuth) ResetPassword(context.Context, string, string) error {
	return f.resetErr
}

// brokenStore fails every revocation lookup.
type brokenStore struct{}

func (brokenStore) Revoke(context.Context, string, time.Time) error { return nil }

func (brokenStore) IsRevoked(context.Context, string) (bool, error) {
	return false, fmt.Errorf("%w: redis down", common.ErrStorageUnavailable)
}
