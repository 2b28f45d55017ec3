// Package services contains the CLI's application services. AuthService
// wraps the API client, keeps the current user in memory and turns API
// errors into messages fit for a terminal.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Tarcisio20/meu-gerente/internal/client/client"
	"github.com/Tarcisio20/meu-gerente/internal/common"
)

// API is the part of client.APIClient the auth service needs.
type API interface {
	Register(ctx context.Context, req client.RegisterRequest) (*client.User, error)
	Login(ctx context.Context, login, password string) (*client.User, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*client.User, error)
	Ping(ctx context.Context) error
	PrivatePing(ctx context.Context) (string, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
}

type AuthService interface {
	Register(ctx context.Context, name, email, slug string, password []byte) (*client.User, error)
	Login(ctx context.Context, login string, password []byte) (*client.User, error)
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) (*client.User, error)
	Ping(ctx context.Context) error
	PrivatePing(ctx context.Context) (string, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	CurrentUser() *client.User
}

type authService struct {
	api API

	mu   sync.RWMutex
	user *client.User
}

func NewAuthService(api API) AuthService {
	return &authService{api: api}
}

func (s *authService) setUser(u *client.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

func (s *authService) CurrentUser() *client.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Register creates the account. It does not log the user in.
func (s *authService) Register(ctx context.Context, name, email, slug string, password []byte) (*client.User, error) {
	return s.api.Register(ctx, client.RegisterRequest{
		Name:     strings.TrimSpace(name),
		Email:    strings.TrimSpace(email),
		Slug:     strings.TrimSpace(slug),
		Password: string(password),
	})
}

func (s *authService) Login(ctx context.Context, login string, password []byte) (*client.User, error) {
	u, err := s.api.Login(ctx, strings.TrimSpace(login), string(password))
	if err != nil {
		return nil, err
	}
	s.setUser(u)
	return u, nil
}

// Logout forgets the local session even if the server could not be reached.
func (s *authService) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	s.setUser(nil)
	return err
}

func (s *authService) WhoAmI(ctx context.Context) (*client.User, error) {
	u, err := s.api.Me(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			s.setUser(nil)
		}
		return nil, err
	}
	s.setUser(u)
	return u, nil
}

func (s *authService) Ping(ctx context.Context) error {
	return s.api.Ping(ctx)
}

func (s *authService) PrivatePing(ctx context.Context) (string, error) {
	return s.api.PrivatePing(ctx)
}

func (s *authService) ForgotPassword(ctx context.Context, email string) (string, error) {
	return s.api.ForgotPassword(ctx, strings.TrimSpace(email))
}

const (
	MsgInvalidCredentials = "Invalid email/username or password."
	MsgEmailTaken         = "This email is already registered."
	MsgSlugTaken          = "This username is already taken."
	MsgTooManyAttempts    = "Too many failed attempts. Try again later."
	MsgUnauthorized       = "Your session has expired. Please log in again."
	MsgUnavailable        = "Server unavailable. Check your connection and try again."
	MsgStorageUnavailable = "The service is temporarily unavailable. Please try again in a moment."
	MsgUnexpected         = "Something went wrong. Please try again."
)

// UserMessage renders err for display. Invalid input keeps the server's
// message since it names the offending field.
func UserMessage(err error) string {
	var apiErr *client.APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, common.ErrInvalidCredentials):
		return MsgInvalidCredentials
	case errors.Is(err, common.ErrEmailTaken):
		return MsgEmailTaken
	case errors.Is(err, common.ErrSlugTaken):
		return MsgSlugTaken
	case errors.Is(err, common.ErrTooManyAttempts):
		return MsgTooManyAttempts
	case errors.Is(err, client.ErrUnavailable):
		return MsgUnavailable
	case errors.Is(err, common.ErrStorageUnavailable):
		return MsgStorageUnavailable
	case errors.Is(err, client.ErrUnauthorized):
		return MsgUnauthorized
	case errors.Is(err, common.ErrInvalidInput) && errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return MsgUnexpected
	}
}
