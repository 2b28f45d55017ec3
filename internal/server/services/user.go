// Package services contains the server-side business logic. UserService
// covers registration, login, token refresh, logout and password reset,
// and writes the audit trail for each of them.
package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/cryptox"
	"github.com/Tarcisio20/meu-gerente/internal/dbx"
	"github.com/Tarcisio20/meu-gerente/internal/logging"
	"github.com/Tarcisio20/meu-gerente/internal/server/auth"
	"github.com/Tarcisio20/meu-gerente/internal/server/config"
	"github.com/Tarcisio20/meu-gerente/internal/server/jobs"
	"github.com/Tarcisio20/meu-gerente/internal/server/lockout"
	"github.com/Tarcisio20/meu-gerente/internal/server/metrics"
	"github.com/Tarcisio20/meu-gerente/internal/server/models"
	"github.com/Tarcisio20/meu-gerente/internal/server/realtime"
	"github.com/Tarcisio20/meu-gerente/internal/server/repositories/repomanager"
	"github.com/Tarcisio20/meu-gerente/internal/server/revocation"
)

const (
	minPasswordLen = 6
	maxNameLen     = 120

	// maxSlugAttempts bounds the retries for a username derived from the
	// email; the last attempt gets a random suffix.
	maxSlugAttempts = 5
)

var (
	emailRe = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	slugRe  = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	// slugStrip removes what a slug may not contain when deriving one.
	slugStrip = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// AuditRecorder writes one audit entry through db. *audit.Writer
// satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, db dbx.DBTX, entry models.AuditEntry) error
}

// EventPublisher pushes live events to a user's open streams.
// *realtime.Registry satisfies it.
type EventPublisher interface {
	Publish(userID string, ev realtime.Event) int
}

// Dependencies are the collaborators UserService needs besides storage.
type Dependencies struct {
	Audit       AuditRecorder
	Lockout     lockout.Limiter
	Revocations revocation.Store
	Notifier    jobs.Notifier
	Events      EventPublisher
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type LoginResult struct {
	TokenPair
	User *models.User
}

type RegisterInput struct {
	Name     string
	Email    string
	Slug     string
	Password string
}

// LogoutInput identifies the session being ended. TokenID and ExpiresAt
// come from the verified access token.
type LogoutInput struct {
	UserID       string
	TokenID      string
	ExpiresAt    time.Time
	RefreshToken string
}

// ResetTicket describes an issued password reset. The link carries the
// only copy of the raw token.
type ResetTicket struct {
	UserID    string
	Link      string
	ExpiresAt time.Time
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	deps        Dependencies
	dispatcher  jobs.Dispatcher
	log         logging.Logger

	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	passwordResetValidity        time.Duration
	baseURL                      string

	hashParams cryptox.Params
	dummyHash  string
	now        func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, deps Dependencies, log logging.Logger) *UserService {
	s := &UserService{
		db:                           db,
		repomanager:                  m,
		deps:                         deps,
		log:                          log.With("module", "users"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		passwordResetValidity:        cfg.PasswordResetValidity,
		baseURL:                      strings.TrimRight(cfg.BaseURL, "/"),
		now:                          time.Now,
	}
	s.setHashParams(cryptox.DefaultParams)
	return s
}

// SetDispatcher routes RequestPasswordReset through d. Without one the
// reset is issued in the request goroutine.
func (s *UserService) SetDispatcher(d jobs.Dispatcher) {
	s.dispatcher = d
}

// setHashParams also refreshes the hash verified for unknown identifiers,
// so that path costs the same as a real verification.
func (s *UserService) setHashParams(p cryptox.Params) {
	s.hashParams = p
	h, err := cryptox.HashPasswordWithParams(common.GenerateRandByteArray(16), p)
	if err != nil {
		panic(err)
	}
	s.dummyHash = h
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (_ *models.User, err error) {
	defer func() { metrics.AuthAttemptsTotal.WithLabelValues("register", metrics.Outcome(err)).Inc() }()

	user, err := normalizeRegistration(in)
	if err != nil {
		return nil, err
	}

	if _, err := s.repomanager.Users(s.db).GetUserByEmail(ctx, user.Email); err == nil {
		return nil, common.ErrEmailTaken
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, storageError(err)
	}

	hash, err := cryptox.HashPasswordWithParams([]byte(in.Password), s.hashParams)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", common.ErrInternal, err)
	}
	user.PasswordHash = hash

	// A derived username that collides gets a suffix; one the caller chose
	// is reported as taken.
	derived := strings.TrimSpace(in.Slug) == ""
	base := user.Slug

	var created *models.User
	for attempt := 1; ; attempt++ {
		created, err = s.createUser(ctx, user)
		if err == nil {
			break
		}
		if !derived || !errors.Is(err, common.ErrSlugTaken) || attempt == maxSlugAttempts {
			return nil, err
		}
		if user.Slug, err = slugCandidate(base, attempt+1); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInternal, err)
		}
	}

	s.log.Info(ctx, "user registered", "user_id", created.ID, "slug", created.Slug)
	return created, nil
}

// createUser inserts u and its USER/CREATE audit entry in one transaction.
func (s *UserService) createUser(ctx context.Context, u *models.User) (*models.User, error) {
	var created *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := s.repomanager.Users(tx).Create(ctx, u)
		if err != nil {
			return storageError(err)
		}
		created = c
		return s.deps.Audit.Record(ctx, tx, models.AuditEntry{
			UserID:     c.ID,
			EntityType: models.EntityUser,
			EntityID:   c.ID,
			Action:     models.ActionCreate,
			NewValues:  c.Public(),
		})
	})
	if err != nil {
		return nil, storageError(err)
	}
	return created, nil
}

// slugCandidate returns base-n, or base with a random suffix on the last
// attempt.
func slugCandidate(base string, n int) (string, error) {
	if n < maxSlugAttempts {
		return fmt.Sprintf("%s-%d", base, n), nil
	}
	suffix, err := common.MakeRandHexString(3)
	if err != nil {
		return "", err
	}
	return base + "-" + suffix, nil
}

// Login accepts an email or a slug as identifier. Every failure that is
// not a lockout or an outage is reported as common.ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, identifier, password string) (_ *LoginResult, err error) {
	defer func() { metrics.AuthAttemptsTotal.WithLabelValues("login", metrics.Outcome(err)).Inc() }()

	key, method := normalizeIdentifier(identifier)
	if key == "" || password == "" {
		return nil, common.ErrInvalidCredentials
	}

	if err := s.deps.Lockout.Check(ctx, key); err != nil {
		if errors.Is(err, common.ErrTooManyAttempts) {
			s.log.Warn(ctx, "login refused, identifier locked", "identifier", key)
		}
		return nil, err
	}

	users := s.repomanager.Users(s.db)
	var user *models.User
	if method == "email" {
		user, err = users.GetUserByEmail(ctx, key)
	} else {
		user, err = users.GetUserBySlug(ctx, key)
	}
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, storageError(err)
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	ok, verr := cryptox.VerifyPassword([]byte(password), hash)
	if verr != nil && user != nil {
		s.log.Error(ctx, "stored password hash unreadable", "user_id", user.ID, "error", verr)
	}
	if user == nil || !ok {
		if ferr := s.deps.Lockout.Fail(ctx, key); ferr != nil {
			s.log.Error(ctx, "lockout bookkeeping failed", "error", ferr)
		}
		s.log.Info(ctx, "login failed", "identifier", key, "method", method)
		return nil, common.ErrInvalidCredentials
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if pair, err = s.generateTokenPair(ctx, user, tx); err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, tx, models.AuditEntry{
			UserID:     user.ID,
			EntityType: models.EntityAuth,
			EntityID:   user.ID,
			Action:     models.ActionLogin,
			Metadata:   map[string]string{"identifier": key, "method": method},
		})
	})
	if err != nil {
		return nil, storageError(err)
	}

	if err := s.deps.Lockout.Reset(ctx, key); err != nil {
		s.log.Warn(ctx, "lockout reset failed", "error", err)
	}
	s.deps.Events.Publish(user.ID, realtime.Event{Type: "login", Data: map[string]string{"method": method}})
	s.log.Info(ctx, "login succeeded", "user_id", user.ID, "method", method)

	return &LoginResult{TokenPair: *pair, User: user}, nil
}

// RefreshToken rotates refreshToken and mints a new access token.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (_ *TokenPair, err error) {
	defer func() { metrics.AuthAttemptsTotal.WithLabelValues("refresh", metrics.Outcome(err)).Inc() }()

	token, err := s.repomanager.RefreshTokens(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, storageError(err)
	}
	if token.Expires.Before(s.now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	user, err := s.repomanager.Users(s.db).GetUserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, storageError(err)
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return err
		}
		var err error
		pair, err = s.generateTokenPair(ctx, user, tx)
		return err
	})
	if err != nil {
		return nil, storageError(err)
	}
	return pair, nil
}

// Logout revokes the access token until it expires, drops the refresh
// token when it belongs to the same user and records the logout.
func (s *UserService) Logout(ctx context.Context, in LogoutInput) (err error) {
	defer func() { metrics.AuthAttemptsTotal.WithLabelValues("logout", metrics.Outcome(err)).Inc() }()

	if err := s.deps.Revocations.Revoke(ctx, in.TokenID, in.ExpiresAt); err != nil {
		return storageError(err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if in.RefreshToken != "" {
			repo := s.repomanager.RefreshTokens(tx)
			rt, err := repo.Find(ctx, in.RefreshToken)
			switch {
			case err == nil && rt.UserID == in.UserID:
				if err := repo.Delete(ctx, in.RefreshToken); err != nil {
					return err
				}
			case err != nil && !errors.Is(err, common.ErrNotFound):
				return err
			}
		}
		return s.deps.Audit.Record(ctx, tx, models.AuditEntry{
			UserID:     in.UserID,
			EntityType: models.EntityAuth,
			EntityID:   in.UserID,
			Action:     models.ActionLogout,
		})
	})
	if err != nil {
		return storageError(err)
	}

	s.deps.Events.Publish(in.UserID, realtime.Event{Type: "logout"})
	s.log.Info(ctx, "logout", "user_id", in.UserID)
	return nil
}

// Profile loads the user a verified session belongs to.
func (s *UserService) Profile(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, storageError(err)
	}
	return u, nil
}

// RequestPasswordReset answers the same way whether or not an account with
// that email exists.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRe.MatchString(email) {
		return fmt.Errorf("%w: invalid email", common.ErrInvalidInput)
	}

	if s.dispatcher != nil {
		return storageError(s.dispatcher.DispatchPasswordReset(ctx, email))
	}
	if _, err := s.IssuePasswordReset(ctx, email); err != nil && !errors.Is(err, common.ErrNotFound) {
		return storageError(err)
	}
	return nil
}

// IssuePasswordReset stores a one-time token for the account behind email
// and sends the link. An unknown email yields common.ErrNotFound.
func (s *UserService) IssuePasswordReset(ctx context.Context, email string) (*ResetTicket, error) {
	user, err := s.repomanager.Users(s.db).GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	raw, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("%w: reset token: %v", common.ErrInternal, err)
	}
	expires := s.now().Add(s.passwordResetValidity)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.PasswordResets(tx).Create(ctx, &models.PasswordReset{
			TokenHash: hashToken(raw),
			UserID:    user.ID,
			Expires:   expires,
		}); err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, tx, models.AuditEntry{
			UserID:     user.ID,
			EntityType: models.EntityUser,
			EntityID:   user.ID,
			Action:     models.ActionPasswordResetRequest,
			Metadata:   map[string]any{"expiresAt": expires.UTC()},
		})
	})
	if err != nil {
		return nil, storageError(err)
	}

	ticket := &ResetTicket{
		UserID:    user.ID,
		Link:      s.baseURL + "/reset-password?token=" + url.QueryEscape(raw),
		ExpiresAt: expires,
	}
	if err := s.deps.Notifier.SendPasswordReset(ctx, user.Email, ticket.Link); err != nil {
		return nil, fmt.Errorf("send reset link: %w", err)
	}
	return ticket, nil
}

// ResetPassword consumes token, sets the new password and ends every
// refresh session of the user.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("%w: password must have at least %d characters", common.ErrInvalidInput, minPasswordLen)
	}
	if token == "" {
		return common.ErrInvalidToken
	}

	hash, err := cryptox.HashPasswordWithParams([]byte(newPassword), s.hashParams)
	if err != nil {
		return fmt.Errorf("%w: hash password: %v", common.ErrInternal, err)
	}

	var userID string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		reset, err := s.repomanager.PasswordResets(tx).Consume(ctx, hashToken(token))
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrInvalidToken
			}
			return err
		}
		if reset.Expires.Before(s.now()) {
			return common.ErrTokenExpired
		}
		userID = reset.UserID

		if err := s.repomanager.Users(tx).UpdatePasswordHash(ctx, reset.UserID, hash); err != nil {
			return err
		}
		revoked, err := s.repomanager.RefreshTokens(tx).DeleteAllForUser(ctx, reset.UserID)
		if err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, tx, models.AuditEntry{
			UserID:     reset.UserID,
			EntityType: models.EntityUser,
			EntityID:   reset.UserID,
			Action:     models.ActionPasswordReset,
			Metadata:   map[string]any{"refreshTokensRevoked": revoked},
		})
	})
	if err != nil {
		return storageError(err)
	}

	s.log.Info(ctx, "password reset", "user_id", userID)
	return nil
}

// --- helpers below ---

func (s *UserService) generateTokenPair(ctx context.Context, user *models.User, tx dbx.DBTX) (*TokenPair, error) {
	access, claims, err := auth.GenerateToken(auth.Subject{UserID: user.ID, Slug: user.Slug}, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, &models.RefreshToken{
		UserID:  user.ID,
		Token:   refresh,
		Expires: s.now().Add(s.refreshTokenValidityDuration),
	}); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// storageError passes taxonomy errors through and files everything else
// under common.ErrStorageUnavailable.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		common.ErrInvalidInput, common.ErrEmailTaken, common.ErrSlugTaken,
		common.ErrInvalidCredentials, common.ErrUnauthorized, common.ErrTooManyAttempts,
		common.ErrStorageUnavailable, common.ErrInternal, common.ErrInvalidToken,
		common.ErrTokenExpired, common.ErrRefreshTokenExpired, common.ErrNotFound,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
}

// normalizeIdentifier lower-cases emails; slugs keep their case.
func normalizeIdentifier(identifier string) (key, method string) {
	key = strings.TrimSpace(identifier)
	if strings.Contains(key, "@") {
		return strings.ToLower(key), "email"
	}
	return key, "slug"
}

func normalizeRegistration(in RegisterInput) (*models.User, error) {
	u := &models.User{
		Name:  strings.TrimSpace(in.Name),
		Email: strings.ToLower(strings.TrimSpace(in.Email)),
		Slug:  strings.TrimSpace(in.Slug),
	}

	var problems []string
	if u.Name == "" || len(u.Name) > maxNameLen {
		problems = append(problems, "name is required")
	}
	if !emailRe.MatchString(u.Email) {
		problems = append(problems, "email is invalid")
	}
	if u.Slug == "" && emailRe.MatchString(u.Email) {
		local, _, _ := strings.Cut(u.Email, "@")
		u.Slug = slugStrip.ReplaceAllString(local, "")
	}
	if !slugRe.MatchString(u.Slug) {
		problems = append(problems, "username is invalid")
	}
	if len(in.Password) < minPasswordLen {
		problems = append(problems, fmt.Sprintf("password must have at least %d characters", minPasswordLen))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return u, nil
}
