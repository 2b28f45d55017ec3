package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/cryptox"
	"github.com/Tarcisio20/meu-gerente/internal/dbx"
	"github.com/Tarcisio20/meu-gerente/internal/logging"
	"github.com/Tarcisio20/meu-gerente/internal/server/config"
	"github.com/Tarcisio20/meu-gerente/internal/server/lockout"
	"github.com/Tarcisio20/meu-gerente/internal/server/models"
	"github.com/Tarcisio20/meu-gerente/internal/server/realtime"
	auditrepo "github.com/Tarcisio20/meu-gerente/internal/server/repositories/audit"
	"github.com/Tarcisio20/meu-gerente/internal/server/repositories/passwordresets"
	"github.com/Tarcisio20/meu-gerente/internal/server/repositories/refreshtokens"
	"github.com/Tarcisio20/meu-gerente/internal/server/repositories/users"
	"github.com/Tarcisio20/meu-gerente/internal/server/revocation"
)

// cheapParams keeps argon2 fast in tests.
var cheapParams = cryptox.Params{Time: 1, Memory: 64, Threads: 1, KeyLen: 16, SaltLen: 8}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- users ---

type fakeUsersRepo struct {
	mu        sync.Mutex
	byID      map[string]*models.User
	seq       int
	createErr error
	getErr    error
	updateErr error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, common.ErrEmailTaken
		}
		if existing.Slug == u.Slug {
			return nil, common.ErrSlugTaken
		}
	}
	f.seq++
	cp := *u
	if cp.ID == "" {
		cp.ID = fmt.Sprintf("u-%d", f.seq)
	}
	if cp.Role == "" {
		cp.Role = "user"
	}
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUsersRepo) find(match func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeUsersRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUsersRepo) GetUserBySlug(_ context.Context, slug string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Slug == slug })
}

func (f *fakeUsersRepo) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.ID == id })
}

func (f *fakeUsersRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	u, ok := f.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUsersRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

// --- refresh tokens ---

type fakeRefreshRepo struct {
	tokens    map[string]models.RefreshToken
	findErr   error
	createErr error
	delErr    error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(_ context.Context, t *models.RefreshToken) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[t.Token] = *t
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	t, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &t, nil
}

func (f *fakeRefreshRepo) Delete(_ context.Context, token string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.tokens, token)
	return nil
}

func (f *fakeRefreshRepo) DeleteAllForUser(_ context.Context, userID string) (int64, error) {
	if f.delErr != nil {
		return 0, f.delErr
	}
	var n int64
	for k, t := range f.tokens {
		if t.UserID == userID {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRefreshRepo) forUser(userID string) []models.RefreshToken {
	var out []models.RefreshToken
	for _, t := range f.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// --- password resets ---

type fakeResetRepo struct {
	resets map[string]models.PasswordReset
}

func (f *fakeResetRepo) Create(_ context.Context, r *models.PasswordReset) error {
	f.resets[r.TokenHash] = *r
	return nil
}

func (f *fakeResetRepo) Consume(_ context.Context, hash string) (*models.PasswordReset, error) {
	r, ok := f.resets[hash]
	if !ok {
		return nil, common.ErrNotFound
	}
	delete(f.resets, hash)
	return &r, nil
}

// --- audit ---

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	err     error
}

func (f *fakeAudit) Record(_ context.Context, _ dbx.DBTX, e models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return fmt.Errorf("%w: audit write: %v", common.ErrStorageUnavailable, f.err)
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) byAction(a models.Action) []models.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range f.entries {
		if e.Action == a {
			out = append(out, e)
		}
	}
	return out
}

// --- notifier / dispatcher ---

type sentLink struct{ email, link string }

type fakeNotifier struct {
	sent []sentLink
}

func (f *fakeNotifier) SendPasswordReset(_ context.Context, email, link string) error {
	f.sent = append(f.sent, sentLink{email, link})
	return nil
}

type fakeDispatcher struct {
	emails []string
	err    error
}

func (f *fakeDispatcher) DispatchPasswordReset(_ context.Context, email string) error {
	f.emails = append(f.emails, email)
	return f.err
}

// --- manager ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	p *fakeResetRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error      { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                   { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository   { return m.r }
func (m *fakeRepoManager) PasswordResets(dbx.DBTX) passwordresets.Repository { return m.p }
func (m *fakeRepoManager) Audit(dbx.DBTX) auditrepo.Repository               { return nil }

// fixture bundles a service with its fakes.
type fixture struct {
	svc      *UserService
	mock     sqlmock.Sqlmock
	repos    *fakeRepoManager
	audit    *fakeAudit
	notifier *fakeNotifier
	lockout  *lockout.MemoryLimiter
	revoked  *revocation.MemoryStore
	registry *realtime.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		mock: mock,
		repos: &fakeRepoManager{
			u: newFakeUsersRepo(),
			r: newFakeRefreshRepo(),
			p: &fakeResetRepo{resets: map[string]models.PasswordReset{}},
		},
		audit:    &fakeAudit{},
		notifier: &fakeNotifier{},
		lockout:  lockout.NewMemoryLimiter(lockout.Policy{MaxAttempts: 3, Window: time.Minute, LockFor: time.Minute}),
		revoked:  revocation.NewMemoryStore(),
		registry: realtime.NewRegistry(4),
	}

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "k"
	cfg.BaseURL = "http://app.test/"

	f.svc = NewUserService(db, f.repos, cfg, Dependencies{
		Audit:       f.audit,
		Lockout:     f.lockout,
		Revocations: f.revoked,
		Notifier:    f.notifier,
		Events:      f.registry,
	}, logging.Nop{})
	f.svc.setHashParams(cheapParams)
	return f
}

// seedUser stores a user whose password is password.
func (f *fixture) seedUser(t *testing.T, email, slug, password string) *models.User {
	t.Helper()
	hash, err := cryptox.HashPasswordWithParams([]byte(password), cheapParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := f.repos.u.Create(context.Background(), &models.User{Name: "Seed", Email: email, Slug: slug, PasswordHash: hash})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return u
}

func (f *fixture) expectTx(commit bool) {
	f.mock.ExpectBegin()
	if commit {
		f.mock.ExpectCommit()
	} else {
		f.mock.ExpectRollback()
	}
}

func (f *fixture) assertSQL(t *testing.T) {
	t.Helper()
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}
