package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/cryptox"
	"github.com/Tarcisio20/meu-gerente/internal/server/auth"
	"github.com/Tarcisio20/meu-gerente/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)
	f.expectTx(true)

	u, err := f.svc.Register(context.Background(), RegisterInput{
		Name:     "  Ana  ",
		Email:    "Ana@Example.com",
		Slug:     "ana",
		Password: "s3cret!",
	})
	require.NoError(t, err)
	f.assertSQL(t)

	assert.Equal(t, "Ana", u.Name)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.NotEqual(t, "s3cret!", u.PasswordHash)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$argon2id$"))

	ok, err := cryptox.VerifyPassword([]byte("s3cret!"), u.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = cryptox.VerifyPassword([]byte("s3cret?"), u.PasswordHash)
	require.NoError(t, err)
	assert.False(t, ok)

	created := f.audit.byAction(models.ActionCreate)
	require.Len(t, created, 1)
	assert.Equal(t, u.ID, created[0].UserID)
	assert.Equal(t, models.EntityUser, created[0].EntityType)
	snapshot, ok := created[0].NewValues.(models.PublicUser)
	require.True(t, ok, "snapshot must be the public user")
	assert.Equal(t, "ana@example.com", snapshot.Email)
}

func TestRegister_DerivesSlugFromEmail(t *testing.T) {
	f := newFixture(t)
	f.expectTx(true)

	u, err := f.svc.Register(context.Background(), RegisterInput{Name: "Jo", Email: "jo+work@example.com", Password: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "jowork", u.Slug)
}

func TestRegister_DerivedSlugCollisionGetsSuffix(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "john@gmail.com", "john", "s3cret!")
	f.expectTx(false)
	f.expectTx(true)

	u, err := f.svc.Register(context.Background(), RegisterInput{Name: "John", Email: "john@yahoo.com", Password: "123456"})
	require.NoError(t, err)
	f.assertSQL(t)
	assert.Equal(t, "john-2", u.Slug)
	assert.Equal(t, "john@yahoo.com", u.Email)
	assert.Len(t, f.audit.byAction(models.ActionCreate), 1)
}

func TestRegister_DerivedSlugFallsBackToRandomSuffix(t *testing.T) {
	f := newFixture(t)
	for i, slug := range []string{"john", "john-2", "john-3", "john-4"} {
		f.seedUser(t, fmt.Sprintf("john%d@example.com", i), slug, "s3cret!")
		f.expectTx(false)
	}
	f.expectTx(true)

	u, err := f.svc.Register(context.Background(), RegisterInput{Name: "John", Email: "john@yahoo.com", Password: "123456"})
	require.NoError(t, err)
	f.assertSQL(t)
	assert.Regexp(t, `^john-[0-9a-f]{6}$`, u.Slug)
	assert.Equal(t, 5, f.repos.u.count())
}

func TestRegister_DerivedSlugGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.repos.u.createErr = common.ErrSlugTaken
	for i := 0; i < maxSlugAttempts; i++ {
		f.expectTx(false)
	}

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "John", Email: "john@yahoo.com", Password: "123456"})
	assert.ErrorIs(t, err, common.ErrSlugTaken)
	f.assertSQL(t)
	assert.Zero(t, f.repos.u.count())
}

func TestRegister_DuplicateEmailPreCheck(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "ana@example.com", "ana", "s3cret!")

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Other", Email: "ANA@example.com", Slug: "other", Password: "123456"})
	assert.ErrorIs(t, err, common.ErrEmailTaken)
	assert.Equal(t, 1, f.repos.u.count())
	assert.Empty(t, f.audit.entries)
	f.assertSQL(t)
}

func TestRegister_DuplicateEmailUniqueViolation(t *testing.T) {
	f := newFixture(t)
	// pre-check misses the row, the insert hits the unique constraint
	f.repos.u.createErr = common.ErrEmailTaken
	f.expectTx(false)

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Slug: "ana", Password: "123456"})
	assert.ErrorIs(t, err, common.ErrEmailTaken)
	assert.Zero(t, f.repos.u.count())
	assert.Empty(t, f.audit.entries)
	f.assertSQL(t)
}

func TestRegister_SlugTaken(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "ana@example.com", "ana", "s3cret!")
	f.expectTx(false)

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Ana 2", Email: "ana2@example.com", Slug: "ana", Password: "123456"})
	assert.ErrorIs(t, err, common.ErrSlugTaken)
}

func TestRegister_InvalidInput(t *testing.T) {
	cases := map[string]RegisterInput{
		"missing name":   {Email: "a@b.co", Password: "123456"},
		"long name":      {Name: strings.Repeat("x", 121), Email: "a@b.co", Password: "123456"},
		"bad email":      {Name: "A", Email: "not-an-email", Password: "123456"},
		"short password": {Name: "A", Email: "a@b.co", Password: "12345"},
		"bad slug":       {Name: "A", Email: "a@b.co", Slug: "a b", Password: "123456"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
			assert.Zero(t, f.repos.u.count())
			f.assertSQL(t)
		})
	}
}

func TestRegister_AuditFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.audit.err = errBoom{}
	f.expectTx(false)

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Slug: "ana", Password: "123456"})
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	f.assertSQL(t)
}

func TestRegister_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.repos.u.getErr = errBoom{}

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Slug: "ana", Password: "123456"})
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
}

func TestLogin_SuccessByEmailAndSlug(t *testing.T) {
	for _, tc := range []struct {
		identifier string
		method     string
	}{
		{"ANA@example.com ", "email"},
		{"ana", "slug"},
	} {
		t.Run(tc.method, func(t *testing.T) {
			f := newFixture(t)
			u := f.seedUser(t, "ana@example.com", "ana", "s3cret!")
			sub := f.registry.Subscribe(u.ID)
			f.expectTx(true)

			res, err := f.svc.Login(context.Background(), tc.identifier, "s3cret!")
			require.NoError(t, err)
			f.assertSQL(t)

			assert.Equal(t, u.ID, res.User.ID)
			claims, err := auth.ParseToken(res.AccessToken, []byte("k"))
			require.NoError(t, err)
			assert.Equal(t, u.ID, claims.UserID)
			assert.Equal(t, "ana", claims.Slug)
			assert.WithinDuration(t, claims.ExpiresAt.Time, res.ExpiresAt, time.Second)

			stored := f.repos.r.forUser(u.ID)
			require.Len(t, stored, 1)
			assert.Equal(t, res.RefreshToken, stored[0].Token)

			logins := f.audit.byAction(models.ActionLogin)
			require.Len(t, logins, 1, "exactly one LOGIN entry")
			assert.Equal(t, u.ID, logins[0].UserID)
			assert.Equal(t, models.EntityAuth, logins[0].EntityType)
			assert.Equal(t, map[string]string{"identifier": strings.ToLower(strings.TrimSpace(tc.identifier)), "method": tc.method}, logins[0].Metadata)

			ev := <-sub.Events
			assert.Equal(t, "login", ev.Type)
		})
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "ana@example.com", "ana", "s3cret!")

	_, wrongPassword := f.svc.Login(context.Background(), "ana@example.com", "nope")
	_, unknownUser := f.svc.Login(context.Background(), "ghost@example.com", "s3cret!")
	_, unknownSlug := f.svc.Login(context.Background(), "ghost", "s3cret!")

	for _, err := range []error{wrongPassword, unknownUser, unknownSlug} {
		assert.ErrorIs(t, err, common.ErrInvalidCredentials)
		assert.Equal(t, wrongPassword.Error(), err.Error())
	}
	assert.Empty(t, f.audit.entries)
	assert.Empty(t, f.repos.r.tokens)
	f.assertSQL(t)
}

func TestLogin_EmptyInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), "  ", "x")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, err = f.svc.Login(context.Background(), "ana", "")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "ana@example.com", "ana", "s3cret!")

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(context.Background(), "ana@example.com", "wrong")
		require.ErrorIs(t, err, common.ErrInvalidCredentials)
	}

	_, err := f.svc.Login(context.Background(), "ana@example.com", "s3cret!")
	assert.ErrorIs(t, err, common.ErrTooManyAttempts)
	assert.Empty(t, f.audit.byAction(models.ActionLogin))
}

func TestLogin_SuccessResetsFailureCount(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "ana@example.com", "ana", "s3cret!")

	for i := 0; i < 2; i++ {
		_, _ = f.svc.Login(context.Background(), "ana@example.com", "wrong")
	}
	f.expectTx(true)
	_, err := f.svc.Login(context.Background(), "ana@example.com", "s3cret!")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.svc.Login(context.Background(), "ana@example.com", "wrong")
		require.ErrorIs(t, err, common.ErrInvalidCredentials)
	}
}

func TestLogin_AuditFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "ana@example.com", "ana", "s3cret!")
	f.audit.err = errBoom{}
	f.expectTx(false)

	_, err := f.svc.Login(context.Background(), "ana", "s3cret!")
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	f.assertSQL(t)
}

func TestLogin_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.repos.u.getErr = errBoom{}

	_, err := f.svc.Login(context.Background(), "ana", "s3cret!")
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestRefreshToken_Rotates(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "ana@example.com", "ana", "s3cret!")
	f.repos.r.tokens["old"] = models.RefreshToken{UserID: u.ID, Token: "old", Expires: time.Now().Add(time.Hour)}
	f.expectTx(true)

	pair, err := f.svc.RefreshToken(context.Background(), "old")
	require.NoError(t, err)
	f.assertSQL(t)

	assert.NotEqual(t, "old", pair.RefreshToken)
	_, stillThere := f.repos.r.tokens["old"]
	assert.False(t, stillThere)
	_, issued := f.repos.r.tokens[pair.RefreshToken]
	assert.True(t, issued)

	claims, err := auth.ParseToken(pair.AccessToken, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.Slug)
}

func TestRefreshToken_Errors(t *testing.T) {
	t.Run("expired", func(t *testing.T) {
		f := newFixture(t)
		f.repos.r.tokens["r"] = models.RefreshToken{UserID: "u1", Token: "r", Expires: time.Now().Add(-time.Minute)}

		_, err := f.svc.RefreshToken(context.Background(), "r")
		assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
	})

	t.Run("unknown", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.RefreshToken(context.Background(), "r")
		assert.ErrorIs(t, err, common.ErrUnauthorized)
	})

	t.Run("find error", func(t *testing.T) {
		f := newFixture(t)
		f.repos.r.findErr = errBoom{}
		_, err := f.svc.RefreshToken(context.Background(), "r")
		assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	})

	t.Run("delete error rolls back", func(t *testing.T) {
		f := newFixture(t)
		u := f.seedUser(t, "ana@example.com", "ana", "s3cret!")
		f.repos.r.tokens["r"] = models.RefreshToken{UserID: u.ID, Token: "r", Expires: time.Now().Add(time.Hour)}
		f.repos.r.delErr = errBoom{}
		f.expectTx(false)

		_, err := f.svc.RefreshToken(context.Background(), "r")
		assert.ErrorIs(t, err, common.ErrStorageUnavailable)
		f.assertSQL(t)
	})
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "ana@example.com", "ana", "s3cret!")
	f.repos.r.tokens["mine"] = models.RefreshToken{UserID: u.ID, Token: "mine", Expires: time.Now().Add(time.Hour)}
	f.repos.r.tokens["theirs"] = models.RefreshToken{UserID: "other", Token: "theirs", Expires: time.Now().Add(time.Hour)}
	sub := f.registry.Subscribe(u.ID)

	for _, rt := range []string{"mine", "theirs"} {
		f.expectTx(true)
		err := f.svc.Logout(context.Background(), LogoutInput{
			UserID:       u.ID,
			TokenID:      "jti-" + rt,
			ExpiresAt:    time.Now().Add(time.Minute),
			RefreshToken: rt,
		})
		require.NoError(t, err)
	}
	f.assertSQL(t)

	revoked, err := f.revoked.IsRevoked(context.Background(), "jti-mine")
	require.NoError(t, err)
	assert.True(t, revoked)

	_, ok := f.repos.r.tokens["mine"]
	assert.False(t, ok)
	_, ok = f.repos.r.tokens["theirs"]
	assert.True(t, ok, "another user's refresh token must survive")

	logouts := f.audit.byAction(models.ActionLogout)
	require.Len(t, logouts, 2)
	assert.Equal(t, u.ID, logouts[0].UserID)

	assert.Equal(t, "logout", (<-sub.Events).Type)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "ana@example.com", "ana", "s3cret!")

	got, err := f.svc.Profile(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", got.Slug)

	_, err = f.svc.Profile(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestRequestPasswordReset_Inline(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "ana@example.com", "ana", "s3cret!")
	f.expectTx(true)

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), " ANA@example.com"))
	f.assertSQL(t)

	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, "ana@example.com", sent.email)
	assert.True(t, strings.HasPrefix(sent.link, "http://app.test/reset-password?token="))

	link, err := url.Parse(sent.link)
	require.NoError(t, err)
	raw := link.Query().Get("token")
	require.Len(t, f.repos.p.resets, 1)
	_, storedRaw := f.repos.p.resets[raw]
	assert.False(t, storedRaw, "raw token must not be stored")
	_, storedHash := f.repos.p.resets[hashToken(raw)]
	assert.True(t, storedHash)

	req := f.audit.byAction(models.ActionPasswordResetRequest)
	require.Len(t, req, 1)
	assert.Equal(t, u.ID, req[0].UserID)
}

func TestRequestPasswordReset_UnknownEmailLooksTheSame(t *testing.T) {
	f := newFixture(t)

	assert.NoError(t, f.svc.RequestPasswordReset(context.Background(), "ghost@example.com"))
	assert.Empty(t, f.notifier.sent)
	assert.Empty(t, f.audit.entries)
}

func TestRequestPasswordReset_InvalidEmail(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.RequestPasswordReset(context.Background(), "nope"), common.ErrInvalidInput)
}

func TestRequestPasswordReset_Dispatcher(t *testing.T) {
	f := newFixture(t)
	d := &fakeDispatcher{}
	f.svc.SetDispatcher(d)

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "ana@example.com"))
	assert.Equal(t, []string{"ana@example.com"}, d.emails)
	assert.Empty(t, f.notifier.sent)

	d.err = errors.New("queue down")
	assert.ErrorIs(t, f.svc.RequestPasswordReset(context.Background(), "ana@example.com"), common.ErrStorageUnavailable)
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "ana@example.com", "ana", "old-pass")
	f.repos.r.tokens["r1"] = models.RefreshToken{UserID: u.ID, Token: "r1", Expires: time.Now().Add(time.Hour)}
	f.repos.r.tokens["r2"] = models.RefreshToken{UserID: u.ID, Token: "r2", Expires: time.Now().Add(time.Hour)}

	f.expectTx(true)
	ticket, err := f.svc.IssuePasswordReset(context.Background(), "ana@example.com")
	require.NoError(t, err)
	link, _ := url.Parse(ticket.Link)
	raw := link.Query().Get("token")

	f.expectTx(true)
	require.NoError(t, f.svc.ResetPassword(context.Background(), raw, "new-pass"))

	stored, err := f.repos.u.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	ok, err := cryptox.VerifyPassword([]byte("new-pass"), stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.repos.r.forUser(u.ID))

	resets := f.audit.byAction(models.ActionPasswordReset)
	require.Len(t, resets, 1)
	assert.Equal(t, map[string]any{"refreshTokensRevoked": int64(2)}, resets[0].Metadata)

	// one-time
	f.expectTx(false)
	assert.ErrorIs(t, f.svc.ResetPassword(context.Background(), raw, "another"), common.ErrInvalidToken)
	f.assertSQL(t)
}

func TestResetPassword_Errors(t *testing.T) {
	t.Run("short password", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.svc.ResetPassword(context.Background(), "tok", "123"), common.ErrInvalidInput)
	})

	t.Run("empty token", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.svc.ResetPassword(context.Background(), "", "123456"), common.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t)
		f.repos.p.resets[hashToken("tok")] = models.PasswordReset{TokenHash: hashToken("tok"), UserID: "u1", Expires: time.Now().Add(-time.Minute)}
		f.expectTx(false)

		assert.ErrorIs(t, f.svc.ResetPassword(context.Background(), "tok", "123456"), common.ErrTokenExpired)
		f.assertSQL(t)
	})
}

func TestIssuePasswordReset_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.IssuePasswordReset(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStorageError(t *testing.T) {
	assert.NoError(t, storageError(nil))
	assert.ErrorIs(t, storageError(common.ErrEmailTaken), common.ErrEmailTaken)
	assert.ErrorIs(t, storageError(errBoom{}), common.ErrStorageUnavailable)
}
