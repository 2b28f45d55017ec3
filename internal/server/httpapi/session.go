package httpapi

import (
	"context"
	"strings"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/logging"
	"github.com/Tarcisio20/meu-gerente/internal/server/auth"
	"github.com/Tarcisio20/meu-gerente/internal/server/revocation"
	"github.com/gin-gonic/gin"
)

// Identity is the authenticated caller of a request. It is stored by
// value, so handlers cannot change what the middleware verified.
type Identity struct {
	UserID    string
	Slug      string
	TokenID   string
	ExpiresAt time.Time
}

type identityKey struct{}

// ginIdentityKey is the gin context key holding the same Identity.
const ginIdentityKey = "identity"

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by RequireSession.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], strings.TrimSpace(common.BearerPrefix)) {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireSession rejects requests without a valid, unrevoked bearer token
// with 401. On success the Identity is available through IdentityFrom on
// the request context and under "identity" in the gin context.
func RequireSession(secret []byte, revocations revocation.Store, log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		token, ok := bearerToken(c.GetHeader(common.AuthorizationHeader))
		if !ok {
			writeError(c, common.ErrUnauthorized)
			return
		}

		claims, err := auth.ParseToken(token, secret)
		if err != nil {
			log.Debug(ctx, "rejected bearer token", "path", c.Request.URL.Path, "error", err)
			writeError(c, common.ErrUnauthorized)
			return
		}

		revoked, err := revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			log.Error(ctx, "revocation check failed", "error", err)
			writeError(c, err)
			return
		}
		if revoked {
			writeError(c, common.ErrUnauthorized)
			return
		}

		id := Identity{
			UserID:    claims.UserID,
			Slug:      claims.Slug,
			TokenID:   claims.ID,
			ExpiresAt: claims.ExpiresAt.Time,
		}
		c.Set(ginIdentityKey, id)
		c.Request = c.Request.WithContext(withIdentity(ctx, id))
		c.Next()
	}
}
