// Package refreshtokens stores the server side of refresh tokens: opaque
// strings bound to one user with an expiry, rotated on every refresh.
package refreshtokens

import (
	"context"

	"github.com/Tarcisio20/meu-gerente/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.RefreshToken) error

	// Find returns common.ErrNotFound when the token is unknown.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes one token. Deleting an absent token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteAllForUser drops every refresh token of userID, e.g. after a
	// password reset.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}
