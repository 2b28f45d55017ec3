// Package passwordresets keeps pending one-time password reset tokens.
// Tokens are stored as sha256 hex digests and consumed exactly once.
package passwordresets

import (
	"context"

	"github.com/Tarcisio20/meu-gerente/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, reset *models.PasswordReset) error

	// Consume deletes the reset and returns it. An unknown hash yields
	// common.ErrNotFound; expiry is left to the caller.
	Consume(ctx context.Context, tokenHash string) (*models.PasswordReset, error)
}
