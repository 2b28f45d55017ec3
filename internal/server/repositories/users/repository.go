// Package users is the credential store: user identity plus the hashed
// credential, with lookups by email, slug and id.
package users

import (
	"context"

	"github.com/Tarcisio20/meu-gerente/internal/server/models"
)

type Repository interface {
	// Create inserts user, filling ID (when empty) and timestamps. A
	// duplicate email yields common.ErrEmailTaken, a duplicate slug
	// common.ErrSlugTaken.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserBySlug(ctx context.Context, slug string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
}
