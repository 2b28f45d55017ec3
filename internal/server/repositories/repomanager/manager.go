package repomanager

import (
	"context"
	"database/sql"

	"github.com/Tarcisio20/meu-gerente/internal/dbx"
	"github.com/Tarcisio20/meu-gerente/internal/server/repositories/audit"
	"github.com/Tarcisio20/meu-gerente/internal/server/repositories/passwordresets"
	"github.com/Tarcisio20/meu-gerente/internal/server/repositories/refreshtokens"
	"github.com/Tarcisio20/meu-gerente/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or an open
// transaction, so services can decide per operation which one to use.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Audit(db dbx.DBTX) audit.Repository
	PasswordResets(db dbx.DBTX) passwordresets.Repository
}
