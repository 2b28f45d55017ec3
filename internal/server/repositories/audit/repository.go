// Package audit persists audit_logs rows. The table is append-only: the
// repository offers no update or delete and the schema rejects both.
package audit

import (
	"context"

	"github.com/Tarcisio20/meu-gerente/internal/server/models"
)

type Repository interface {
	// Append inserts one entry and returns the generated row id.
	Append(ctx context.Context, entry *models.AuditEntry) (int64, error)

	// ListSince returns up to limit rows with id > afterID in id order.
	ListSince(ctx context.Context, afterID int64, limit int) ([]models.AuditRecord, error)
}
