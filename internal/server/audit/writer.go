// Package audit records security-relevant actions and ships them to
// object storage for retention.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/dbx"
	"github.com/Tarcisio20/meu-gerente/internal/logging"
	"github.com/Tarcisio20/meu-gerente/internal/server/metrics"
	"github.com/Tarcisio20/meu-gerente/internal/server/models"
	auditrepo "github.com/Tarcisio20/meu-gerente/internal/server/repositories/audit"
)

// RepoFactory binds the audit repository to a connection or transaction.
type RepoFactory func(db dbx.DBTX) auditrepo.Repository

// Writer appends audit entries. It makes one attempt per entry; failures
// reach the caller wrapped in common.ErrStorageUnavailable.
type Writer struct {
	repos   RepoFactory
	timeout time.Duration
	log     logging.Logger
}

func NewWriter(repos RepoFactory, timeout time.Duration, log logging.Logger) *Writer {
	return &Writer{repos: repos, timeout: timeout, log: log.With("module", "audit")}
}

// Record writes entry through db, which is normally the caller's open
// transaction so the entry commits or rolls back with the audited change.
func (w *Writer) Record(ctx context.Context, db dbx.DBTX, entry models.AuditEntry) error {
	if !entry.EntityType.Valid() || !entry.Action.Valid() {
		return fmt.Errorf("%w: unknown audit kind %s/%s", common.ErrInvalidInput, entry.EntityType, entry.Action)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	id, err := w.repos(db).Append(ctx, &entry)
	metrics.AuditWritesTotal.WithLabelValues(string(entry.EntityType), string(entry.Action), metrics.Outcome(err)).Inc()
	if err != nil {
		w.log.Error(ctx, "audit write failed",
			"entity", entry.EntityType, "action", entry.Action, "user_id", entry.UserID, "error", err)
		return fmt.Errorf("%w: audit write: %v", common.ErrStorageUnavailable, err)
	}

	w.log.Debug(ctx, "audit recorded", "id", id, "entity", entry.EntityType, "action", entry.Action)
	return nil
}
