package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/dbx"
	"github.com/Tarcisio20/meu-gerente/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, entry *models.AuditEntry) (int64, error) {
	if !entry.EntityType.Valid() || !entry.Action.Valid() {
		return 0, fmt.Errorf("%w: entity %q action %q", common.ErrInvalidInput, entry.EntityType, entry.Action)
	}

	oldValues, err := toJSON(entry.OldValues)
	if err != nil {
		return 0, err
	}
	newValues, err := toJSON(entry.NewValues)
	if err != nil {
		return 0, err
	}
	metadata, err := toJSON(entry.Metadata)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO audit_logs (user_id, entity_type, entity_id, action, old_values, new_values, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err = r.db.QueryRowContext(ctx, query,
		nullString(entry.UserID),
		string(entry.EntityType),
		nullString(entry.EntityID),
		string(entry.Action),
		oldValues, newValues, metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) ListSince(ctx context.Context, afterID int64, limit int) ([]models.AuditRecord, error) {
	query := `
		SELECT id, user_id, entity_type, entity_id, action, old_values, new_values, metadata, created_at
		FROM audit_logs
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var (
			rec                models.AuditRecord
			userID, entityID   sql.NullString
			oldV, newV, metaV  []byte
			entityType, action string
		)
		if err := rows.Scan(&rec.ID, &userID, &entityType, &entityID, &action, &oldV, &newV, &metaV, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		rec.EntityType = models.EntityType(entityType)
		rec.Action = models.Action(action)
		if userID.Valid {
			rec.UserID = &userID.String
		}
		if entityID.Valid {
			rec.EntityID = &entityID.String
		}
		rec.OldValues = oldV
		rec.NewValues = newV
		rec.Metadata = metaV
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// toJSON returns nil for a nil snapshot so the column stays NULL.
func toJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit snapshot: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
