package worksheets

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/simonexmachina/the-work/internal/common"
	"github.com/simonexmachina/the-work/internal/dbx"
	"github.com/simonexmachina/the-work/internal/models"
)

// PostgresRepository keeps the application fields in a jsonb column, so
// the merge is a single `||` in the upsert.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Save(ctx context.Context, w *models.Worksheet) error {
	fields, err := json.Marshal(nonNil(w.Fields))
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	query := `
		INSERT INTO worksheets (id, owner_id, updated_at, deleted, deleted_at, synced_at, fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		ON CONFLICT (id)
		DO UPDATE SET
			updated_at = EXCLUDED.updated_at,
			deleted = EXCLUDED.deleted,
			deleted_at = EXCLUDED.deleted_at,
			synced_at = EXCLUDED.synced_at,
			fields = worksheets.fields || EXCLUDED.fields
			WHERE worksheets.owner_id = EXCLUDED.owner_id;
	`
	res, err := r.db.ExecContext(ctx, query,
		w.ID, w.OwnerID, w.UpdatedAt, w.Deleted, nullTime(w.DeletedAt), nullTime(w.SyncedAt), string(fields))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("%w: %s", common.ErrOwnerConflict, w.ID)
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, includeDeleted bool) ([]models.Worksheet, error) {
	query := `SELECT id, owner_id, updated_at, deleted, deleted_at, synced_at, fields FROM worksheets
		WHERE owner_id = $1 AND ($2 OR NOT deleted)
		ORDER BY updated_at DESC
		`
	rows, err := r.db.QueryContext(ctx, query, ownerID, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to select worksheets: %w", err)
	}
	defer rows.Close()

	result := make([]models.Worksheet, 0)
	for rows.Next() {
		var (
			w                   models.Worksheet
			deletedAt, syncedAt sql.NullTime
			fields              []byte
		)
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.UpdatedAt, &w.Deleted, &deletedAt, &syncedAt, &fields); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(fields, &w.Fields); err != nil {
			return nil, fmt.Errorf("worksheet %s: decode fields: %w", w.ID, err)
		}
		w.UpdatedAt = w.UpdatedAt.UTC()
		w.DeletedAt = timePtr(deletedAt)
		w.SyncedAt = timePtr(syncedAt)
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error {
	query := `
		UPDATE worksheets
		SET deleted = TRUE, deleted_at = $3, updated_at = $3, synced_at = $3
		WHERE id = $1 AND owner_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, ownerID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: worksheet %s", common.ErrorNotFound, id)
	}
	return nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}
