package worksheets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/simonexmachina/the-work/internal/dbx"
	"github.com/simonexmachina/the-work/internal/models"
	"github.com/simonexmachina/the-work/internal/timex"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, owner_id, updated_at, deleted, deleted_at, synced_at, fields`

func (r *SQLiteRepository) Save(ctx context.Context, w *models.Worksheet) error {
	if w.ID == "" {
		return errors.New("worksheet id is empty")
	}

	fields := w.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	doc, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields of %s: %w", w.ID, err)
	}

	query := `INSERT INTO worksheets (id, owner_id, updated_at, deleted, deleted_at, synced_at, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			deleted_at = excluded.deleted_at,
			synced_at = excluded.synced_at,
			fields = excluded.fields`

	_, err = r.db.ExecContext(ctx, query,
		w.ID,
		w.OwnerID,
		timex.FormatTimestamp(w.UpdatedAt),
		w.Deleted,
		timex.FormatOptional(w.DeletedAt),
		timex.FormatOptional(w.SyncedAt),
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert worksheet: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Worksheet, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM worksheets ORDER BY id`)
}

// ListLive sorts in Go: RFC 3339 strings with variable fractional seconds
// do not order lexically.
func (r *SQLiteRepository) ListLive(ctx context.Context) ([]models.Worksheet, error) {
	ws, err := r.query(ctx, `SELECT `+selectColumns+` FROM worksheets WHERE deleted = 0`)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ws, func(i, j int) bool {
		if !ws[i].UpdatedAt.Equal(ws[j].UpdatedAt) {
			return ws[i].UpdatedAt.After(ws[j].UpdatedAt)
		}
		return ws[i].ID < ws[j].ID
	})
	return ws, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Worksheet, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM worksheets WHERE id = ?`, id)

	w, err := scanWorksheet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worksheet %s: %w", id, err)
	}
	return w, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM worksheets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete worksheet %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.Worksheet, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select worksheets: %w", err)
	}
	defer rows.Close()

	var result []models.Worksheet
	for rows.Next() {
		w, err := scanWorksheet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worksheet row: %w", err)
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate worksheet rows: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorksheet(s scanner) (*models.Worksheet, error) {
	var (
		w                   models.Worksheet
		updatedAt, doc      string
		deletedAt, syncedAt *string
	)
	if err := s.Scan(&w.ID, &w.OwnerID, &updatedAt, &w.Deleted, &deletedAt, &syncedAt, &doc); err != nil {
		return nil, err
	}

	var err error
	if w.UpdatedAt, err = timex.ParseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("updated_at of %s: %w", w.ID, err)
	}
	if w.DeletedAt, err = timex.ParseOptional(deletedAt); err != nil {
		return nil, fmt.Errorf("deleted_at of %s: %w", w.ID, err)
	}
	if w.SyncedAt, err = timex.ParseOptional(syncedAt); err != nil {
		return nil, fmt.Errorf("synced_at of %s: %w", w.ID, err)
	}

	w.Fields = map[string]any{}
	if doc != "" {
		if err := json.Unmarshal([]byte(doc), &w.Fields); err != nil {
			return nil, fmt.Errorf("fields of %s: %w", w.ID, err)
		}
	}
	return &w, nil
}
