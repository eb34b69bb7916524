// Package worksheets is the client's local record store.
//
// Records are kept whole, tombstones included, so the sync engine can see
// local deletes that have not reached the remote store yet. Application
// fields are stored as a JSON document next to the sync columns.
package worksheets

import (
	"context"
	"errors"

	"github.com/simonexmachina/the-work/internal/models"
)

var ErrNotFound = errors.New("worksheet not found")

type Repository interface {
	// GetAll returns every record, tombstones included.
	GetAll(ctx context.Context) ([]models.Worksheet, error)
	// ListLive returns records that are not tombstoned, newest first.
	ListLive(ctx context.Context) ([]models.Worksheet, error)
	// GetByID returns nil, nil when the record does not exist.
	GetByID(ctx context.Context, id string) (*models.Worksheet, error)
	// Save inserts or replaces the record.
	Save(ctx context.Context, w *models.Worksheet) error
	// Delete removes the record row. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
}
