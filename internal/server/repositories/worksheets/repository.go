// Package worksheets stores worksheet documents per owner. Two backends are
// provided: PostgreSQL with a jsonb payload and CouchDB.
package worksheets

import (
	"context"
	"time"

	"github.com/simonexmachina/the-work/internal/models"
)

type Repository interface {
	// ListByOwner returns the owner's worksheets, newest first. Tombstones
	// are included only when includeDeleted is set.
	ListByOwner(ctx context.Context, ownerID string, includeDeleted bool) ([]models.Worksheet, error)

	// Save upserts w with merge semantics: fields already stored and absent
	// from w are kept, the sync keys are taken from w. A w.ID owned by
	// someone else yields common.ErrOwnerConflict.
	Save(ctx context.Context, w *models.Worksheet) error

	// SoftDelete turns the worksheet into a tombstone stamped at at.
	// Worksheets that do not exist for ownerID yield common.ErrorNotFound.
	SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error
}
