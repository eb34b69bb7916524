package worksheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-kivik/kivik/v4"

	"github.com/simonexmachina/the-work/internal/common"
	"github.com/simonexmachina/the-work/internal/models"
	"github.com/simonexmachina/the-work/internal/timex"
)

const (
	docPrefix      = "worksheet:"
	ownerIndexName = "owner-index"
	findPageSize   = 200
	maxPutAttempts = 5
)

var errTooManyConflicts = errors.New("too many update conflicts")

// CouchRepository stores each worksheet as one CouchDB document. The merge
// is done client side with a read-modify-write guarded by the revision.
type CouchRepository struct {
	db *kivik.DB
}

func NewCouchRepository(client *kivik.Client, dbName string) *CouchRepository {
	return &CouchRepository{db: client.DB(dbName)}
}

// EnsureDatabase creates the database and the owner index if missing.
func EnsureDatabase(ctx context.Context, client *kivik.Client, dbName string) error {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return fmt.Errorf("check database %s: %w", dbName, err)
	}
	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return fmt.Errorf("create database %s: %w", dbName, err)
		}
	}

	index := map[string]any{"fields": []string{models.KeyOwnerID}}
	if err := client.DB(dbName).CreateIndex(ctx, "", ownerIndexName, index); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

func docID(id string) string {
	return docPrefix + id
}

// get returns the stored document and its revision, or a nil document when
// it does not exist.
func (r *CouchRepository) get(ctx context.Context, id string) (map[string]any, string, error) {
	var doc map[string]any
	if err := r.db.Get(ctx, id).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to get worksheet: %w", err)
	}
	rev, _ := doc["_rev"].(string)
	return doc, rev, nil
}

func (r *CouchRepository) Save(ctx context.Context, w *models.Worksheet) error {
	id := docID(w.ID)

	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		existing, rev, err := r.get(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			if owner, _ := existing[models.KeyOwnerID].(string); owner != w.OwnerID {
				return fmt.Errorf("%w: %s", common.ErrOwnerConflict, w.ID)
			}
		}

		doc := merge(existing, w.ToMap())
		if rev != "" {
			doc["_rev"] = rev
		}

		_, err = r.db.Put(ctx, id, doc)
		if kivik.HTTPStatus(err) == http.StatusConflict {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to save worksheet: %w", err)
		}
		return nil
	}
	return fmt.Errorf("save %s: %w", w.ID, errTooManyConflicts)
}

// merge keeps the application fields of stored that incoming does not
// carry. Sync keys always come from incoming.
func merge(stored, incoming map[string]any) map[string]any {
	doc := make(map[string]any, len(stored)+len(incoming))
	for k, v := range stored {
		if strings.HasPrefix(k, "_") || isSyncKey(k) {
			continue
		}
		doc[k] = v
	}
	for k, v := range incoming {
		doc[k] = v
	}
	return doc
}

func isSyncKey(k string) bool {
	switch k {
	case models.KeyID, models.KeyOwnerID, models.KeyUpdatedAt,
		models.KeyDeleted, models.KeyDeletedAt, models.KeySyncedAt:
		return true
	}
	return false
}

func (r *CouchRepository) ListByOwner(ctx context.Context, ownerID string, includeDeleted bool) ([]models.Worksheet, error) {
	selector := map[string]any{models.KeyOwnerID: ownerID}
	if !includeDeleted {
		selector[models.KeyDeleted] = false
	}

	result := make([]models.Worksheet, 0)
	bookmark := ""
	for {
		query := map[string]any{
			"selector": selector,
			"limit":    findPageSize,
		}
		if bookmark != "" {
			query["bookmark"] = bookmark
		}

		page, next, err := r.findPage(ctx, query)
		if err != nil {
			return nil, err
		}
		result = append(result, page...)
		if len(page) < findPageSize || next == "" || next == bookmark {
			break
		}
		bookmark = next
	}

	slices.SortStableFunc(result, func(a, b models.Worksheet) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return result, nil
}

func (r *CouchRepository) findPage(ctx context.Context, query map[string]any) ([]models.Worksheet, string, error) {
	rows := r.db.Find(ctx, query)
	defer rows.Close()

	var page []models.Worksheet
	for rows.Next() {
		var doc map[string]any
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, "", fmt.Errorf("failed to scan worksheet: %w", err)
		}
		delete(doc, "_id")
		delete(doc, "_rev")
		w, err := models.FromMap(doc)
		if err != nil {
			return nil, "", err
		}
		page = append(page, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to list worksheets: %w", err)
	}

	meta, err := rows.Metadata()
	if err != nil {
		return page, "", nil
	}
	return page, meta.Bookmark, nil
}

func (r *CouchRepository) SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error {
	key := docID(id)
	stamp := timex.FormatTimestamp(at)

	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		doc, _, err := r.get(ctx, key)
		if err != nil {
			return err
		}
		if owner, _ := doc[models.KeyOwnerID].(string); doc == nil || owner != ownerID {
			return fmt.Errorf("%w: worksheet %s", common.ErrorNotFound, id)
		}

		doc[models.KeyDeleted] = true
		doc[models.KeyDeletedAt] = stamp
		doc[models.KeyUpdatedAt] = stamp
		doc[models.KeySyncedAt] = stamp

		_, err = r.db.Put(ctx, key, doc)
		if kivik.HTTPStatus(err) == http.StatusConflict {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to delete worksheet: %w", err)
		}
		return nil
	}
	return fmt.Errorf("delete %s: %w", id, errTooManyConflicts)
}
