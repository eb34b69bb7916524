// Package services contains the journal client's application services.
// They write to the local store first and hand each write to the sync
// engine; a failed upload never fails the local write.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/simonexmachina/the-work/internal/client/repositories/worksheets"
	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/models"
	"github.com/simonexmachina/the-work/internal/timex"
)

var ErrEmptyWorksheet = errors.New("worksheet has no fields")

// Syncer owns local writes and pushes each one to the remote store.
type Syncer interface {
	SaveLocal(ctx context.Context, w *models.Worksheet) error
	SyncRecordToCloud(ctx context.Context, w *models.Worksheet) error
}

type WorksheetService struct {
	repo   worksheets.Repository
	sync   Syncer
	logger logging.Logger
	now    func() time.Time
}

func NewWorksheetService(repo worksheets.Repository, sync Syncer, logger logging.Logger) *WorksheetService {
	return &WorksheetService{
		repo:   repo,
		sync:   sync,
		logger: logger.With("module", "worksheets"),
		now:    time.Now,
	}
}

// Create stores a new worksheet under a fresh id.
func (s *WorksheetService) Create(ctx context.Context, fields map[string]any) (*models.Worksheet, error) {
	if len(fields) == 0 {
		return nil, ErrEmptyWorksheet
	}

	w := &models.Worksheet{
		ID:        uuid.NewString(),
		UpdatedAt: timex.Stamp(s.now()),
		Fields:    make(map[string]any, len(fields)),
	}
	for k, v := range fields {
		w.Fields[k] = v
	}

	if err := s.sync.SaveLocal(ctx, w); err != nil {
		return nil, fmt.Errorf("saving error: %w", err)
	}
	s.push(ctx, w)
	return w, nil
}

// Update merges fields into a live worksheet. A nil value removes the field.
func (s *WorksheetService) Update(ctx context.Context, id string, fields map[string]any) (*models.Worksheet, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if w.Fields == nil {
		w.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if v == nil {
			delete(w.Fields, k)
			continue
		}
		w.Fields[k] = v
	}
	w.Touch(s.now())

	if err := s.sync.SaveLocal(ctx, w); err != nil {
		return nil, fmt.Errorf("saving error: %w", err)
	}
	s.push(ctx, w)
	return w, nil
}

// Delete turns the worksheet into a tombstone. The row is kept until the
// deletion reaches the remote store so other devices learn about it.
func (s *WorksheetService) Delete(ctx context.Context, id string) error {
	w, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	w.MarkDeleted(s.now())
	if err := s.sync.SaveLocal(ctx, w); err != nil {
		return fmt.Errorf("saving error: %w", err)
	}
	s.push(ctx, w)
	return nil
}

// Get returns a live worksheet or worksheets.ErrNotFound.
func (s *WorksheetService) Get(ctx context.Context, id string) (*models.Worksheet, error) {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading worksheet: %w", err)
	}
	if w == nil || w.Deleted {
		return nil, worksheets.ErrNotFound
	}
	return w, nil
}

// List returns live worksheets, newest first.
func (s *WorksheetService) List(ctx context.Context) ([]models.Worksheet, error) {
	ws, err := s.repo.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("error: %w", err)
	}
	return ws, nil
}

func (s *WorksheetService) push(ctx context.Context, w *models.Worksheet) {
	if err := s.sync.SyncRecordToCloud(ctx, w.Clone()); err != nil {
		s.logger.Warn(ctx, "worksheet saved locally, upload deferred", "id", w.ID, "error", err)
	}
}
