package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/simonexmachina/the-work/internal/common"
	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/models"
	"github.com/simonexmachina/the-work/internal/server/repositories/worksheets"
	"github.com/simonexmachina/the-work/internal/timex"
)

// ChangeFeed tells live subscriptions that an owner's worksheets changed.
type ChangeFeed interface {
	Notify(ownerID string)
	Subscribe(ownerID string) (<-chan struct{}, func(), error)
}

type saveRequest struct {
	ID      string `validate:"required,uuid"`
	OwnerID string `validate:"required"`
}

type WorksheetService struct {
	repo     worksheets.Repository
	feed     ChangeFeed
	validate *validator.Validate
	logger   logging.Logger
	now      func() time.Time
}

func NewWorksheetService(repo worksheets.Repository, feed ChangeFeed, l logging.Logger) *WorksheetService {
	return &WorksheetService{
		repo:     repo,
		feed:     feed,
		validate: validator.New(),
		logger:   l.With("module", "worksheet_service"),
		now:      time.Now,
	}
}

func (s *WorksheetService) FetchAll(ctx context.Context, ownerID string, includeDeleted bool) ([]models.Worksheet, error) {
	return s.repo.ListByOwner(ctx, ownerID, includeDeleted)
}

// Save stores w for ownerID and returns its id. The stored document keeps
// the fields w does not carry. UpdatedAt is the client's ordering signal
// and is only defaulted when missing; SyncedAt is always set here.
func (s *WorksheetService) Save(ctx context.Context, ownerID string, w *models.Worksheet) (string, error) {
	if err := s.validate.Struct(saveRequest{ID: w.ID, OwnerID: ownerID}); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	now := timex.Stamp(s.now())
	rec := w.Clone()
	rec.OwnerID = ownerID
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	} else {
		rec.UpdatedAt = timex.Stamp(rec.UpdatedAt)
	}
	if rec.Deleted && rec.DeletedAt == nil {
		at := rec.UpdatedAt
		rec.DeletedAt = &at
	}
	if !rec.Deleted {
		rec.DeletedAt = nil
	}
	rec.SyncedAt = &now

	if err := s.repo.Save(ctx, rec); err != nil {
		return "", err
	}

	s.logger.Debug(ctx, "worksheet saved", "id", rec.ID, "owner", ownerID, "deleted", rec.Deleted)
	s.feed.Notify(ownerID)
	return rec.ID, nil
}

func (s *WorksheetService) SoftDelete(ctx context.Context, ownerID, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", common.ErrorValidation)
	}
	if err := s.repo.SoftDelete(ctx, ownerID, id, timex.Stamp(s.now())); err != nil {
		return err
	}

	s.logger.Debug(ctx, "worksheet deleted", "id", id, "owner", ownerID)
	s.feed.Notify(ownerID)
	return nil
}

// Watch calls send with the owner's full snapshot, tombstones included,
// once immediately and again after every change. It returns when ctx is
// done or send fails.
func (s *WorksheetService) Watch(ctx context.Context, ownerID string, send func([]models.Worksheet) error) error {
	changes, cancel, err := s.feed.Subscribe(ownerID)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		snapshot, err := s.repo.ListByOwner(ctx, ownerID, true)
		if err != nil {
			return err
		}
		if err := send(snapshot); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
		}
	}
}
