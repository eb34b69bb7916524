package syncengine

import (
	"context"

	"github.com/simonexmachina/the-work/internal/client/identity"
	"github.com/simonexmachina/the-work/internal/models"
)

// LocalStore is the per-device record store.
type LocalStore interface {
	GetAll(ctx context.Context) ([]models.Worksheet, error)
	// GetByID returns nil, nil when the record does not exist.
	GetByID(ctx context.Context, id string) (*models.Worksheet, error)
	Save(ctx context.Context, w *models.Worksheet) error
	Delete(ctx context.Context, id string) error
}

// RemoteStore is the shared store keyed by owner.
type RemoteStore interface {
	// FetchAllForOwner returns every record of ownerID, tombstones included
	// when includeDeleted is set.
	FetchAllForOwner(ctx context.Context, ownerID string, includeDeleted bool) ([]models.Worksheet, error)
	// Save upserts w with merge semantics and returns its id.
	Save(ctx context.Context, ownerID string, w *models.Worksheet) (string, error)
	SoftDelete(ctx context.Context, ownerID, id string) error
	// Subscribe pushes the full record set of ownerID, tombstones included,
	// on every remote change. onError is called once if the subscription
	// breaks. The returned function cancels the subscription.
	Subscribe(ctx context.Context, ownerID string, onSnapshot func([]models.Worksheet), onError func(error)) (func(), error)
}

// Identity reports who is signed in and announces sign-in/sign-out.
type Identity interface {
	IsAuthenticated() bool
	UserID() string
	// Token returns the access token. With forceRefresh the session is
	// renewed first; the engine does this once before giving up on an
	// upload rejected as unauthenticated.
	Token(ctx context.Context, forceRefresh bool) (string, error)
	AddListener(fn identity.Listener) func()
}
