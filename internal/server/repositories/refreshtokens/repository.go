// Package refreshtokens stores the single-use refresh tokens issued at
// login and on every refresh.
package refreshtokens

import (
	"context"
	"time"

	"github.com/simonexmachina/the-work/internal/server/models"
)

type Repository interface {
	// Create stores token for userID, valid for validity from now.
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Consume deletes token and returns what it was issued for, so a token
	// can be spent only once. Absent tokens yield common.ErrorNotFound.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)

	// DeleteExpired removes tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
