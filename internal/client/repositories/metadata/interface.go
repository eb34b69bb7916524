// Package metadata stores small key/value settings of the client, such as
// the cached credentials used for offline login and the persisted session.
package metadata

import (
	"context"
)

// Keys used by the client.
const (
	KeyUsername     = "username"
	KeySalt         = "salt"
	KeyVerifier     = "verifier"
	KeyUserID       = "user_id"
	KeyRefreshToken = "refresh_token"
)

type Repository interface {
	// Get returns nil, nil when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany writes all pairs; callers wrap it in a transaction when the
	// pairs must land together.
	SetMany(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
