package client

import (
	"context"

	"github.com/simonexmachina/the-work/internal/rpc"
)

// Client is the account and session side of the remote API. The record
// side (FetchAllForOwner, Save, SoftDelete, Subscribe) is implemented by
// GRPCClient directly and consumed by the sync engine.
type Client interface {
	Close() error
	Register(ctx context.Context, username string, salt []byte, verifier []byte) error
	GetSalt(ctx context.Context, username string) ([]byte, error)
	// Login returns the id of the authenticated user.
	Login(ctx context.Context, username string, verifier []byte) (string, error)
	Refresh(ctx context.Context) error
	Ping(ctx context.Context) error
	Export(ctx context.Context) (string, error)

	AccessToken() string
	RefreshToken() string
	// RestoreSession installs a refresh token persisted by a previous run.
	RestoreSession(userID, refreshToken string)
	ClearSession()
	// OnSessionRefreshed registers fn to run whenever tokens are rotated.
	OnSessionRefreshed(fn func(rpc.TokenPair))
}
