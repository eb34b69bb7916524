package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/simonexmachina/the-work/internal/common"
	"github.com/simonexmachina/the-work/internal/models"
	"github.com/simonexmachina/the-work/internal/rpc"
)

// checkOwner rejects calls made on behalf of a user other than the one the
// session belongs to. The server derives the owner from the access token.
func (s *GRPCClient) checkOwner(ownerID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.userID == "" {
		return ErrUnauthorized
	}
	if ownerID != s.userID {
		return fmt.Errorf("%w: session user %s, record owner %s", common.ErrOwnerConflict, s.userID, ownerID)
	}
	return nil
}

func (s *GRPCClient) FetchAllForOwner(ctx context.Context, ownerID string, includeDeleted bool) ([]models.Worksheet, error) {
	if err := s.checkOwner(ownerID); err != nil {
		return nil, err
	}

	resp, err := s.client.FetchAll(ctx, wrapperspb.Bool(includeDeleted))
	if err != nil {
		return nil, s.mapError(err)
	}
	return rpc.WorksheetsFromList(resp)
}

func (s *GRPCClient) Save(ctx context.Context, ownerID string, w *models.Worksheet) (string, error) {
	if err := s.checkOwner(ownerID); err != nil {
		return "", err
	}

	rec := w.Clone()
	rec.OwnerID = ownerID
	req, err := rpc.WorksheetToStruct(rec)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Save(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.GetValue(), nil
}

func (s *GRPCClient) SoftDelete(ctx context.Context, ownerID, id string) error {
	if err := s.checkOwner(ownerID); err != nil {
		return err
	}

	if _, err := s.client.SoftDelete(ctx, wrapperspb.String(id)); err != nil {
		return s.mapError(err)
	}
	return nil
}

// Subscribe opens the server stream and delivers every snapshot to
// onSnapshot from a dedicated goroutine. An expired access token is
// refreshed once and the stream reopened; any other failure ends the
// subscription with a single onError call. The returned function cancels
// the stream and may be called from within the callbacks.
func (s *GRPCClient) Subscribe(ctx context.Context, ownerID string, onSnapshot func([]models.Worksheet), onError func(error)) (func(), error) {
	if err := s.checkOwner(ownerID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := s.client.Subscribe(ctx, &emptypb.Empty{})
	if err != nil {
		cancel()
		return nil, s.mapError(err)
	}

	go func() {
		refreshed := false
		for {
			list, err := stream.Recv()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !refreshed && isTokenExpired(err) {
					refreshed = true
					if rerr := s.Refresh(ctx); rerr == nil {
						if stream, err = s.client.Subscribe(ctx, &emptypb.Empty{}); err == nil {
							continue
						}
					}
				}
				if errors.Is(err, io.EOF) {
					err = fmt.Errorf("%w: subscription closed by server", ErrUnavailable)
				} else {
					err = s.mapError(err)
				}
				onError(err)
				return
			}
			refreshed = false

			ws, err := rpc.WorksheetsFromList(list)
			if err != nil {
				cancel()
				onError(err)
				return
			}
			onSnapshot(ws)
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}
