package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/simonexmachina/the-work/internal/common"
	"github.com/simonexmachina/the-work/internal/models"
	"github.com/simonexmachina/the-work/internal/rpc"
	"github.com/simonexmachina/the-work/internal/server/hub"
)

// toStatus maps service errors onto gRPC codes. Unknown errors are logged
// and reported as Internal without detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrorValidation), errors.Is(err, rpc.ErrMalformedMessage):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, common.ErrRefreshTokenExpired.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrOwnerConflict):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, hub.ErrTooManySubscribers):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error(ctx, "request failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}

func (s *GRPCServer) RegisterUser(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	creds, err := rpc.CredentialsFromStruct(req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	user, err := s.users.Register(ctx, creds.Username, creds.Salt, creds.Verifier)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "username", creds.Username, "id", user.ID)
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) GetSalt(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	salt, err := s.users.GetSalt(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return wrapperspb.Bytes(salt), nil
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	creds, err := rpc.CredentialsFromStruct(req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	tokens, err := s.users.Login(ctx, creds.Username, creds.Verifier)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return s.tokenPair(ctx, tokens.AccessToken, tokens.RefreshToken, tokens.UserID)
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	tokens, err := s.users.RefreshToken(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.tokenPair(ctx, tokens.AccessToken, tokens.RefreshToken, tokens.UserID)
}

func (s *GRPCServer) tokenPair(ctx context.Context, access, refresh, userID string) (*structpb.Struct, error) {
	resp, err := rpc.TokenPair{AccessToken: access, RefreshToken: refresh, UserID: userID}.ToStruct()
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("OK"), nil
}

func (s *GRPCServer) FetchAll(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.ListValue, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.worksheets.FetchAll(ctx, userID, req.GetValue())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp, err := rpc.WorksheetsToList(list)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) Save(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	w, err := rpc.WorksheetFromStruct(req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	id, err := s.worksheets.Save(ctx, userID, w)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return wrapperspb.String(id), nil
}

func (s *GRPCServer) SoftDelete(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.worksheets.SoftDelete(ctx, userID, req.GetValue()); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

// Subscribe streams the caller's snapshot until the client goes away.
func (s *GRPCServer) Subscribe(req *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.ListValue]) error {
	ctx := stream.Context()
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return err
	}

	s.logger.Debug(ctx, "subscription opened", "user", userID)
	defer s.logger.Debug(ctx, "subscription closed", "user", userID)

	err = s.worksheets.Watch(ctx, userID, func(ws []models.Worksheet) error {
		list, err := rpc.WorksheetsToList(ws)
		if err != nil {
			return err
		}
		return stream.Send(list)
	})
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return s.toStatus(ctx, err)
}

func (s *GRPCServer) Export(ctx context.Context, req *emptypb.Empty) (*wrapperspb.StringValue, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	url, err := s.exports.Export(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return wrapperspb.String(url), nil
}
