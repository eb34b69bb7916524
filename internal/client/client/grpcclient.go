package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/simonexmachina/the-work/internal/common"
	"github.com/simonexmachina/the-work/internal/rpc"
)

// serviceClient is the subset of rpc.WorksheetServiceClient used here.
type serviceClient interface {
	RegisterUser(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GetSalt(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	RefreshToken(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	FetchAll(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Save(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	SoftDelete(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Subscribe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.ListValue], error)
	Export(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      serviceClient
	refreshes   singleflight.Group

	mu           sync.RWMutex
	userID       string
	accessToken  string
	refreshToken string
	onRefreshed  func(rpc.TokenPair)
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

// ensureAccessToken obtains an access token for a session restored from a
// persisted refresh token.
func (s *GRPCClient) ensureAccessToken(ctx context.Context) error {
	if s.AccessToken() != "" || s.RefreshToken() == "" {
		return nil
	}
	return s.Refresh(ctx)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if rpc.PublicMethods[method] {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	if err := s.ensureAccessToken(ctx); err != nil {
		return err
	}

	err := invoker(withAccessToken(ctx, s.AccessToken()), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) {
		return err
	}
	if s.RefreshToken() == "" {
		return err
	}

	if rerr := s.Refresh(ctx); rerr != nil {
		return rerr
	}

	// tokens refreshed, retry with the new access token
	return invoker(withAccessToken(ctx, s.AccessToken()), method, req, reply, cc, opts...)
}

func (s *GRPCClient) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	if err := s.ensureAccessToken(ctx); err != nil {
		return nil, err
	}
	return streamer(withAccessToken(ctx, s.AccessToken()), desc, cc, method, opts...)
}

func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	if err := c.InitGRPCClient(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStreamInterceptor(s.streamAccessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = rpc.NewWorksheetServiceClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *GRPCClient) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

func (s *GRPCClient) RestoreSession(userID, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.accessToken = ""
	s.refreshToken = refreshToken
}

func (s *GRPCClient) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	s.accessToken = ""
	s.refreshToken = ""
}

func (s *GRPCClient) OnSessionRefreshed(fn func(rpc.TokenPair)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefreshed = fn
}

func (s *GRPCClient) setSession(p rpc.TokenPair) {
	s.mu.Lock()
	s.accessToken = p.AccessToken
	s.refreshToken = p.RefreshToken
	if p.UserID != "" {
		s.userID = p.UserID
	}
	fn := s.onRefreshed
	s.mu.Unlock()

	if fn != nil {
		fn(p)
	}
}

// Refresh exchanges the refresh token for a new token pair. Concurrent
// callers share one round trip, since the server rotates the refresh token
// on every use.
func (s *GRPCClient) Refresh(ctx context.Context) error {
	_, err, _ := s.refreshes.Do("refresh", func() (any, error) {
		rt := s.RefreshToken()
		if rt == "" {
			return nil, ErrUnauthorized
		}

		resp, err := s.client.RefreshToken(ctx, wrapperspb.String(rt))
		if err != nil {
			return nil, s.mapError(err)
		}
		pair, err := rpc.TokenPairFromStruct(resp)
		if err != nil {
			return nil, err
		}
		s.setSession(pair)
		return nil, nil
	})
	return err
}

func (s *GRPCClient) Register(ctx context.Context, userName string, salt []byte, verifier []byte) error {
	req, err := rpc.Credentials{Username: userName, Salt: salt, Verifier: verifier}.ToStruct()
	if err != nil {
		return err
	}

	if _, err := s.client.RegisterUser(ctx, req); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) GetSalt(ctx context.Context, userName string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 12*time.Second)
	defer cancel()

	resp, err := s.client.GetSalt(ctx, wrapperspb.String(userName))
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.GetValue(), nil
}

func (s *GRPCClient) Login(ctx context.Context, userName string, verifier []byte) (string, error) {
	req, err := rpc.Credentials{Username: userName, Verifier: verifier}.ToStruct()
	if err != nil {
		return "", err
	}

	resp, err := s.client.Login(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}

	pair, err := rpc.TokenPairFromStruct(resp)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.userID = pair.UserID
	s.accessToken = pair.AccessToken
	s.refreshToken = pair.RefreshToken
	s.mu.Unlock()

	return pair.UserID, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &emptypb.Empty{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.GetValue() != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Export(ctx context.Context) (string, error) {
	resp, err := s.client.Export(ctx, &emptypb.Empty{})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.GetValue(), nil
}

// mapError converts transport failures into the package sentinels while
// keeping the server message.
func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrorNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrorValidation, st.Message())
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", common.ErrorAlreadyExists, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
