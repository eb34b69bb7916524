package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/simonexmachina/the-work/internal/common"
	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/models"
	"github.com/simonexmachina/the-work/internal/rpc"
	"github.com/simonexmachina/the-work/internal/server/hub"
	smodels "github.com/simonexmachina/the-work/internal/server/models"
	"github.com/simonexmachina/the-work/internal/server/services"
)

func newServer(u userSvc, w worksheetSvc, e exportSvc) *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", logging.NewNopLogger(), u, w, e, testSecret)
}

func authed(userID string) context.Context {
	return context.WithValue(context.Background(), userIDKey, userID)
}

func credentials(t *testing.T, c rpc.Credentials) *structpb.Struct {
	t.Helper()
	s, err := c.ToStruct()
	require.NoError(t, err)
	return s
}

func TestPing_OK(t *testing.T) {
	s := newServer(&fakeUser{}, &fakeWorksheets{}, &fakeExport{})
	resp, err := s.Ping(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	require.Equal(t, "OK", resp.GetValue())
}

func TestRegisterUser(t *testing.T) {
	u := &fakeUser{regResp: &smodels.User{ID: "42"}}
	s := newServer(u, &fakeWorksheets{}, &fakeExport{})

	_, err := s.RegisterUser(context.Background(), credentials(t, rpc.Credentials{Username: "u", Salt: []byte("s"), Verifier: []byte("v")}))
	require.NoError(t, err)
	require.Equal(t, []string{"u", "s", "v"}, u.regArgs)

	u.regErr = common.ErrorAlreadyExists
	_, err = s.RegisterUser(context.Background(), credentials(t, rpc.Credentials{Username: "u", Salt: []byte("s"), Verifier: []byte("v")}))
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	u.regErr = errors.New("db down")
	_, err = s.RegisterUser(context.Background(), credentials(t, rpc.Credentials{Username: "u", Salt: []byte("s"), Verifier: []byte("v")}))
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, "internal error", status.Convert(err).Message())

	_, err = s.RegisterUser(context.Background(), &structpb.Struct{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetSalt(t *testing.T) {
	u := &fakeUser{saltResp: []byte("SALT123")}
	s := newServer(u, &fakeWorksheets{}, &fakeExport{})

	resp, err := s.GetSalt(context.Background(), wrapperspb.String("u"))
	require.NoError(t, err)
	require.Equal(t, []byte("SALT123"), resp.GetValue())

	u.saltErr = common.ErrorInternal
	_, err = s.GetSalt(context.Background(), wrapperspb.String("u"))
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestLogin(t *testing.T) {
	u := &fakeUser{loginResp: &services.TokenPair{AccessToken: "A", RefreshToken: "R", UserID: "u1"}}
	s := newServer(u, &fakeWorksheets{}, &fakeExport{})
	req := credentials(t, rpc.Credentials{Username: "u", Verifier: []byte("vv")})

	resp, err := s.Login(context.Background(), req)
	require.NoError(t, err)
	pair, err := rpc.TokenPairFromStruct(resp)
	require.NoError(t, err)
	require.Equal(t, rpc.TokenPair{AccessToken: "A", RefreshToken: "R", UserID: "u1"}, pair)

	u.loginErr = common.ErrorUnauthorized
	_, err = s.Login(context.Background(), req)
	require.Equal(t, codes.Unauthenticated, status.Code(err))
	require.Equal(t, "unauthorized", status.Convert(err).Message())
}

func TestRefreshToken(t *testing.T) {
	u := &fakeUser{refreshResp: &services.TokenPair{AccessToken: "a", RefreshToken: "r", UserID: "u1"}}
	s := newServer(u, &fakeWorksheets{}, &fakeExport{})

	resp, err := s.RefreshToken(context.Background(), wrapperspb.String("r0"))
	require.NoError(t, err)
	pair, err := rpc.TokenPairFromStruct(resp)
	require.NoError(t, err)
	require.Equal(t, "a", pair.AccessToken)

	u.refreshErr = common.ErrRefreshTokenExpired
	_, err = s.RefreshToken(context.Background(), wrapperspb.String("r0"))
	require.Equal(t, codes.Unauthenticated, status.Code(err))
	require.Equal(t, "refresh token expired", status.Convert(err).Message())
}

func TestFetchAll(t *testing.T) {
	w := &fakeWorksheets{list: []models.Worksheet{{ID: "a", OwnerID: "u1"}, {ID: "b", OwnerID: "u1", Deleted: true}}}
	s := newServer(&fakeUser{}, w, &fakeExport{})

	resp, err := s.FetchAll(authed("u1"), wrapperspb.Bool(true))
	require.NoError(t, err)
	require.Equal(t, "u1", w.gotOwner)
	require.True(t, w.gotDelete)

	got, err := rpc.WorksheetsFromList(resp)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[1].Deleted)

	_, err = s.FetchAll(context.Background(), wrapperspb.Bool(false))
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestSave(t *testing.T) {
	w := &fakeWorksheets{saveID: "a"}
	s := newServer(&fakeUser{}, w, &fakeExport{})

	req, err := rpc.WorksheetToStruct(&models.Worksheet{ID: "a", Fields: map[string]any{"person": "Bob"}})
	require.NoError(t, err)

	resp, err := s.Save(authed("u1"), req)
	require.NoError(t, err)
	require.Equal(t, "a", resp.GetValue())
	require.Equal(t, "u1", w.gotOwner)
	require.Equal(t, "Bob", w.saved.Field("person"))

	for _, tc := range []struct {
		err  error
		code codes.Code
	}{
		{common.ErrorValidation, codes.InvalidArgument},
		{common.ErrOwnerConflict, codes.PermissionDenied},
		{errors.New("disk full"), codes.Internal},
	} {
		w.saveErr = tc.err
		_, err := s.Save(authed("u1"), req)
		require.Equal(t, tc.code, status.Code(err), tc.err.Error())
	}

	bad, _ := structpb.NewStruct(map[string]any{"id": 7.0})
	_, err = s.Save(authed("u1"), bad)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSoftDelete(t *testing.T) {
	w := &fakeWorksheets{}
	s := newServer(&fakeUser{}, w, &fakeExport{})

	_, err := s.SoftDelete(authed("u1"), wrapperspb.String("a"))
	require.NoError(t, err)
	require.Equal(t, "a", w.deletedID)

	w.deleteErr = common.ErrorNotFound
	_, err = s.SoftDelete(authed("u1"), wrapperspb.String("a"))
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestExport(t *testing.T) {
	e := &fakeExport{url: "https://s3/x"}
	s := newServer(&fakeUser{}, &fakeWorksheets{}, e)

	resp, err := s.Export(authed("u1"), &emptypb.Empty{})
	require.NoError(t, err)
	require.Equal(t, "https://s3/x", resp.GetValue())
	require.Equal(t, "u1", e.gotOwner)

	e.err = errors.New("s3 down")
	_, err = s.Export(authed("u1"), &emptypb.Empty{})
	require.Equal(t, codes.Internal, status.Code(err))
}

// sendStream records what a handler sends on a server stream.
type sendStream struct {
	grpc.ServerStream
	ctx  context.Context
	sent []*structpb.ListValue
	err  error
}

func (s *sendStream) Context() context.Context     { return s.ctx }
func (s *sendStream) SetHeader(metadata.MD) error  { return nil }
func (s *sendStream) SendHeader(metadata.MD) error { return nil }
func (s *sendStream) SetTrailer(metadata.MD)       {}
func (s *sendStream) Send(l *structpb.ListValue) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, l)
	return nil
}

func TestSubscribe_SendsSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(authed("u1"))
	defer cancel()

	w := &fakeWorksheets{watch: func(ctx context.Context, ownerID string, send func([]models.Worksheet) error) error {
		if err := send([]models.Worksheet{{ID: "a", OwnerID: ownerID}}); err != nil {
			return err
		}
		if err := send(nil); err != nil {
			return err
		}
		cancel()
		return ctx.Err()
	}}
	s := newServer(&fakeUser{}, w, &fakeExport{})
	stream := &sendStream{ctx: ctx}

	require.NoError(t, s.Subscribe(&emptypb.Empty{}, stream))
	require.Len(t, stream.sent, 2)
	got, err := rpc.WorksheetsFromList(stream.sent[0])
	require.NoError(t, err)
	require.Equal(t, "a", got[0].ID)
}

func TestSubscribe_Errors(t *testing.T) {
	s := newServer(&fakeUser{}, &fakeWorksheets{}, &fakeExport{})
	err := s.Subscribe(&emptypb.Empty{}, &sendStream{ctx: context.Background()})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	w := &fakeWorksheets{watch: func(context.Context, string, func([]models.Worksheet) error) error {
		return hub.ErrTooManySubscribers
	}}
	s = newServer(&fakeUser{}, w, &fakeExport{})
	err = s.Subscribe(&emptypb.Empty{}, &sendStream{ctx: authed("u1")})
	require.Equal(t, codes.ResourceExhausted, status.Code(err))

	w.watch = func(_ context.Context, _ string, send func([]models.Worksheet) error) error {
		return send(nil)
	}
	err = s.Subscribe(&emptypb.Empty{}, &sendStream{ctx: authed("u1"), err: status.Error(codes.Unavailable, "gone")})
	require.Equal(t, codes.Unavailable, status.Code(err))
}
