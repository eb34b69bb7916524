// Package grpc exposes the worksheet services over gRPC.
package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/models"
	"github.com/simonexmachina/the-work/internal/rpc"
	smodels "github.com/simonexmachina/the-work/internal/server/models"
	"github.com/simonexmachina/the-work/internal/server/services"
)

// shutdownGrace bounds GracefulStop; open Subscribe streams never finish on
// their own.
const shutdownGrace = 5 * time.Second

type userSvc interface {
	Register(ctx context.Context, username string, salt, verifier []byte) (*smodels.User, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifierCandidate []byte) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type worksheetSvc interface {
	FetchAll(ctx context.Context, ownerID string, includeDeleted bool) ([]models.Worksheet, error)
	Save(ctx context.Context, ownerID string, w *models.Worksheet) (string, error)
	SoftDelete(ctx context.Context, ownerID, id string) error
	Watch(ctx context.Context, ownerID string, send func([]models.Worksheet) error) error
}

type exportSvc interface {
	Export(ctx context.Context, ownerID string) (string, error)
}

type GRPCServer struct {
	rpc.UnimplementedWorksheetServiceServer
	address    string
	users      userSvc
	worksheets worksheetSvc
	exports    exportSvc
	logger     logging.Logger
	jwtSecret  []byte
}

func NewGRPCServer(a string, l logging.Logger, us userSvc, ws worksheetSvc, es exportSvc, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:    a,
		logger:     l.With("module", "grpc_server"),
		users:      us,
		worksheets: ws,
		exports:    es,
		jwtSecret:  []byte(secretKey),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamAccessTokenInterceptor),
	)
	rpc.RegisterWorksheetServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")

		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownGrace):
			srv.Stop()
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
