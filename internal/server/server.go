// Package server exposes the state of a running crawl over HTTP (gin) and
// the standard gRPC health protocol.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server serves one run's status until its context ends.
type Server struct {
	tracker *Tracker
	health  *health.Server
	logger  *slog.Logger
}

func New(tracker *Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &Server{tracker: tracker, health: hs, logger: logger.With("component", "server")}
}

// Router builds the HTTP handlers.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.tracker.Snapshot())
	})
	return r
}

// Finish flips the run to finished on both surfaces.
func (s *Server) Finish() {
	s.tracker.Finish()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
}

// Start listens on the given addresses; an empty address disables that
// surface. Both stop when ctx ends.
func (s *Server) Start(ctx context.Context, httpAddr, grpcAddr string) error {
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		s.serveGRPC(ctx, lis)
	}
	if httpAddr != "" {
		lis, err := net.Listen("tcp", httpAddr)
		if err != nil {
			return err
		}
		s.serveHTTP(ctx, lis)
	}
	return nil
}

func (s *Server) serveGRPC(ctx context.Context, lis net.Listener) {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, s.health)
	go func() {
		s.logger.Info("grpc listening", "addr", lis.Addr().String())
		if err := gs.Serve(lis); err != nil {
			s.logger.Error("grpc serve error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.logger.Info("stopping grpc server")
		s.health.Shutdown()
		gs.GracefulStop()
	}()
}

func (s *Server) serveHTTP(ctx context.Context, lis net.Listener) {
	srv := &http.Server{Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		s.logger.Info("http listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http serve error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shCtx)
	}()
}
