package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"cwlogd/internal/api"
)

// Server manages the HTTP server lifecycle for the daemon.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	addr       string
	logger     *zap.Logger
}

// NewServer creates an HTTP server bound to the configured listen address
// with all API services mounted.
func NewServer(
	p Params,
	logger *zap.Logger,
	roomSvc *api.RoomService,
	messageSvc *api.MessageService,
	watchSvc *api.WatchService,
	logSvc *api.LogService,
	tokenSvc *api.TokenService,
) (*Server, error) {
	mux := http.NewServeMux()
	roomSvc.Register(mux)
	messageSvc.Register(mux)
	watchSvc.Register(mux)
	logSvc.Register(mux)
	tokenSvc.Register(mux)

	listener, err := net.Listen("tcp", p.Config.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", p.Config.Listen, err)
	}

	return &Server{
		httpServer: &http.Server{Handler: mux},
		listener:   listener,
		addr:       listener.Addr().String(),
		logger:     logger,
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.addr))
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("HTTP server stopping")
	_ = s.httpServer.Shutdown(ctx)
}
