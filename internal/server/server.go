package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docintel-batch/internal/batch"
	"docintel-batch/internal/runs"
	"docintel-batch/internal/shared/server/middleware"
	"docintel-batch/internal/shared/telemetry"
)

// ProgressSource reports the live progress of the current run.
type ProgressSource interface {
	Progress() (batch.Progress, bool)
}

// NewEngine builds the status engine with middleware and routes registered. runRepo may be nil.
// Callers choose the gin mode.
func NewEngine(progress ProgressSource, runRepo runs.Repo) *gin.Engine {
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
	)

	registerRoutes(engine, progress, runRepo)
	return engine
}

// Server serves the status engine in the background while a batch runs.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// Start listens on addr and serves handler until Shutdown.
func Start(addr string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", Addr(addr))
	if err != nil {
		return nil, err
	}
	s := &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error("status.server.failed", map[string]any{"error": err})
		}
	}()
	telemetry.Info("status.server.listening", map[string]any{"addr": ln.Addr().String()})
	return s, nil
}

// Addr reports the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	for _, ch := range port {
		if ch == ':' {
			return port
		}
	}
	return ":" + port
}
