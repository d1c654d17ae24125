package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server serves the engine's HTTP surface and blocks until its context is
// cancelled, mirroring the lifecycle of a long-running daemon: listen,
// serve, and on cancellation drain in-flight requests before returning.
type Server struct {
	addr     string
	handlers *Handlers
	logger   *slog.Logger

	httpServer *http.Server
}

// NewServer builds a Server bound to addr (e.g. ":8080").
func NewServer(addr string, h *Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, handlers: h, logger: logger}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query/search", s.handlers.HandleSearch)
	mux.HandleFunc("POST /query/quick", s.handlers.HandleQuick)
	mux.HandleFunc("POST /sql/execute", s.handlers.HandleExecute)
	return mux
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled,
// at which point it shuts down gracefully and returns ctx.Err().
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.mux(),
	}

	s.logger.Info("httpapi server listening", slog.String("addr", s.addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("httpapi server shutdown error", slog.String("error", err.Error()))
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close shuts the server down immediately, for callers outside the normal
// ctx-cancellation lifecycle (e.g. tests).
func (s *Server) Close() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}
