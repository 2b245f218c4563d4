package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hotcloud-sim/internal/sim"
)

const shutdownTimeout = 5 * time.Second

// StatusProvider reports the progress of a run.
type StatusProvider interface {
	Status() sim.Status
}

// Server exposes run status and Prometheus metrics over HTTP.
type Server struct {
	Sim StatusProvider
	log *slog.Logger
	mux *http.ServeMux
}

func NewServer(sim StatusProvider, log *slog.Logger) *Server {
	s := &Server{Sim: sim, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the HTTP handler serving all admin routes.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on addr and serves until ctx is canceled. The listener is bound
// before Start returns, so a bad address fails fast.
func (s *Server) Start(ctx context.Context, addr string) (<-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Warn("admin server shutdown", "error", err)
		}
	}()
	s.log.Info("admin server listening", "addr", ln.Addr().String())
	return errc, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Sim.Status()); err != nil {
		s.log.Error("encode status", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "done": s.Sim.Status().Done})
}
