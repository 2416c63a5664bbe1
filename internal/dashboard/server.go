// Package dashboard serves a read-only JSON view of the ledgers on a loopback address.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ggonzalez94/savings-agent/internal/engine"
	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/registry"
	"github.com/rs/zerolog"
)

const recentLimit = 50

type Server struct {
	engine *engine.Engine
	log    zerolog.Logger
	srv    *http.Server
	ln     net.Listener
}

type costsView struct {
	Costs   []model.CostEntry    `json:"costs"`
	Revenue []model.RevenueEntry `json:"revenue"`
}

func New(e *engine.Engine, addr string, log zerolog.Logger) *Server {
	s := &Server{engine: e, log: log}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler routes the /api endpoints. It is exported for httptest.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serve)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var handler func(*http.Request) (any, error)
	switch r.URL.Path {
	case "/api/stats":
		handler = func(r *http.Request) (any, error) { return s.engine.Stats(r.Context()) }
	case "/api/transactions":
		handler = func(*http.Request) (any, error) { return s.engine.Plans().Recent(recentLimit), nil }
	case "/api/plans":
		handler = func(*http.Request) (any, error) { return s.engine.Plans().All(), nil }
	case "/api/costs":
		handler = func(*http.Request) (any, error) {
			c := s.engine.Costs()
			return costsView{Costs: c.RecentCosts(recentLimit), Revenue: c.RecentRevenue(recentLimit)}, nil
		}
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	body, err := handler(r)
	if err != nil {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("dashboard request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// Start binds the listener and serves in the background. It refuses non-loopback addresses.
func (s *Server) Start() error {
	if err := CheckLoopback(s.srv.Addr); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "listen on dashboard address", err)
	}
	s.ln = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("dashboard listening")
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("dashboard stopped")
		}
	}()
	return nil
}

// Addr reports the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func CheckLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "invalid dashboard address", err)
	}
	if !registry.IsLoopbackHost(host) {
		return clierr.New(clierr.CodeUsage, "dashboard address must be loopback, got "+addr)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
