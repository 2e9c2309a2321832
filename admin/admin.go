// Package admin is chancore's read-only introspection surface
// (SPEC_FULL.md §11.5): a small HTTP server exposing port/channel
// snapshots as JSON, a live event stream over a WebSocket, and a
// Prometheus scrape endpoint. It is grounded on the same shape as the
// teacher's rpc/jsonrpc/test/main.go (a plain http.ServeMux, a logger,
// Listen-then-Serve) but is not part of the core lifecycle engine
// itself — it is an external, optional adaptor, the same way the
// spec.md §1 "out of scope" ioctl surface is.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/riomux/chancore/chancore"
	"github.com/riomux/chancore/internal/crlog"
)

// Server serves chancore's introspection endpoints.
type Server struct {
	engine *chancore.Engine
	log    crlog.Logger
	http   *http.Server
	mux    *http.ServeMux

	upgrader websocket.Upgrader
}

// NewServer builds a Server bound to addr. CORS is wide open by design:
// this surface is read-only and carries no secrets, the same trust
// assumption the teacher's rpc/jsonrpc/server makes for its own
// cors.AllowAll-equivalent default.
func NewServer(addr string, engine *chancore.Engine, log crlog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		engine: engine,
		log:    log,
		mux:    mux,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ports", s.handlePorts)
	mux.HandleFunc("/channels", s.handleChannels)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())

	handler := cors.AllowAll().Handler(mux)
	s.http = &http.Server{Addr: addr, Handler: handler}
	return s
}

// ListenAndServe blocks serving the introspection surface until Shutdown
// is called or an unrecoverable error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("admin surface listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleHealth reports empty-body 200 OK on success, mirroring the
// teacher's rpc/core Health handler's "no response on error" contract.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	ports := s.engine.PortList(1 << 16)
	writeJSON(w, ports)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.ChannelSnapshot())
}

// handleWS upgrades to a WebSocket and pushes a channel snapshot once
// per tick until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("admin ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(s.engine.ChannelSnapshot()); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
