// Copyright 2024-2026 Aiku AI

// Package admin serves the relay's HTTP admin API and Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/unjoinable/whisperwire/pkg/relay"
)

// maxBodySize is the maximum allowed request body (1 MB).
const maxBodySize = 1 << 20

const shutdownTimeout = 5 * time.Second

// Options selects what the admin API exposes. Bridge and Links may each be
// nil depending on the relay mode.
type Options struct {
	Addr     string
	Mode     string
	Bridge   *relay.Bridge
	Links    *relay.LinkManager
	Gatherer prometheus.Gatherer
}

type Server struct {
	opts Options
	log  zerolog.Logger
	srv  *http.Server
}

// activator is implemented by endpoints embedding *relay.EndpointBase.
type activator interface {
	SetActive(active bool)
}

type endpointStatus struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

type statusResponse struct {
	Mode      string           `json:"mode"`
	Running   bool             `json:"running"`
	Endpoints []endpointStatus `json:"endpoints"`
	Links     int              `json:"links"`
}

type linkStatus struct {
	Key   string    `json:"key"`
	Nodes [2]string `json:"nodes"`
}

type setActiveRequest struct {
	ID     string `json:"id"`
	Active *bool  `json:"active"`
}

func NewServer(log zerolog.Logger, opts Options) *Server {
	s := &Server{
		opts: opts,
		log:  log.With().Str("component", "admin").Logger(),
	}
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the admin routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.HandleStatus)
	mux.HandleFunc("GET /api/links", s.HandleLinks)
	mux.HandleFunc("POST /api/endpoints/active", s.HandleSetActive)
	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.opts.Addr).Msg("Starting admin API")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin API failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down admin API: %w", err)
	}
	return nil
}

// HandleStatus is the handler for GET /api/status.
func (s *Server) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Mode: s.opts.Mode, Endpoints: []endpointStatus{}}
	if b := s.opts.Bridge; b != nil {
		resp.Running = b.IsRunning()
		for _, e := range b.Endpoints() {
			resp.Endpoints = append(resp.Endpoints, endpointStatus{ID: e.ID(), Active: e.Active()})
		}
	}
	if s.opts.Links != nil {
		links := s.opts.Links.ActiveLinks()
		resp.Links = len(links)
		if s.opts.Bridge == nil {
			resp.Running = len(links) > 0
			resp.Endpoints = linkNodes(links)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// linkNodes lists every node taking part in links, once each, sorted by id.
// Nodes without an active flag are reported active.
func linkNodes(links []*relay.Link) []endpointStatus {
	seen := make(map[string]bool)
	out := []endpointStatus{}
	for _, l := range links {
		a, b := l.Nodes()
		for _, n := range []relay.DuplexNode{a, b} {
			key := strings.ToLower(n.ID())
			if seen[key] {
				continue
			}
			seen[key] = true
			active := true
			if e, ok := n.(interface{ Active() bool }); ok {
				active = e.Active()
			}
			out = append(out, endpointStatus{ID: n.ID(), Active: active})
		}
	}
	slices.SortFunc(out, func(x, y endpointStatus) int {
		return strings.Compare(x.ID, y.ID)
	})
	return out
}

// HandleLinks is the handler for GET /api/links.
func (s *Server) HandleLinks(w http.ResponseWriter, _ *http.Request) {
	links := []linkStatus{}
	if s.opts.Links != nil {
		for _, l := range s.opts.Links.ActiveLinks() {
			a, b := l.Nodes()
			links = append(links, linkStatus{Key: l.String(), Nodes: [2]string{a.ID(), b.ID()}})
		}
	}
	s.writeJSON(w, http.StatusOK, links)
}

// HandleSetActive is the handler for POST /api/endpoints/active. The body is
// {"id": "<endpoint>", "active": true|false}.
func (s *Server) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	var req setActiveRequest
	if err := json.Unmarshal(body, &req); err != nil || req.ID == "" || req.Active == nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if s.opts.Bridge == nil {
		http.Error(w, "no bridge configured", http.StatusNotFound)
		return
	}
	e, ok := s.opts.Bridge.Endpoint(req.ID)
	if !ok {
		http.Error(w, "unknown endpoint", http.StatusNotFound)
		return
	}
	toggle, ok := e.(activator)
	if !ok {
		http.Error(w, "endpoint cannot be toggled", http.StatusConflict)
		return
	}
	toggle.SetActive(*req.Active)

	s.log.Info().
		Str("remote_addr", r.RemoteAddr).
		Str("endpoint", e.ID()).
		Bool("active", *req.Active).
		Msg("Endpoint activity changed")
	s.writeJSON(w, http.StatusOK, endpointStatus{ID: e.ID(), Active: e.Active()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write admin response")
	}
}
