package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zde37/chordring/internal/chord"
	"github.com/zde37/chordring/internal/metrics"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

// Node is the part of a ChordNode the admin API reads.
type Node interface {
	ID() hash.ID
	Space() hash.Space
	Status() chord.JoinStatus
	IsShutdown() bool
	Snapshot() chord.Snapshot
	FindSuccessor(ctx context.Context, id hash.ID) (chord.NodeAddress, error)
	Metrics() *metrics.Metrics
}

// Server represents the HTTP admin API server.
type Server struct {
	node       Node
	config     *Config
	mux        *runtime.ServeMux
	handler    http.Handler
	httpServer *http.Server
	wsHub      *WebSocketHub
	logger     *pkg.Logger
}

// Config holds the HTTP server configuration.
type Config struct {
	HTTPPort      int
	LookupTimeout time.Duration
}

// NewServer creates a new HTTP admin API server for node.
func NewServer(node Node, cfg *Config, logger *pkg.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("node cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Server{
		node:   node,
		config: cfg,
		wsHub:  NewWebSocketHub(logger),
		logger: logger.WithFields(pkg.Fields{"component": "http_api"}),
	}

	mux := runtime.NewServeMux()
	s.mux = mux
	routes := []struct {
		path    string
		handler runtime.HandlerFunc
	}{
		{"/api/v1/ring", s.ringHandler},
		{"/api/v1/lookup/{id}", s.lookupHandler},
		{"/health", s.healthHandler},
		{"/metrics", s.metricsHandler()},
		{"/api/ws", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			s.wsHub.HandleWebSocket(w, r)
		}},
	}
	for _, route := range routes {
		if err := mux.HandlePath(http.MethodGet, route.path, route.handler); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", route.path, err)
		}
	}
	s.handler = corsMiddleware(mux)

	return s, nil
}

// Hub returns the WebSocket hub that ring events are delivered to.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves on listener in the background.
func (s *Server) Start(listener net.Listener) error {
	if listener == nil {
		return fmt.Errorf("listener cannot be nil")
	}

	s.wsHub.Start()

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().
		Str("address", listener.Addr().String()).
		Msg("Starting HTTP API server")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping HTTP API server")

	s.wsHub.Stop()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	s.logger.Info().Msg("HTTP API server stopped")
	return nil
}

// NodeView is the JSON form of a NodeAddress.
type NodeView struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// FingerView is the JSON form of a finger table entry.
type FingerView struct {
	Index int      `json:"index"`
	Start string   `json:"start"`
	Node  NodeView `json:"node"`
}

// RingView is the JSON form of a routing snapshot.
type RingView struct {
	Self        NodeView     `json:"self"`
	Status      string       `json:"status"`
	M           int          `json:"m"`
	Predecessor *NodeView    `json:"predecessor"`
	Successors  []NodeView   `json:"successors"`
	Fingers     []FingerView `json:"fingers"`
}

// LookupView is the JSON answer of a lookup.
type LookupView struct {
	ID        string   `json:"id"`
	Successor NodeView `json:"successor"`
}

func nodeView(n chord.NodeAddress) NodeView {
	return NodeView{ID: n.ID.String(), Address: n.Address()}
}

func newRingView(snap chord.Snapshot, bits int) RingView {
	view := RingView{
		Self:       nodeView(snap.Self),
		Status:     snap.Status.String(),
		M:          bits,
		Successors: make([]NodeView, len(snap.Successors)),
		Fingers:    make([]FingerView, len(snap.Fingers)),
	}
	if snap.HasPredecessor {
		pred := nodeView(snap.Predecessor)
		view.Predecessor = &pred
	}
	for i, succ := range snap.Successors {
		view.Successors[i] = nodeView(succ)
	}
	for i, f := range snap.Fingers {
		view.Fingers[i] = FingerView{Index: f.Index, Start: f.Start.String(), Node: nodeView(f.Node)}
	}
	return view
}

// ringHandler returns the node's routing state.
func (s *Server) ringHandler(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.writeJSON(w, http.StatusOK, newRingView(s.node.Snapshot(), s.node.Space().Bits()))
}

// lookupHandler resolves the node responsible for the {id} path parameter,
// given in decimal or 0x-prefixed hex.
func (s *Server) lookupHandler(w http.ResponseWriter, r *http.Request, params map[string]string) {
	raw, err := strconv.ParseUint(params["id"], 0, 64)
	if err != nil || !s.node.Space().IsValidID(hash.ID(raw)) {
		s.writeError(w, r, status.Errorf(codes.InvalidArgument,
			"id %q is not a valid %d-bit identifier", params["id"], s.node.Space().Bits()))
		return
	}
	id := hash.ID(raw)

	ctx := r.Context()
	if s.config.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.LookupTimeout)
		defer cancel()
	}

	succ, err := s.node.FindSuccessor(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("id", id.String()).Msg("Lookup failed")
		s.writeError(w, r, status.Error(codes.Unavailable, err.Error()))
		return
	}

	s.writeJSON(w, http.StatusOK, LookupView{ID: id.String(), Successor: nodeView(succ)})
}

// healthHandler reports 200 once the node is part of a ring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	code, state := http.StatusOK, "ok"
	switch {
	case s.node.IsShutdown():
		code, state = http.StatusServiceUnavailable, "shutdown"
	case s.node.Status() != chord.StatusJoined:
		code, state = http.StatusServiceUnavailable, s.node.Status().String()
	}

	s.writeJSON(w, code, map[string]string{
		"status":  state,
		"node_id": s.node.ID().String(),
	})
}

func (s *Server) metricsHandler() runtime.HandlerFunc {
	h := promhttp.HandlerFor(s.node.Metrics().Registry(), promhttp.HandlerOpts{})
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		h.ServeHTTP(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	marshaler := &runtime.JSONBuiltin{}
	data, err := marshaler.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", marshaler.ContentType(v))
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	runtime.HTTPError(r.Context(), s.mux, &runtime.JSONPb{}, w, r, err)
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}
