package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alim08/cryptobook/cmd/api/graph"
	"github.com/alim08/cryptobook/pkg/auth"
	"github.com/alim08/cryptobook/pkg/config"
	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/metrics"
	"github.com/alim08/cryptobook/pkg/store"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Server serves the GraphQL endpoint and the operational probes.
type Server struct {
	cfg        *config.Config
	dispatcher *graph.Dispatcher
	store      store.RecordStore
	gate       *auth.Gate
	upgrader   websocket.Upgrader

	// sockets outlive http.Server.Shutdown, so they hang off their own
	// context and wait group
	ctx      context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup
}

func newServer(cfg *config.Config, d *graph.Dispatcher, s store.RecordStore, gate *auth.Gate) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		store:      s,
		gate:       gate,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{protocolTransportWS, protocolLegacyWS},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()

	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)
	router.Use(metricsMiddleware)

	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler())

	router.Handle("/graphql", s.gate.Middleware(http.HandlerFunc(s.graphqlHandler))).
		Methods(http.MethodGet, http.MethodPost, http.MethodOptions)

	return router
}

// closeSockets ends every websocket session and waits for them to finish or
// for ctx to expire.
func (s *Server) closeSockets(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeJSON writes a JSON response with proper headers
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.Error("JSON encoding error", zap.Error(err))
	}
}

// writeGraphQLError writes a response carrying a single request-level error.
func writeGraphQLError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, &graphql.Result{Errors: []gqlerrors.FormattedError{gqlerrors.FormatError(err)}})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		logger.Log.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "store": s.cfg.StoreBackend})
}

func (s *Server) graphqlHandler(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r)
		return
	}

	req, err := decodeRequest(w, r)
	if err != nil {
		writeGraphQLError(w, http.StatusBadRequest, err)
		return
	}

	kind, err := graph.OperationKind(req)
	switch {
	case err != nil:
		// the dispatcher reports the parse error in GraphQL form
	case kind == graph.KindSubscription:
		writeGraphQLError(w, http.StatusBadRequest, graph.ErrSubscriptionOverHTTP)
		return
	case kind == graph.KindMutation && r.Method == http.MethodGet:
		w.Header().Set("Allow", http.MethodPost)
		writeGraphQLError(w, http.StatusMethodNotAllowed, errors.New("mutations must be sent with POST"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	writeJSON(w, http.StatusOK, s.dispatcher.Execute(ctx, req))
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (graph.Request, error) {
	var req graph.Request
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if v := q.Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
				return req, fmt.Errorf("variables must be a JSON object: %w", err)
			}
		}
	case http.MethodPost:
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil {
			return req, fmt.Errorf("invalid request body: %w", err)
		}
	default:
		return req, fmt.Errorf("method %s not allowed", r.Method)
	}

	if req.Query == "" {
		return req, errors.New("query is required")
	}
	return req, nil
}
