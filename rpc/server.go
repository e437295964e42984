// Package rpc exposes the node's JSON-RPC control surface. Only lifecycle
// methods live here; chain queries belong to the query layer behind the node.
package rpc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
)

// Status is the node state reported by getstatus.
type Status struct {
	State      string `json:"state"`
	Height     int32  `json:"height"`
	Peers      int    `json:"peers"`
	MasterNode bool   `json:"masternode"`
	TestNet    bool   `json:"testnet"`
}

// NodeControl is the slice of the lifecycle controller the RPC layer needs.
type NodeControl interface {
	RequestShutdown()
	Status() Status
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Server serves the control RPC endpoint.
type Server struct {
	node      NodeControl
	authToken string
	logger    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	httpSrv *http.Server
}

// NewServer wires the RPC server. An empty authToken disables authentication,
// which is only sensible on loopback binds.
func NewServer(node NodeControl, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:      node,
		authToken: authToken,
		logger:    logger,
		limiters:  make(map[string]*rate.Limiter),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	// Read-only metrics ride the control listener, outside RPC auth.
	mux.Handle("/metrics", promhttp.Handler())
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Start listens on addr and serves until Stop is called. Blocks; run it as a
// managed task. Returns nil once the server is shut down.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	err = s.httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.allow(r.RemoteAddr) {
		writeResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, Error: &rpcError{Code: codeRateLimited, Message: "rate limited"}})
		return
	}
	if s.authToken != "" {
		token := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(token), []byte("Bearer "+s.authToken)) != 1 {
			writeResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, Error: &rpcError{Code: codeUnauthorized, Message: "unauthorized"}})
			return
		}
	}

	var req rpcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, Error: &rpcError{Code: codeParseError, Message: "parse error"}})
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: &rpcError{Code: codeInvalidRequest, Message: "invalid request"}})
		return
	}

	resp := rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID}
	switch req.Method {
	case "stop":
		s.node.RequestShutdown()
		resp.Result = "nyxd stopping"
	case "getstatus":
		resp.Result = s.node.Status()
	case "help":
		resp.Result = []string{"getstatus", "help", "stop"}
	default:
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: "method not found"}
	}
	writeResponse(w, resp)
}

func (s *Server) allow(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	s.mu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Second), 10)
		s.limiters[host] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func writeResponse(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
