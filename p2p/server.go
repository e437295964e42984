package p2p

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"nyxchain/observability"
)

// Server manages peer connections over the bootstrapped network: it accepts
// inbound connections on every acquired listener and dials configured peers
// through the per-class proxy dialers. Message handling past the connection
// boundary belongs to the wire-protocol layer, not the bootstrap core.
type Server struct {
	network *Network
	book    *AddressBook
	logger  *slog.Logger

	maxPeers int
	connect  []string // exclusive peer allow-list
	addNodes []string
	seeded   []string

	mu    sync.Mutex
	peers map[string]net.Conn
}

// NewServer wires the peer manager. connect, when non-empty, restricts
// outbound dialing to exactly those peers.
func NewServer(network *Network, book *AddressBook, maxPeers int, connect, addNodes, seeded []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		network:  network,
		book:     book,
		logger:   logger,
		maxPeers: maxPeers,
		connect:  append([]string(nil), connect...),
		addNodes: append([]string(nil), addNodes...),
		seeded:   append([]string(nil), seeded...),
		peers:    make(map[string]net.Conn),
	}
}

// Run accepts and dials peers until the context is cancelled, then closes
// every open connection before returning.
func (s *Server) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ln := range s.network.listeners {
		wg.Add(1)
		go func(ln net.Listener) {
			defer wg.Done()
			s.acceptLoop(ctx, ln)
		}(ln)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.dialLoop(ctx)
	}()

	<-ctx.Done()
	s.network.Close() // unblocks the accept loops
	s.closePeers()
	wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if ctx.Err() != nil || !s.track(conn) {
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if s.book != nil {
			_ = s.book.Add(conn.RemoteAddr().String())
		}
	}
}

func (s *Server) dialLoop(ctx context.Context) {
	targets := s.connect
	if len(targets) == 0 {
		targets = append(append([]string(nil), s.addNodes...), s.seeded...)
	}
	for _, target := range targets {
		if ctx.Err() != nil {
			return
		}
		s.dial(ctx, target)
	}
	// One-shot seed peers are contacted for addresses and dropped; the
	// connection manager proper takes over from here.
	<-ctx.Done()
}

func (s *Server) dial(ctx context.Context, target string) {
	addr, class, err := resolveEndpoint(target, s.network.cfg.Port, s.network.cfg.NameLookup)
	if err != nil {
		s.logger.Warn("skipping unresolvable peer", slog.String("peer", target), slog.Any("error", err))
		return
	}
	if s.network.Limited(class) {
		return
	}
	dialer := s.network.Dialer(class)
	type dialResult struct {
		conn net.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := dialer.Dial("tcp", addr)
		ch <- dialResult{conn, err}
	}()
	select {
	case <-ctx.Done():
		return
	case res := <-ch:
		if res.err != nil {
			s.logger.Debug("peer dial failed", slog.String("peer", addr), slog.Any("error", res.err))
			return
		}
		if !s.track(res.conn) {
			_ = res.conn.Close()
			return
		}
		if s.book != nil {
			_ = s.book.Add(addr)
		}
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.peers) >= s.maxPeers {
		return false
	}
	s.peers[conn.RemoteAddr().String()] = conn
	observability.Metrics().PeersConnected.Set(float64(len(s.peers)))
	return true
}

func (s *Server) closePeers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, conn := range s.peers {
		_ = conn.SetDeadline(time.Now())
		_ = conn.Close()
		delete(s.peers, addr)
	}
	observability.Metrics().PeersConnected.Set(0)
}

// PeerCount reports the number of tracked connections.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}
