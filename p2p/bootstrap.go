package p2p

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"

	"golang.org/x/net/proxy"

	"nyxchain/config"
)

// Endpoint is one successfully bound listen address, tagged by family.
type Endpoint struct {
	Addr   string
	Family NetClass
}

// Network is the result of network bootstrap: proxy dialers per reachability
// class, the acquired listeners, manually declared local addresses and
// one-shot seed peers. Owned by the lifecycle controller.
type Network struct {
	cfg    *config.EffectiveConfig
	logger *slog.Logger

	limited   map[NetClass]bool
	dialers   map[NetClass]proxy.Dialer
	listeners []net.Listener
	endpoints []Endpoint
	locals    []string
	oneShots  []string
}

// Bootstrap resolves proxy and reachability settings from the effective
// configuration and, unless listening is disabled, acquires listen sockets.
// Listening was requested but nothing could be bound is fatal; an explicitly
// disabled listener is not.
func Bootstrap(cfg *config.EffectiveConfig, logger *slog.Logger) (*Network, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Network{
		cfg:     cfg,
		logger:  logger,
		limited: make(map[NetClass]bool),
		dialers: make(map[NetClass]proxy.Dialer),
	}

	if len(cfg.OnlyNets) > 0 {
		allowed := make(map[NetClass]bool)
		for _, name := range cfg.OnlyNets {
			class, err := ParseNetClass(name)
			if err != nil {
				return nil, err
			}
			allowed[class] = true
		}
		for _, class := range []NetClass{NetIPv4, NetIPv6, NetTor} {
			if !allowed[class] {
				n.limited[class] = true
			}
		}
	}

	if cfg.Proxy != "" {
		addr, _, err := resolveEndpoint(cfg.Proxy, 9050, cfg.NameLookup)
		if err != nil {
			return nil, &InvalidAddressError{Value: cfg.Proxy, Reason: "cannot resolve -proxy address"}
		}
		dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
		if err != nil {
			return nil, &InvalidAddressError{Value: cfg.Proxy, Reason: err.Error()}
		}
		if !n.limited[NetIPv4] {
			n.dialers[NetIPv4] = dialer
		}
		if !n.limited[NetIPv6] {
			n.dialers[NetIPv6] = dialer
		}
	}

	// The Tor proxy defaults to the general proxy; an explicit -tor=0 has
	// already cleared it during resolution.
	if cfg.TorProxy != "" {
		addr, _, err := resolveEndpoint(cfg.TorProxy, 9050, cfg.NameLookup)
		if err != nil {
			return nil, &InvalidAddressError{Value: cfg.TorProxy, Reason: "cannot resolve -tor address"}
		}
		dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
		if err != nil {
			return nil, &InvalidAddressError{Value: cfg.TorProxy, Reason: err.Error()}
		}
		n.dialers[NetTor] = dialer
	}

	if cfg.Listen {
		if err := n.bindListeners(); err != nil {
			n.Close()
			return nil, err
		}
	}

	for _, ext := range cfg.ExternalIPs {
		addr, _, err := resolveEndpoint(ext, cfg.Port, cfg.NameLookup)
		if err != nil {
			n.Close()
			return nil, &InvalidAddressError{Value: ext, Reason: "cannot resolve -externalip address"}
		}
		n.locals = append(n.locals, addr)
	}

	n.oneShots = append(n.oneShots, cfg.SeedNodes...)
	return n, nil
}

func (n *Network) bindListeners() error {
	if len(n.cfg.Binds) > 0 {
		for _, bind := range n.cfg.Binds {
			addr, class, err := resolveEndpoint(bind, n.cfg.Port, false)
			if err != nil {
				return &InvalidAddressError{Value: bind, Reason: "cannot resolve -bind address"}
			}
			if n.limited[class] {
				continue
			}
			if err := n.listen(addr, class); err != nil {
				return fmt.Errorf("cannot bind %s: %w", addr, err)
			}
		}
	} else {
		// Wildcard binds are attempted independently per family; partial
		// failure is fine as long as one family binds.
		port := strconv.Itoa(n.cfg.Port)
		if !n.limited[NetIPv6] {
			if err := n.listen(net.JoinHostPort("::", port), NetIPv6); err != nil {
				n.logger.Warn("ipv6 listen failed", slog.String("port", port), slog.Any("error", err))
			}
		}
		if !n.limited[NetIPv4] {
			if err := n.listen(net.JoinHostPort("0.0.0.0", port), NetIPv4); err != nil {
				n.logger.Warn("ipv4 listen failed", slog.String("port", port), slog.Any("error", err))
			}
		}
	}
	if len(n.endpoints) == 0 {
		return ErrNoListenAddress
	}
	return nil
}

func (n *Network) listen(addr string, class NetClass) error {
	network := "tcp4"
	if class == NetIPv6 {
		network = "tcp6"
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return err
	}
	n.listeners = append(n.listeners, ln)
	n.endpoints = append(n.endpoints, Endpoint{Addr: ln.Addr().String(), Family: class})
	n.logger.Info("listening", slog.String("addr", ln.Addr().String()), slog.String("family", class.String()))
	return nil
}

// Endpoints returns the bound listen addresses sorted by address so the set
// is comparable regardless of bind order.
func (n *Network) Endpoints() []Endpoint {
	out := make([]Endpoint, len(n.endpoints))
	copy(out, n.endpoints)
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Locals returns the manually declared reachable addresses.
func (n *Network) Locals() []string {
	out := make([]string, len(n.locals))
	copy(out, n.locals)
	return out
}

// Limited reports whether the reachability class is excluded by -onlynet.
func (n *Network) Limited(class NetClass) bool {
	return n.limited[class]
}

// Dialer returns the proxy dialer for a class, or a direct dialer.
func (n *Network) Dialer(class NetClass) proxy.Dialer {
	if d, ok := n.dialers[class]; ok {
		return d
	}
	return proxy.Direct
}

// Close releases all acquired listeners. Idempotent.
func (n *Network) Close() {
	for _, ln := range n.listeners {
		_ = ln.Close()
	}
	n.listeners = nil
}
