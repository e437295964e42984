package p2p

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// Built-in DNS seed hosts per network.
var (
	MainNetSeedHosts = []string{"seed1.nyxchain.org", "seed2.nyxchain.org", "dnsseed.nyxchain.org"}
	TestNetSeedHosts = []string{"testseed.nyxchain.org"}
)

// SeedResolver answers A/AAAA queries for DNS seed hosts. Tests supply an
// in-memory implementation.
type SeedResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type dnsResolver struct {
	servers []string
	client  *dns.Client
}

// DefaultSeedResolver queries the system's configured nameservers directly.
func DefaultSeedResolver() SeedResolver {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	r := &dnsResolver{client: &dns.Client{Timeout: 5 * time.Second}}
	if err == nil {
		for _, server := range conf.Servers {
			r.servers = append(r.servers, net.JoinHostPort(server, conf.Port))
		}
	}
	return r
}

func (r *dnsResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if len(r.servers) == 0 {
		return net.DefaultResolver.LookupHost(ctx, host)
	}
	var out []string
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(host), qtype)
		for _, server := range r.servers {
			resp, _, err := r.client.ExchangeContext(ctx, msg, server)
			if err != nil {
				lastErr = err
				continue
			}
			for _, rr := range resp.Answer {
				switch record := rr.(type) {
				case *dns.A:
					out = append(out, record.A.String())
				case *dns.AAAA:
					out = append(out, record.AAAA.String())
				}
			}
			break
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// SeedFromDNS resolves each seed host and returns candidate peer addresses on
// the given port. Failures are per-seed and non-fatal; seeding yields
// whatever it can.
func SeedFromDNS(ctx context.Context, resolver SeedResolver, seedHosts []string, port int, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = DefaultSeedResolver()
	}
	var peers []string
	for _, host := range seedHosts {
		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			logger.Warn("dns seed lookup failed", slog.String("seed", host), slog.Any("error", err))
			continue
		}
		for _, ip := range ips {
			peers = append(peers, net.JoinHostPort(ip, strconv.Itoa(port)))
		}
	}
	return peers
}
