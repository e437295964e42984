package p2p

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrNoListenAddress means listening was requested but no address in any
// family could be bound.
var ErrNoListenAddress = errors.New("failed to listen on any port; use -listen=0 if you want this")

// InvalidAddressError reports an address or network name that could not be
// parsed or resolved, naming the offending value.
type InvalidAddressError struct {
	Value  string
	Reason string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Value, e.Reason)
}

// NetClass is a reachability class of the peer network.
type NetClass int

const (
	NetIPv4 NetClass = iota
	NetIPv6
	NetTor
)

func (c NetClass) String() string {
	switch c {
	case NetIPv4:
		return "ipv4"
	case NetIPv6:
		return "ipv6"
	case NetTor:
		return "tor"
	default:
		return "unknown"
	}
}

// ParseNetClass maps an -onlynet value to a network class.
func ParseNetClass(s string) (NetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ipv4":
		return NetIPv4, nil
	case "ipv6":
		return NetIPv6, nil
	case "tor", "onion":
		return NetTor, nil
	default:
		return 0, &InvalidAddressError{Value: s, Reason: "unknown network"}
	}
}

// resolveEndpoint normalises host[:port] into host:port, applying the default
// port when none is given and optionally resolving hostnames. Returns the
// address and its network class.
func resolveEndpoint(addr string, defaultPort int, nameLookup bool) (string, NetClass, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0, &InvalidAddressError{Value: addr, Reason: "empty address"}
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host = strings.Trim(addr, "[]")
		portStr = strconv.Itoa(defaultPort)
	}
	// Port zero is allowed so listeners can bind an ephemeral port.
	if port, err := strconv.Atoi(portStr); err != nil || port < 0 || port > 65535 {
		return "", 0, &InvalidAddressError{Value: addr, Reason: "invalid port"}
	}

	if strings.HasSuffix(host, ".onion") {
		return net.JoinHostPort(host, portStr), NetTor, nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		if !nameLookup {
			return "", 0, &InvalidAddressError{Value: addr, Reason: "name lookups disabled"}
		}
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return "", 0, &InvalidAddressError{Value: addr, Reason: "cannot resolve host"}
		}
		ip = ips[0]
	}
	class := NetIPv6
	if ip.To4() != nil {
		class = NetIPv4
	}
	return net.JoinHostPort(ip.String(), portStr), class, nil
}
