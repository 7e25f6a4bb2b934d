package dyndns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceSource reads the address directly from the named network
// interface instead of asking an external service. This only produces a
// usable answer on hosts where the interface carries the public address
// itself, such as a gateway's WAN interface.
func InterfaceSource(name string) Source {
	return ifaceSource(name)
}

type ifaceSource string

func (s ifaceSource) Name() string { return "interface " + string(s) }

// Probe implements dyndns.Source.
func (s ifaceSource) Probe(ctx context.Context) (netip.Addr, error) {
	iface, err := net.InterfaceByName(string(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error getting interface %s by name: %w", string(s), err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error looking up addresses for interface %s: %w", string(s), err)
	}
	// addr: ip+net:192.168.86.253/24
	// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
	var parseErrors []error
	for _, addr := range addrs {
		prefix, err := netip.ParsePrefix(addr.String())
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("error parsing local ip %s for interface %s: %w", addr.String(), string(s), err))
			continue
		}
		ip := prefix.Addr()
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate() {
			continue
		}
		return ip, nil
	}
	if len(parseErrors) > 0 {
		return netip.Addr{}, errors.Join(parseErrors...)
	}
	return netip.Addr{}, fmt.Errorf("interface %s has no global unicast address", string(s))
}
