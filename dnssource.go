package dyndns

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/miekg/dns"
)

// DNSSource asks a resolver that echoes the caller's address back as a DNS
// answer, such as OpenDNS answering myip.opendns.com. DNS echo services make
// a useful complement to the HTTP ones because they sit on different
// infrastructure and fail independently.
//
// server is a host:port ("resolver1.opendns.com:53"); name is the query name.
func DNSSource(server, name string) Source {
	return dnsSource{server: server, name: dns.Fqdn(name)}
}

// OpenDNSSource probes OpenDNS's address echo.
func OpenDNSSource() Source {
	return DNSSource("resolver1.opendns.com:53", "myip.opendns.com")
}

type dnsSource struct {
	server string
	name   string
}

func (s dnsSource) Name() string { return s.name + "@" + s.server }

// Probe implements dyndns.Source.
func (s dnsSource) Probe(ctx context.Context) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(s.name, dns.TypeA)

	c := new(dns.Client)
	in, _, err := c.ExchangeContext(ctx, m, s.server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("dns query to %s failed: %w", s.server, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("dns query to %s returned %s", s.server, dns.RcodeToString[in.Rcode])
	}
	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if v4 := a.A.To4(); v4 != nil {
			if addr, ok := netip.AddrFromSlice(v4); ok {
				return addr, nil
			}
		}
	}
	return netip.Addr{}, fmt.Errorf("no address record in answer from %s", s.server)
}
