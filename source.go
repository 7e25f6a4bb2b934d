package dyndns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"regexp"
	"strings"
)

// A Source is one way of learning the host's current public IP address.
//
// Probe performs a single lookup and must honor ctx for cancellation and
// deadlines. Every failure mode - timeout, connection error, bad status,
// unparseable body - is reported as an error; a Source never panics on
// garbage input from the network.
type Source interface {
	Probe(ctx context.Context) (netip.Addr, error)
	Name() string
}

// DefaultSources returns the public IP echo services probed when no custom
// source list is configured.
//
// I'm not vouching for these services, but they do return the IP of the
// client connection. If possible, run your own and configure it instead.
func DefaultSources() []Source {
	return []Source{
		HTTPSource{URL: "https://checkip.amazonaws.com/"},
		HTTPSource{URL: "https://httpbin.org/ip", Parse: ParseJSONField("origin")},
		HTTPSource{URL: "https://icanhazip.com/"}, // operated by Cloudflare since ~2021
		HTTPSource{URL: "https://ipecho.net/plain"},
		HTTPSource{URL: "https://ipinfo.io/ip"},
		HTTPSource{URL: "http://checkip.dyndns.com/", Parse: ParseScan},
		HTTPSource{URL: "http://whatismyip.akamai.com/"},
	}
}

// HTTPSource probes a "what is my IP" web service.
//
// The service must speak http and return status "200 OK" with the caller's
// address somewhere in the response body. Parse selects how the address is
// extracted; a nil Parse reads it from the first line of the body.
type HTTPSource struct {
	URL    string
	Parse  ParseFunc
	Client *http.Client
}

func (s HTTPSource) Name() string { return s.URL }

// Probe implements dyndns.Source.
func (s HTTPSource) Probe(ctx context.Context) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := s.Client
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error reading response body: %w", err)
	}

	parse := s.Parse
	if parse == nil {
		parse = ParsePlain
	}
	return parse(body)
}

// A ParseFunc extracts an IP address from a service response body.
type ParseFunc func(body []byte) (netip.Addr, error)

// ParsePlain reads a bare address from the first line of the body.
func ParsePlain(body []byte) (netip.Addr, error) {
	line, _, _ := strings.Cut(string(body), "\n")
	addr, err := netip.ParseAddr(strings.TrimSpace(line))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	return addr, nil
}

// ParseJSONField returns a ParseFunc that reads the address from the named
// top-level field of a JSON object, e.g. "origin" for httpbin.org/ip.
// Proxies sometimes turn the field into a comma-separated list; only the
// first entry is used.
func ParseJSONField(field string) ParseFunc {
	return func(body []byte) (netip.Addr, error) {
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return netip.Addr{}, fmt.Errorf("error decoding JSON response body: %w", err)
		}
		raw, ok := payload[field].(string)
		if !ok {
			return netip.Addr{}, fmt.Errorf("JSON response has no string field %q", field)
		}
		first, _, _ := strings.Cut(raw, ",")
		addr, err := netip.ParseAddr(strings.TrimSpace(first))
		if err != nil {
			return netip.Addr{}, fmt.Errorf("error parsing IP address from JSON field %q: %w", field, err)
		}
		return addr, nil
	}
}

var ipv4Pattern = regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}\b`)

// ParseScan scans the body for the first run of text shaped like an IPv4
// address. It handles services that wrap the address in HTML or prose,
// such as checkip.dyndns.com.
func ParseScan(body []byte) (netip.Addr, error) {
	m := ipv4Pattern.FindString(string(body))
	if m == "" {
		return netip.Addr{}, errors.New("no IP address found in response body")
	}
	addr, err := netip.ParseAddr(m)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address %q from response body: %w", m, err)
	}
	return addr, nil
}
