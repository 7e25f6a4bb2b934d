package dyndns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/rs/zerolog"
)

// ErrProvider wraps failures talking to the DNS provider, both the record
// lookup and the update call.
var ErrProvider = errors.New("DNS provider request failed")

// Record is the provider's stored state for the managed DNS record. It is
// fetched fresh on every run and never cached across runs.
type Record struct {
	ID   string // opaque provider identifier
	Name string
	Addr netip.Addr
}

// Provider is the external DNS service keeping the record.
type Provider interface {
	// LookupRecord fetches the current state of the named record.
	LookupRecord(ctx context.Context, name string) (Record, error)
	// UpdateRecord rewrites the record to point at addr.
	UpdateRecord(ctx context.Context, record Record, addr netip.Addr) error
}

// New builds a Client that keeps the named DNS record pointed at this host's
// public IP address. A provider must be registered with UsingCloudflare or
// UsingProvider; all other options have defaults.
func New(record string, options ...ClientOption) (*Client, error) {
	if record == "" {
		return nil, fmt.Errorf("dyndns.New: record cannot be empty")
	}
	c := &Client{
		record:  record,
		timeout: DefaultProbeTimeout,
		logger:  zerolog.Nop(),
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("dyndns.New: option %d returned an error: %w", i, err)
		}
	}

	if c.provider == nil {
		return nil, fmt.Errorf("dyndns.New: no DNS provider was registered and there is no default option - use dyndns.UsingCloudflare or dyndns.UsingProvider")
	}

	if c.resolver == nil {
		sources := c.sources
		if sources == nil {
			sources = DefaultSources()
		}
		if c.httpClient != nil {
			// copy before injecting the client so a caller-owned slice
			// from UsingSources is not modified
			sources = append([]Source(nil), sources...)
			for i, src := range sources {
				if hs, ok := src.(HTTPSource); ok && hs.Client == nil {
					hs.Client = c.httpClient
					sources[i] = hs
				}
			}
		}
		c.resolver = NewResolver(sources, c.timeout, c.verify)
	}

	// this lets us propagate the logger to dependencies that use one if WithLogger was called before all of the dependencies were registered
	withLogger(c.logger)(c)
	return c, nil
}

// A ClientOption configures the Client returned by New.
type ClientOption func(*Client) error

// UsingCloudflare registers Cloudflare as the DNS provider.
func UsingCloudflare(token string, options ...CloudflareOption) ClientOption {
	return func(c *Client) (err error) {
		if c.provider, err = newCloudflareProvider(token, options...); err != nil {
			return fmt.Errorf("dyndns.UsingCloudflare: error creating cloudflare DNS provider: %w", err)
		}
		return nil
	}
}

// UsingProvider registers a custom DNS provider implementation.
func UsingProvider(provider Provider) ClientOption {
	return func(c *Client) error {
		if provider == nil {
			return errors.New("dyndns.UsingProvider: provider cannot be nil")
		}
		c.provider = provider
		return nil
	}
}

// UsingResolver replaces the consensus resolver entirely.
func UsingResolver(resolver Resolver) ClientOption {
	return func(c *Client) error {
		c.resolver = resolver
		return nil
	}
}

// UsingSources replaces the default IP echo services.
func UsingSources(sources ...Source) ClientOption {
	return func(c *Client) error {
		if len(sources) == 0 {
			return errors.New("dyndns.UsingSources: at least one source is required")
		}
		c.sources = sources
		return nil
	}
}

// WithProbeTimeout bounds each individual source probe.
func WithProbeTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return errors.New("dyndns.WithProbeTimeout: a timeout of 0 seconds would mean no request could ever work")
		}
		c.timeout = timeout
		return nil
	}
}

// WithVerify makes the resolver wait for all probes and require a strict
// absolute majority of the configured sources to agree on one address.
func WithVerify() ClientOption {
	return func(c *Client) error {
		c.verify = true
		return nil
	}
}

// WithDryRun performs resolution and comparison but suppresses the update
// call; Sync reports the address that would have been written.
func WithDryRun() ClientOption {
	return func(c *Client) error {
		c.dryRun = true
		return nil
	}
}

// WithLogger sets the logger used by the client and its dependencies.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

func withLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) error {
		type setLogger interface {
			SetLogger(zerolog.Logger)
		}
		if p, ok := c.provider.(setLogger); ok {
			p.SetLogger(logger)
		}
		if r, ok := c.resolver.(setLogger); ok {
			r.SetLogger(logger)
		}
		return nil
	}
}

// UsingHTTPClient replaces the HTTP client used for source probes and
// provider calls.
func UsingHTTPClient(httpclient *http.Client) ClientOption {
	return func(c *Client) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		c.httpClient = httpclient
		type setHTTPClient interface {
			SetHTTPClient(*http.Client)
		}
		if hc, ok := c.resolver.(setHTTPClient); ok {
			hc.SetHTTPClient(httpclient)
		}
		switch p := c.provider.(type) {
		case *cloudflareProvider:
			cloudflareHTTPClient(p, httpclient)
		case setHTTPClient:
			p.SetHTTPClient(httpclient)
		}
		return nil
	}
}

// Action describes what a sync run did.
type Action int

const (
	// NoChange means the record already pointed at the resolved address.
	NoChange Action = iota
	// Updated means the record was rewritten with a new address.
	Updated
	// WouldUpdate means dry-run mode suppressed a pending update.
	WouldUpdate
)

// SyncResult reports the outcome of one sync run.
type SyncResult struct {
	IP     netip.Addr // the resolved public address
	Record Record     // the provider's state before any update
	Action Action
}

// Client keeps one DNS record in sync with this host's public IP address.
type Client struct {
	resolver   Resolver
	provider   Provider
	record     string
	sources    []Source
	timeout    time.Duration
	verify     bool
	dryRun     bool
	httpClient *http.Client
	logger     zerolog.Logger
}

// Sync performs one synchronization run: resolve the public IP, fetch the
// record's current state, and update the record if the two differ.
//
// Resolution failures abort the run before any provider call is made.
// Provider failures are wrapped with ErrProvider.
func (c *Client) Sync(ctx context.Context) (SyncResult, error) {
	ip, err := c.resolver.Resolve(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("error resolving public IP: %w", err)
	}
	c.logger.Info().Stringer("ip", ip).Msg("resolved public IP")

	record, err := c.provider.LookupRecord(ctx, c.record)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: looking up %s: %w", ErrProvider, c.record, err)
	}

	res := SyncResult{IP: ip, Record: record}
	if record.Addr == ip {
		c.logger.Info().Str("record", c.record).Stringer("ip", ip).Msg("record is already correct")
		res.Action = NoChange
		return res, nil
	}

	c.logger.Info().Str("record", c.record).Stringer("old", record.Addr).Stringer("new", ip).Msg("record is out of date")
	if c.dryRun {
		c.logger.Info().Str("record", c.record).Stringer("ip", ip).Msg("dry run: skipping update")
		res.Action = WouldUpdate
		return res, nil
	}

	if err := c.provider.UpdateRecord(ctx, record, ip); err != nil {
		return res, fmt.Errorf("%w: updating %s: %w", ErrProvider, c.record, err)
	}
	c.logger.Info().Str("record", c.record).Stringer("ip", ip).Msg("record updated")
	res.Action = Updated
	return res, nil
}

// RunDaemon re-runs the client at the given interval until ctx is cancelled.
// Failed runs are logged and retried on the next tick.
func RunDaemon(ctx context.Context, c *Client, interval time.Duration) {
	if interval < 1*time.Minute {
		interval = 1 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sync(ctx); err != nil {
				c.logger.Error().Err(err).Msg("sync failed")
			}
		}
	}
}
