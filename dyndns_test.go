package dyndns_test

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"sync"
	"testing"

	"github.com/ipflock/dyndns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider counts calls so tests can assert which provider operations a
// sync run performed.
type stubProvider struct {
	mu        sync.Mutex
	record    dyndns.Record
	lookups   int
	updates   int
	lookupErr error
	updateErr error
}

func (p *stubProvider) LookupRecord(ctx context.Context, name string) (dyndns.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups++
	if p.lookupErr != nil {
		return dyndns.Record{}, p.lookupErr
	}
	return p.record, nil
}

func (p *stubProvider) UpdateRecord(ctx context.Context, record dyndns.Record, addr netip.Addr) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates++
	if p.updateErr != nil {
		return p.updateErr
	}
	p.record.Addr = addr
	return nil
}

func (p *stubProvider) counts() (lookups, updates int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookups, p.updates
}

func newTestClient(t *testing.T, provider dyndns.Provider, resolved string, options ...dyndns.ClientOption) *dyndns.Client {
	t.Helper()
	options = append([]dyndns.ClientOption{
		dyndns.UsingProvider(provider),
		dyndns.UsingResolver(dyndns.FromString(resolved)),
	}, options...)
	c, err := dyndns.New("home.example.com", options...)
	require.NoError(t, err)
	return c
}

func TestSyncNoChange(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{record: dyndns.Record{
		ID:   "rec1",
		Name: "home.example.com",
		Addr: netip.MustParseAddr("203.0.113.7"),
	}}
	c := newTestClient(t, provider, "203.0.113.7")

	res, err := c.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dyndns.NoChange, res.Action)

	lookups, updates := provider.counts()
	assert.Equal(t, 1, lookups)
	assert.Zero(t, updates, "a matching record must never be rewritten")
}

func TestSyncUpdatesChangedRecord(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{record: dyndns.Record{
		ID:   "rec1",
		Name: "home.example.com",
		Addr: netip.MustParseAddr("198.51.100.1"),
	}}
	c := newTestClient(t, provider, "203.0.113.7")

	res, err := c.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dyndns.Updated, res.Action)
	assert.Equal(t, netip.MustParseAddr("203.0.113.7"), res.IP)

	// second run with an unchanged external IP is a no-op
	res, err = c.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dyndns.NoChange, res.Action)

	_, updates := provider.counts()
	assert.Equal(t, 1, updates)
}

func TestSyncDryRun(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{record: dyndns.Record{
		ID:   "rec1",
		Name: "home.example.com",
		Addr: netip.MustParseAddr("198.51.100.1"),
	}}
	c := newTestClient(t, provider, "203.0.113.7", dyndns.WithDryRun())

	res, err := c.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dyndns.WouldUpdate, res.Action)
	assert.Equal(t, netip.MustParseAddr("203.0.113.7"), res.IP)

	_, updates := provider.counts()
	assert.Zero(t, updates, "dry run must never write")
}

func TestSyncAbortsOnResolutionFailure(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{}
	failing := dyndns.ResolverFunc(func(ctx context.Context) (netip.Addr, error) {
		return netip.Addr{}, dyndns.ErrAllFailed
	})
	c, err := dyndns.New("home.example.com",
		dyndns.UsingProvider(provider),
		dyndns.UsingResolver(failing),
	)
	require.NoError(t, err)

	_, err = c.Sync(context.Background())
	assert.ErrorIs(t, err, dyndns.ErrAllFailed)

	lookups, updates := provider.counts()
	assert.Zero(t, lookups, "resolution failure must not contact the provider")
	assert.Zero(t, updates)
}

func TestSyncProviderFailures(t *testing.T) {
	t.Parallel()

	t.Run("lookup", func(t *testing.T) {
		t.Parallel()
		provider := &stubProvider{lookupErr: errors.New("api: 403 forbidden")}
		c := newTestClient(t, provider, "203.0.113.7")
		_, err := c.Sync(context.Background())
		assert.ErrorIs(t, err, dyndns.ErrProvider)
	})

	t.Run("update", func(t *testing.T) {
		t.Parallel()
		provider := &stubProvider{
			record:    dyndns.Record{ID: "rec1", Name: "home.example.com", Addr: netip.MustParseAddr("198.51.100.1")},
			updateErr: errors.New("api: 500 internal error"),
		}
		c := newTestClient(t, provider, "203.0.113.7")
		_, err := c.Sync(context.Background())
		assert.ErrorIs(t, err, dyndns.ErrProvider)
	})
}

func TestNewDoesNotMutateCallerSources(t *testing.T) {
	t.Parallel()

	sources := []dyndns.Source{dyndns.HTTPSource{URL: "https://example.com/"}}
	_, err := dyndns.New("home.example.com",
		dyndns.UsingProvider(&stubProvider{}),
		dyndns.UsingSources(sources...),
		dyndns.UsingHTTPClient(&http.Client{}),
	)
	require.NoError(t, err)

	src := sources[0].(dyndns.HTTPSource)
	assert.Nil(t, src.Client, "the caller's slice must keep its zero-value client")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := dyndns.New("")
	assert.ErrorContains(t, err, "record cannot be empty")

	_, err = dyndns.New("home.example.com")
	assert.ErrorContains(t, err, "no DNS provider")

	_, err = dyndns.New("home.example.com",
		dyndns.UsingProvider(&stubProvider{}),
		dyndns.WithProbeTimeout(0),
	)
	assert.ErrorContains(t, err, "timeout")

	_, err = dyndns.New("home.example.com",
		dyndns.UsingProvider(&stubProvider{}),
		dyndns.UsingSources(),
	)
	assert.ErrorContains(t, err, "at least one source")
}
