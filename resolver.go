package dyndns

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultProbeTimeout bounds each individual source probe when no timeout
// was configured.
const DefaultProbeTimeout = 5 * time.Second

var (
	// ErrAllFailed is returned when every configured source failed to
	// produce an address.
	ErrAllFailed = errors.New("all IP sources failed")

	// ErrNoConsensus is returned in verify mode when no single address was
	// reported by a strict majority of the configured sources.
	ErrNoConsensus = errors.New("IP sources did not agree on an address")
)

// Resolver determines the host's current public IP address.
type Resolver interface {
	Resolve(ctx context.Context) (netip.Addr, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context) (netip.Addr, error)

// Resolve implements dyndns.Resolver.
func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) { return f(ctx) }

// NewResolver builds a Resolver that probes all sources concurrently.
//
// In the default mode the first source to answer successfully wins and the
// remaining probes are cancelled. This minimizes latency but trusts whichever
// service happens to answer first.
//
// With verify set, the resolver waits for every probe to finish or time out,
// then requires a strict absolute majority of the configured sources - not
// merely of the sources that responded - to agree on one address. A single
// compromised or buggy echo service cannot feed us a wrong address that way,
// and suppressing honest responses cannot force a minority answer through
// either. Overall wall time is bounded by the slowest probe, not the sum,
// because probes run concurrently with independent timeouts.
func NewResolver(sources []Source, timeout time.Duration, verify bool) Resolver {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &consensusResolver{
		sources: sources,
		timeout: timeout,
		verify:  verify,
		logger:  zerolog.Nop(),
	}
}

type consensusResolver struct {
	sources []Source
	timeout time.Duration
	verify  bool
	logger  zerolog.Logger
}

func (r *consensusResolver) SetLogger(logger zerolog.Logger) { r.logger = logger }

type probeResult struct {
	source string
	addr   netip.Addr
	err    error
}

// Resolve implements dyndns.Resolver.
func (r *consensusResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	if len(r.sources) == 0 {
		return netip.Addr{}, errors.New("no IP sources were configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The channel is buffered to the full source count so abandoned probes
	// can finish and exit without anyone reading their results.
	results := make(chan probeResult, len(r.sources))

	var wg sync.WaitGroup
	wg.Add(len(r.sources))
	for _, src := range r.sources {
		src := src
		go func() {
			defer wg.Done()
			results <- r.probe(ctx, src)
		}()
	}
	go func() { wg.Wait(); close(results) }()

	if r.verify {
		return r.awaitMajority(results)
	}
	return r.awaitFirst(results)
}

// probe runs one source with its own timeout so that a hung service cannot
// block completion of the others.
func (r *consensusResolver) probe(ctx context.Context, src Source) probeResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addr, err := src.Probe(ctx)
	if err != nil {
		return probeResult{source: src.Name(), err: fmt.Errorf("%s: %w", src.Name(), err)}
	}
	return probeResult{source: src.Name(), addr: addr}
}

func (r *consensusResolver) awaitFirst(results <-chan probeResult) (netip.Addr, error) {
	var errs []error
	for res := range results {
		if res.err != nil {
			r.logger.Debug().Err(res.err).Str("source", res.source).Msg("probe failed")
			errs = append(errs, res.err)
			continue
		}
		r.logger.Debug().Str("source", res.source).Stringer("ip", res.addr).Msg("probe succeeded")
		return res.addr, nil
	}
	return netip.Addr{}, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

func (r *consensusResolver) awaitMajority(results <-chan probeResult) (netip.Addr, error) {
	votes := map[netip.Addr]int{}
	var errs []error
	for res := range results {
		if res.err != nil {
			r.logger.Debug().Err(res.err).Str("source", res.source).Msg("probe failed")
			errs = append(errs, res.err)
			continue
		}
		r.logger.Debug().Str("source", res.source).Stringer("ip", res.addr).Msg("probe succeeded")
		votes[res.addr]++
	}
	if len(votes) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
	}

	// The majority threshold counts all configured sources, so probes that
	// failed or timed out weigh against agreement.
	total := len(r.sources)
	for addr, tally := range votes {
		if tally*2 > total {
			r.logger.Debug().Stringer("ip", addr).Int("votes", tally).Int("sources", total).
				Msg("address has an absolute majority")
			return addr, nil
		}
	}
	best := 0
	for _, tally := range votes {
		if tally > best {
			best = tally
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: best address got %d of %d configured sources",
		ErrNoConsensus, best, total)
}
