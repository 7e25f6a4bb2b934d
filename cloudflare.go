package dyndns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"

	"github.com/cloudflare/cloudflare-go"
	"github.com/rs/zerolog"
)

// A CloudflareOption adjusts the Cloudflare provider built by UsingCloudflare.
type CloudflareOption func(*cloudflareProvider) error

// WithZoneID pins the zone holding the managed record, skipping the by-name
// lookup.
func WithZoneID(id string) CloudflareOption {
	return func(cf *cloudflareProvider) error {
		cf.zoneID = id
		return nil
	}
}

// WithZoneName sets the name of the zone holding the managed record
// ("example.com"). The zone ID is resolved through the API on first use.
func WithZoneName(name string) CloudflareOption {
	return func(cf *cloudflareProvider) error {
		cf.zoneName = name
		return nil
	}
}

// WithAPIBaseURL points the provider at a custom Cloudflare API endpoint
// instead of production.
func WithAPIBaseURL(baseURL string) CloudflareOption {
	return func(cf *cloudflareProvider) error {
		cf.baseURL = baseURL
		return nil
	}
}

func newCloudflareProvider(token string, options ...CloudflareOption) (*cloudflareProvider, error) {
	cf := &cloudflareProvider{logger: zerolog.Nop()}
	for i, opt := range options {
		if err := opt(cf); err != nil {
			return nil, fmt.Errorf("option %d returned an error: %w", i, err)
		}
	}
	var apiOptions []cloudflare.Option
	if cf.baseURL != "" {
		apiOptions = append(apiOptions, cloudflare.BaseURL(cf.baseURL))
	}
	api, err := cloudflare.NewWithAPIToken(token, apiOptions...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.api = api
	return cf, nil
}

// cloudflareProvider implements dyndns.Provider.
//
// It should be constructed through dyndns.UsingCloudflare.
type cloudflareProvider struct {
	api      *cloudflare.API
	logger   zerolog.Logger
	zoneID   string // explicit zone ID; resolved from zoneName when empty
	zoneName string
	baseURL  string
}

func (cf *cloudflareProvider) SetLogger(logger zerolog.Logger) { cf.logger = logger }

func (cf *cloudflareProvider) zone(ctx context.Context) (string, error) {
	if cf.zoneID != "" {
		return cf.zoneID, nil
	}
	if cf.zoneName == "" {
		return "", errors.New("neither a zone ID nor a zone name was configured")
	}
	cf.logger.Debug().Str("zone", cf.zoneName).Msg("resolving zone ID")
	zid, err := cf.api.ZoneIDByName(cf.zoneName)
	if err != nil {
		return "", fmt.Errorf("unable to get zone ID for %s: %w", cf.zoneName, err)
	}
	cf.logger.Debug().Str("zone_id", zid).Msg("got zone ID")
	cf.zoneID = zid
	return zid, nil
}

// LookupRecord implements dyndns.Provider.
func (cf *cloudflareProvider) LookupRecord(ctx context.Context, name string) (Record, error) {
	zid, err := cf.zone(ctx)
	if err != nil {
		return Record{}, err
	}
	cf.logger.Debug().Str("zone_id", zid).Str("record", name).Msg("looking up DNS record")

	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.ListDNSRecordsParams{
		Name: name,
	})
	if err != nil {
		return Record{}, fmt.Errorf("unable to list DNS records for zone %s: %w", zid, err)
	}
	for _, r := range records {
		if r.Name != name || (r.Type != "A" && r.Type != "AAAA") {
			continue
		}
		addr, err := netip.ParseAddr(r.Content)
		if err != nil {
			return Record{}, fmt.Errorf("error parsing IP from record content %q: %w", r.Content, err)
		}
		cf.logger.Debug().Str("record_id", r.ID).Stringer("ip", addr).Msg("found existing record")
		return Record{ID: r.ID, Name: r.Name, Addr: addr}, nil
	}
	return Record{}, fmt.Errorf("no A or AAAA record found for %s", name)
}

// UpdateRecord implements dyndns.Provider.
func (cf *cloudflareProvider) UpdateRecord(ctx context.Context, record Record, addr netip.Addr) error {
	zid, err := cf.zone(ctx)
	if err != nil {
		return err
	}
	cf.logger.Debug().Str("record_id", record.ID).Stringer("ip", addr).Msg("updating DNS record")

	_, err = cf.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.UpdateDNSRecordParams{
		ID:      record.ID,
		Type:    recordType(addr),
		Name:    record.Name,
		Content: addr.String(),
	})
	if err != nil {
		return fmt.Errorf("unable to update DNS record %s: %w", record.ID, err)
	}
	return nil
}

func cloudflareHTTPClient(cf *cloudflareProvider, httpclient *http.Client) {
	cloudflare.HTTPClient(httpclient)(cf.api)
}

func recordType(a netip.Addr) string {
	if a.Is4() {
		return "A"
	}
	if a.Is6() {
		return "AAAA"
	}
	panic("unknown ip configuration")
}
