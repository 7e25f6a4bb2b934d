package dyndns

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// SourceConfig is one entry in a source list file.
type SourceConfig struct {
	// URL of the IP echo service.
	URL string `yaml:"url"`
	// Parser selects how the address is extracted from the response body:
	// "plain" (default), "json", or "scan".
	Parser string `yaml:"parser,omitempty"`
	// Field names the JSON field holding the address. Required with the
	// json parser, ignored otherwise.
	Field string `yaml:"field,omitempty"`
}

// LoadSources reads a YAML list of IP echo services:
//
//   - url: https://checkip.amazonaws.com/
//   - url: https://httpbin.org/ip
//     parser: json
//     field: origin
//   - url: http://checkip.dyndns.com/
//     parser: scan
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading source list: %w", err)
	}
	var configs []SourceConfig
	if err := yaml.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("error parsing source list %s: %w", path, err)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("source list %s contains no sources", path)
	}

	sources := make([]Source, 0, len(configs))
	for i, c := range configs {
		if c.URL == "" {
			return nil, fmt.Errorf("source %d in %s: url is required", i, path)
		}
		if _, err := url.Parse(c.URL); err != nil {
			return nil, fmt.Errorf("source %d in %s: error parsing URL: %w", i, path, err)
		}
		var parse ParseFunc
		switch c.Parser {
		case "", "plain":
			parse = ParsePlain
		case "json":
			if c.Field == "" {
				return nil, fmt.Errorf("source %d in %s: the json parser requires a field name", i, path)
			}
			parse = ParseJSONField(c.Field)
		case "scan":
			parse = ParseScan
		default:
			return nil, fmt.Errorf("source %d in %s: unknown parser %q", i, path, c.Parser)
		}
		sources = append(sources, HTTPSource{URL: c.URL, Parse: parse})
	}
	return sources, nil
}
