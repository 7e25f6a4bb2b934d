package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type config struct {
	Record       string
	Token        string
	ZoneID       string
	ZoneName     string
	APIBaseURL   string
	ProbeTimeout time.Duration
	Verify       bool
	DryRun       bool
	SourceFile   string
	IP           string
	Interface    string
	Interval     time.Duration
	Verbose      bool
}

// envNames maps each option to its canonical environment variable.
var envNames = map[string]string{
	"token":              "CLOUDFLARE_API_TOKEN",
	"zone-id":            "CLOUDFLARE_ZONE_ID",
	"zone-name":          "CLOUDFLARE_ZONE_NAME",
	"record":             "CLOUDFLARE_DNS_RECORD",
	"cloudflare-api-url": "CLOUDFLARE_API_URL",
	"ip-timeout":         "DYNDNS_IP_TIMEOUT",
	"verify":             "DYNDNS_VERIFY",
	"dry-run":            "DYNDNS_DRY_RUN",
	"sources":            "DYNDNS_SOURCES",
	"ip":                 "DYNDNS_IP",
	"interface":          "DYNDNS_INTERFACE",
	"interval":           "DYNDNS_INTERVAL",
	"verbose":            "DYNDNS_VERBOSE",
}

// loadConfig resolves options with precedence:
// flag > environment variable > .env file > built-in default.
func loadConfig(args []string) (config, error) {
	flags := pflag.NewFlagSet("dyndns", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: dyndns [flags] RECORD")
		flags.PrintDefaults()
	}
	flags.StringP("token", "t", "", "Cloudflare API token")
	flags.String("zone-id", "", "ID of the zone holding the record")
	flags.String("zone-name", "", "name of the zone holding the record, used to look up the zone ID when no ID is given")
	flags.String("cloudflare-api-url", "", "custom Cloudflare API base URL")
	flags.Int("ip-timeout", 5, "per-probe timeout in seconds for the IP services")
	flags.Bool("verify", false, "require an absolute majority of all IP services to agree before making changes")
	flags.BoolP("dry-run", "n", false, "don't update the record; print the IP that would have been written to stdout")
	flags.String("sources", "", "YAML file listing custom IP echo services")
	flags.String("ip", "", "static IP override, skips the IP services entirely")
	flags.String("interface", "", "read the address from this network interface instead of probing")
	flags.DurationP("interval", "i", 0, "re-run at this interval instead of exiting (0 runs once)")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	if err := flags.Parse(args); err != nil {
		return config{}, err
	}

	if err := loadDotEnv(".env"); err != nil {
		return config{}, err
	}

	vip := viper.New()
	if err := vip.BindPFlags(flags); err != nil {
		return config{}, err
	}
	for key, env := range envNames {
		if err := vip.BindEnv(key, env); err != nil {
			return config{}, err
		}
	}
	// The record name is a positional argument; an explicit Set outranks the
	// environment binding.
	if record := flags.Arg(0); record != "" {
		vip.Set("record", record)
	}

	cfg := config{
		Record:       vip.GetString("record"),
		Token:        vip.GetString("token"),
		ZoneID:       vip.GetString("zone-id"),
		ZoneName:     vip.GetString("zone-name"),
		APIBaseURL:   vip.GetString("cloudflare-api-url"),
		ProbeTimeout: time.Duration(vip.GetInt("ip-timeout")) * time.Second,
		Verify:       vip.GetBool("verify"),
		DryRun:       vip.GetBool("dry-run"),
		SourceFile:   vip.GetString("sources"),
		IP:           vip.GetString("ip"),
		Interface:    vip.GetString("interface"),
		Interval:     vip.GetDuration("interval"),
		Verbose:      vip.GetBool("verbose"),
	}
	return cfg, validate(cfg)
}

// loadDotEnv mirrors dotenv behavior: values from a .env file in the working
// directory become environment variables unless the variable is already set.
func loadDotEnv(path string) error {
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	for _, key := range env.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); !ok {
			os.Setenv(name, env.GetString(key))
		}
	}
	return nil
}

func validate(cfg config) error {
	if cfg.Record == "" {
		return errors.New("record name is required: pass it as an argument or set CLOUDFLARE_DNS_RECORD")
	}
	if !strings.Contains(cfg.Record, ".") {
		return errors.New("record must have at least one dot")
	}
	if cfg.ZoneID == "" && cfg.ZoneName == "" {
		return errors.New("either --zone-id or --zone-name is required")
	}
	if cfg.ProbeTimeout <= 0 {
		return errors.New("a timeout of 0 seconds would mean no request could ever work")
	}
	set := 0
	for _, v := range []string{cfg.IP, cfg.Interface, cfg.SourceFile} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return errors.New("--ip, --interface and --sources are mutually exclusive")
	}
	return nil
}
