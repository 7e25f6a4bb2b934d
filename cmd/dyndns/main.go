package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/ipflock/dyndns"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// Exit codes are part of the tool's contract with external schedulers:
// resolution failures and provider failures are distinguishable without
// parsing log output.
const (
	exitUsage      = 1
	exitResolution = 2
	exitProvider   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "dyndns:", err)
		return exitUsage
	}
	logger := newLogger(cfg.Verbose)
	logger.Debug().Str("record", cfg.Record).Bool("verify", cfg.Verify).Bool("dry_run", cfg.DryRun).Msg("config is valid")

	token := cfg.Token
	if token == "" {
		if token, err = promptToken(logger); err != nil {
			logger.Error().Err(err).Msg("no usable API token")
			return exitUsage
		}
	}

	var cfOptions []dyndns.CloudflareOption
	if cfg.ZoneID != "" {
		cfOptions = append(cfOptions, dyndns.WithZoneID(cfg.ZoneID))
	}
	if cfg.ZoneName != "" {
		cfOptions = append(cfOptions, dyndns.WithZoneName(cfg.ZoneName))
	}
	if cfg.APIBaseURL != "" {
		cfOptions = append(cfOptions, dyndns.WithAPIBaseURL(cfg.APIBaseURL))
	}

	options := []dyndns.ClientOption{
		dyndns.UsingCloudflare(token, cfOptions...),
		dyndns.WithLogger(logger),
		dyndns.WithProbeTimeout(cfg.ProbeTimeout),
	}
	switch {
	case cfg.IP != "":
		options = append(options, dyndns.UsingResolver(dyndns.FromString(cfg.IP)))
	case cfg.Interface != "":
		options = append(options, dyndns.UsingSources(dyndns.InterfaceSource(cfg.Interface)))
	case cfg.SourceFile != "":
		sources, err := dyndns.LoadSources(cfg.SourceFile)
		if err != nil {
			logger.Error().Err(err).Msg("error loading source list")
			return exitUsage
		}
		options = append(options, dyndns.UsingSources(sources...))
	}
	if cfg.Verify {
		options = append(options, dyndns.WithVerify())
	}
	if cfg.DryRun {
		options = append(options, dyndns.WithDryRun())
	}

	client, err := dyndns.New(cfg.Record, options...)
	if err != nil {
		logger.Error().Err(err).Msg("error creating dyndns client")
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := client.Sync(ctx)
	if err != nil {
		return exitCode(logger, err)
	}
	report(os.Stdout, res)

	if cfg.Interval > 0 {
		dyndns.RunDaemon(ctx, client, cfg.Interval)
	}
	return 0
}

// report writes the suppressed dry-run address as a bare string so other
// tooling can consume it from stdout.
func report(w io.Writer, res dyndns.SyncResult) {
	if res.Action == dyndns.WouldUpdate {
		fmt.Fprintln(w, res.IP)
	}
}

func exitCode(logger zerolog.Logger, err error) int {
	switch {
	case errors.Is(err, dyndns.ErrProvider):
		logger.Error().Err(err).Msg("provider request failed")
		return exitProvider
	case errors.Is(err, dyndns.ErrAllFailed):
		logger.Error().Err(err).Msg("all IP sources failed")
		return exitResolution
	case errors.Is(err, dyndns.ErrNoConsensus):
		logger.Error().Err(err).Msg("IP sources did not reach consensus")
		return exitResolution
	default:
		logger.Error().Err(err).Msg("sync failed")
		return exitUsage
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// promptToken asks for the API token interactively and verifies it against
// the API before returning it.
func promptToken(logger zerolog.Logger) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", errors.New("no API token configured: set --token or CLOUDFLARE_API_TOKEN")
	}
	fmt.Fprint(os.Stderr, "Enter Cloudflare API token: ")
	bytekey, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("error reading from stdin: %w", err)
	}
	token := strings.TrimSpace(string(bytekey))
	if token == "" {
		return "", errors.New("token cannot be empty")
	}

	api, err := cloudflare.NewWithAPIToken(token)
	if err != nil {
		return "", fmt.Errorf("error creating api client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Debug().Msg("verifying token")
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return "", fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return "", fmt.Errorf("expected api token status to be \"active\"; got %q", result.Status)
	}
	logger.Debug().Msg("token verified successfully")
	return token, nil
}
