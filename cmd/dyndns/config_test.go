package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig([]string{"--zone-id", "z1", "home.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "home.example.com", cfg.Record)
	assert.Equal(t, "z1", cfg.ZoneID)
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout)
	assert.False(t, cfg.Verify)
	assert.False(t, cfg.DryRun)
	assert.Zero(t, cfg.Interval)
}

func TestLoadConfigEnvOverridesDefault(t *testing.T) {
	t.Setenv("CLOUDFLARE_ZONE_NAME", "example.com")
	t.Setenv("CLOUDFLARE_DNS_RECORD", "home.example.com")
	t.Setenv("DYNDNS_VERIFY", "true")
	t.Setenv("DYNDNS_IP_TIMEOUT", "9")

	cfg, err := loadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "home.example.com", cfg.Record)
	assert.Equal(t, "example.com", cfg.ZoneName)
	assert.True(t, cfg.Verify)
	assert.Equal(t, 9*time.Second, cfg.ProbeTimeout)
}

func TestLoadConfigFlagOverridesEnv(t *testing.T) {
	t.Setenv("CLOUDFLARE_ZONE_NAME", "env.example.com")
	t.Setenv("CLOUDFLARE_DNS_RECORD", "env-record.example.com")

	cfg, err := loadConfig([]string{"--zone-name", "flag.example.com", "arg-record.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "flag.example.com", cfg.ZoneName)
	assert.Equal(t, "arg-record.example.com", cfg.Record, "the positional argument outranks the environment")
}

func TestLoadConfigDotEnv(t *testing.T) {
	// t.Setenv records the original state so the os.Unsetenv and the value
	// injected from the .env file are both rolled back after the test.
	t.Setenv("CLOUDFLARE_API_TOKEN", "placeholder")
	os.Unsetenv("CLOUDFLARE_API_TOKEN")
	t.Setenv("CLOUDFLARE_ZONE_ID", "from-env")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("CLOUDFLARE_API_TOKEN=file-token\nCLOUDFLARE_ZONE_ID=from-file\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := loadConfig([]string{"home.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Token)
	assert.Equal(t, "from-env", cfg.ZoneID, "a real environment variable outranks the .env file")
}

func TestValidate(t *testing.T) {
	base := config{Record: "home.example.com", ZoneID: "z1", ProbeTimeout: 5 * time.Second}

	assert.NoError(t, validate(base))

	cfg := base
	cfg.Record = ""
	assert.ErrorContains(t, validate(cfg), "record name is required")

	cfg = base
	cfg.Record = "localhost"
	assert.ErrorContains(t, validate(cfg), "dot")

	cfg = base
	cfg.ZoneID = ""
	assert.ErrorContains(t, validate(cfg), "zone")

	cfg = base
	cfg.ProbeTimeout = 0
	assert.ErrorContains(t, validate(cfg), "timeout of 0 seconds")

	cfg = base
	cfg.IP = "203.0.113.7"
	cfg.Interface = "eth0"
	assert.ErrorContains(t, validate(cfg), "mutually exclusive")
}
