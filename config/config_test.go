package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavcot/errors"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 14550, cfg.Session.InboundPort)
	assert.Equal(t, "FRIENDLY_UAV", cfg.Session.AircraftIdentifier)
	assert.Equal(t, "239.2.3.1", cfg.Session.DestinationIP)
	assert.Equal(t, 6969, cfg.Session.DestinationPort)
	assert.True(t, cfg.Session.UseMulticast)
	assert.False(t, cfg.Session.Autostart)
	assert.Equal(t, "mavcot.control", cfg.NATS.ControlSubject)
	assert.Equal(t, 60*time.Second, cfg.Redis.TTL.Duration)
}

func TestLoad_Formats(t *testing.T) {
	dir := t.TempDir()

	tomlPath := writeFile(t, dir, "mavcot.toml", `
[session]
inbound_port = 14551
aircraft_identifier = "HAWK_1"
destination_ip = "127.0.0.1"
destination_port = 4242
use_multicast = false
autostart = true

[logging]
level = "debug"
format = "text"

[redis]
enabled = true
ttl = "30s"
`)

	yamlPath := writeFile(t, dir, "mavcot.yaml", `
session:
  inbound_port: 14551
  aircraft_identifier: HAWK_1
  destination_ip: 127.0.0.1
  destination_port: 4242
  use_multicast: false
  autostart: true
logging:
  level: debug
  format: text
redis:
  enabled: true
  ttl: 30s
`)

	for _, path := range []string{tomlPath, yamlPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			cfg, err := Load(path)
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			assert.Equal(t, 14551, cfg.Session.InboundPort)
			assert.Equal(t, "HAWK_1", cfg.Session.AircraftIdentifier)
			assert.False(t, cfg.Session.UseMulticast)
			assert.True(t, cfg.Session.Autostart)
			assert.Equal(t, "debug", cfg.Logging.Level)
			assert.True(t, cfg.Redis.Enabled)
			assert.Equal(t, 30*time.Second, cfg.Redis.TTL.Duration)
			// Untouched sections keep defaults.
			assert.Equal(t, 9090, cfg.Metrics.Port)
			assert.Equal(t, "mavcot:status", cfg.Redis.Key)

			b := cfg.Session.Bridge()
			assert.Equal(t, 4242, b.DestinationPort)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "nope.toml")},
		{"unknown extension", writeFile(t, dir, "mavcot.ini", "x=1")},
		{"bad toml", writeFile(t, dir, "bad.toml", "[session\n")},
		{"bad yaml", writeFile(t, dir, "bad.yaml", "session: [1, 2\n")},
		{"bad duration", writeFile(t, dir, "ttl.toml", "[redis]\nttl = \"soon\"\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoadWithFallback(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, used, err := LoadWithFallback("")
	require.NoError(t, err)
	assert.Empty(t, used, "no file falls back to defaults")
	assert.Equal(t, Default(), cfg)

	writeFile(t, dir, "mavcot.toml", "[session]\naircraft_identifier = \"ROOT\"\n")
	cfg, used, err = LoadWithFallback("")
	require.NoError(t, err)
	assert.Equal(t, "mavcot.toml", used)
	assert.Equal(t, "ROOT", cfg.Session.AircraftIdentifier)

	writeFile(t, dir, "configs/mavcot.toml", "[session]\naircraft_identifier = \"CONFIGS\"\n")
	cfg, used, err = LoadWithFallback("")
	require.NoError(t, err)
	assert.Equal(t, "configs/mavcot.toml", used)
	assert.Equal(t, "CONFIGS", cfg.Session.AircraftIdentifier)

	explicit := writeFile(t, dir, "other.yaml", "session:\n  aircraft_identifier: EXPLICIT\n")
	cfg, used, err = LoadWithFallback(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, used)
	assert.Equal(t, "EXPLICIT", cfg.Session.AircraftIdentifier)

	_, _, err = LoadWithFallback(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err, "an explicit path must exist")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MAVCOT_INBOUND_PORT", "15000")
	t.Setenv("MAVCOT_AIRCRAFT_ID", "ENV_UAV")
	t.Setenv("MAVCOT_DEST_IP", "127.0.0.1")
	t.Setenv("MAVCOT_MULTICAST", "false")
	t.Setenv("MAVCOT_AUTOSTART", "true")
	t.Setenv("MAVCOT_LOG_LEVEL", "warn")
	t.Setenv("MAVCOT_NATS_URL", "nats://broker:4222")
	t.Setenv("MAVCOT_REDIS_ADDR", "cache:6379")
	t.Setenv("MAVCOT_REDIS_TTL", "2m")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 15000, cfg.Session.InboundPort)
	assert.Equal(t, "ENV_UAV", cfg.Session.AircraftIdentifier)
	assert.False(t, cfg.Session.UseMulticast)
	assert.True(t, cfg.Session.Autostart)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.TTL.Duration)
}

func TestApplyEnv_BadValues(t *testing.T) {
	t.Setenv("MAVCOT_DEST_PORT", "sixty-nine")
	t.Setenv("MAVCOT_MULTICAST", "perhaps")

	err := Default().ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAVCOT_DEST_PORT")
	assert.Contains(t, err.Error(), "MAVCOT_MULTICAST")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "MAVCOT_AIRCRAFT_ID=DOTENV_UAV\n")

	t.Setenv("MAVCOT_AIRCRAFT_ID", "")
	require.NoError(t, os.Unsetenv("MAVCOT_AIRCRAFT_ID"))

	LoadDotEnv(path, filepath.Join(dir, "missing.env"))
	assert.Equal(t, "DOTENV_UAV", os.Getenv("MAVCOT_AIRCRAFT_ID"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"fills empty optionals", func(c *Config) { c.Logging = LoggingConfig{}; c.Redis.Key = "" }, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"unicast ip keeps multicast flag", func(c *Config) { c.Session.DestinationIP = "192.168.1.10" }, ""},
		{"destination not ipv4", func(c *Config) { c.Session.DestinationIP = "tak.local" }, "destination_ip"},
		{"bad inbound port", func(c *Config) { c.Session.InboundPort = 70000 }, "inbound_port"},
		{"metrics port", func(c *Config) { c.Metrics.Port = -1 }, "metrics.port"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"nats without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }, "nats.url"},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis.addr"},
		{"tiny ttl", func(c *Config) { c.Redis.TTL = Duration{time.Millisecond} }, "redis.ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "mavcot:status", cfg.Redis.Key)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}
