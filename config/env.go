package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/c360/mavcot/errors"
)

// EnvPrefix prefixes every override variable.
const EnvPrefix = "MAVCOT_"

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// ApplyEnv overrides fields from MAVCOT_* variables. Setting a NATS URL or
// Redis address also enables that service.
func (c *Config) ApplyEnv() error {
	var errs []string
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q is not an integer", EnvPrefix, name, v))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q is not a boolean", EnvPrefix, name, v))
				return
			}
			*dst = b
		}
	}

	num("INBOUND_PORT", &c.Session.InboundPort)
	str("AIRCRAFT_ID", &c.Session.AircraftIdentifier)
	str("DEST_IP", &c.Session.DestinationIP)
	num("DEST_PORT", &c.Session.DestinationPort)
	flag("MULTICAST", &c.Session.UseMulticast)
	flag("AUTOSTART", &c.Session.Autostart)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	flag("METRICS_ENABLED", &c.Metrics.Enabled)
	num("METRICS_PORT", &c.Metrics.Port)

	if v, ok := os.LookupEnv(EnvPrefix + "NATS_URL"); ok && v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	if v, ok := os.LookupEnv(EnvPrefix + "REDIS_ADDR"); ok && v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v, ok := os.LookupEnv(EnvPrefix + "REDIS_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sREDIS_TTL=%q is not a duration", EnvPrefix, v))
		} else {
			c.Redis.TTL = Duration{d}
		}
	}

	if len(errs) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(errs, "; ")),
			"config", "ApplyEnv", "parse environment")
	}
	return nil
}
