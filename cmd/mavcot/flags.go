package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	EnvFile         string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	Autostart       bool
	ShowVersion     bool
	Validate        bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigPath, "config", getEnv("MAVCOT_CONFIG", ""),
		"Path to a .toml or .yaml configuration file (env: MAVCOT_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", getEnv("MAVCOT_CONFIG", ""),
		"Shorthand for --config")
	fs.StringVar(&cfg.EnvFile, "env-file", getEnv("MAVCOT_ENV_FILE", ".env"),
		"Optional dotenv file loaded before environment overrides (env: MAVCOT_ENV_FILE)")
	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error. Overrides the config file")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text. Overrides the config file")
	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("MAVCOT_DEBUG", false),
		"Enable debug logging (env: MAVCOT_DEBUG)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("MAVCOT_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: MAVCOT_SHUTDOWN_TIMEOUT)")
	fs.BoolVar(&cfg.Autostart, "autostart", false,
		"Start a session with the configured defaults at boot")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - MAVLink to Cursor-on-Target bridge

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Listen on 14550 and multicast CoT to 239.2.3.1:6969 at boot
  %s --autostart

  # Use a config file with text logs
  %s --config=configs/mavcot.toml --log-format=text

  # Control a running bridge over NATS
  export MAVCOT_NATS_URL=nats://localhost:4222
  %s
  nats request mavcot.control.start '{"aircraft_identifier":"HAWK_1"}'

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
