package bridge

import (
	"fmt"
	"net"
	"strings"

	"github.com/c360/mavcot/errors"
)

// SessionConfig is fixed for the lifetime of one running session.
type SessionConfig struct {
	InboundPort        int    `json:"inbound_port" toml:"inbound_port" yaml:"inbound_port"`
	AircraftIdentifier string `json:"aircraft_identifier" toml:"aircraft_identifier" yaml:"aircraft_identifier"`
	DestinationIP      string `json:"destination_ip" toml:"destination_ip" yaml:"destination_ip"`
	DestinationPort    int    `json:"destination_port" toml:"destination_port" yaml:"destination_port"`
	UseMulticast       bool   `json:"use_multicast" toml:"use_multicast" yaml:"use_multicast"`
}

// DefaultSessionConfig matches the stock TAK multicast setup.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		InboundPort:        14550,
		AircraftIdentifier: "FRIENDLY_UAV",
		DestinationIP:      "239.2.3.1",
		DestinationPort:    6969,
		UseMulticast:       true,
	}
}

// Validate reports every problem with the configuration at once.
func (c SessionConfig) Validate() error {
	var problems []string

	if c.InboundPort < 1 || c.InboundPort > 65535 {
		problems = append(problems, fmt.Sprintf("inbound_port %d out of range", c.InboundPort))
	}
	if c.DestinationPort < 1 || c.DestinationPort > 65535 {
		problems = append(problems, fmt.Sprintf("destination_port %d out of range", c.DestinationPort))
	}
	if strings.TrimSpace(c.AircraftIdentifier) == "" {
		problems = append(problems, "aircraft_identifier is empty")
	}

	// use_multicast only selects the TTL, so any IPv4 destination is accepted.
	if ip := net.ParseIP(c.DestinationIP); ip == nil || ip.To4() == nil {
		problems = append(problems, fmt.Sprintf("destination_ip %q is not an IPv4 address", c.DestinationIP))
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"SessionConfig", "Validate", "check session settings")
	}
	return nil
}
