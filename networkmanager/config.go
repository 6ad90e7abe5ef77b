package networkmanager

import (
	"log/slog"
	"time"

	"github.com/robertdigital/aethercast/supplicant"
)

const (
	defaultDhcpTimeout        = 5 * time.Second
	defaultPeerFailureTimeout = 5 * time.Second
)

type config struct {
	dhcpTimeout        time.Duration
	peerFailureTimeout time.Duration
	wfdSubElements     []string
	logger             *slog.Logger
	firmwareLoader     FirmwareLoader
	supplicantOpts     []supplicant.Option
}

// Option is a functional option that tunes one setting on a Coordinator.
type Option func(*config)

func configDefaults() Option {
	return func(c *config) {
		c.dhcpTimeout = defaultDhcpTimeout
		c.peerFailureTimeout = defaultPeerFailureTimeout
	}
}

// WithDhcpTimeout overrides how long the coordinator waits for a DHCP
// lease after a group forms before declaring the peer failed.
func WithDhcpTimeout(d time.Duration) Option {
	return func(c *config) { c.dhcpTimeout = d }
}

// WithPeerFailureTimeout overrides how long a failed peer sits in the
// failure state before being demoted back to idle.
func WithPeerFailureTimeout(d time.Duration) Option {
	return func(c *config) { c.peerFailureTimeout = d }
}

// WithWfdSubElements overrides the WFD sub-elements published once the
// supplicant session comes up. Forwarded to the supplicant supervisor.
func WithWfdSubElements(elements []string) Option {
	return func(c *config) { c.wfdSubElements = append([]string(nil), elements...) }
}

// WithLogger attaches a logger used by the coordinator and forwarded to
// the supplicant supervisor it owns.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithFirmwareLoader attaches the external firmware-loading collaborator
// consulted by Setup.
func WithFirmwareLoader(loader FirmwareLoader) Option {
	return func(c *config) { c.firmwareLoader = loader }
}

// WithSupplicantOptions forwards additional options straight to the
// supplicant.Supervisor the coordinator constructs internally, e.g.
// supplicant.WithRespawnLimit, supplicant.WithRespawnDelay,
// supplicant.WithBinaryPath, supplicant.WithDeviceName.
func WithSupplicantOptions(opts ...supplicant.Option) Option {
	return func(c *config) { c.supplicantOpts = append(c.supplicantOpts, opts...) }
}
