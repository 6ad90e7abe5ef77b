package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robertdigital/aethercast/device"
	"github.com/robertdigital/aethercast/logging"
	"github.com/robertdigital/aethercast/networkmanager"
	"github.com/robertdigital/aethercast/supplicant"
)

var (
	ifname     = flag.String("ifname", "p2p0", "P2P interface name to bind to")
	scanSecs   = flag.Int("scan", 30, "P2P_FIND duration in seconds")
	deviceName = flag.String("device-name", "aethercast", "device_name advertised in the supplicant config")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("MIRACAST_SUPPLICANT_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := logging.New(*ifname, level, os.Stderr)

	delegate := &loggingDelegate{logger: logger}
	coordinator := networkmanager.New(*ifname, delegate,
		networkmanager.WithLogger(logger),
		networkmanager.WithSupplicantOptions(supplicant.WithDeviceName(*deviceName)),
	)

	coordinator.Setup()
	coordinator.Scan(time.Duration(*scanSecs) * time.Second)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	coordinator.Stop()
}

// loggingDelegate just logs each callback. A real front-end would
// reflect these onto the system bus instead.
type loggingDelegate struct {
	logger *slog.Logger
}

func (d *loggingDelegate) OnDeviceFound(peer *device.NetworkDevice) {
	d.logger.Info("device found", slog.String("address", peer.Address()), slog.String("name", peer.Name()))
}

func (d *loggingDelegate) OnDeviceLost(peer *device.NetworkDevice) {
	d.logger.Info("device lost", slog.String("address", peer.Address()))
}

func (d *loggingDelegate) OnDeviceStateChanged(peer *device.NetworkDevice) {
	d.logger.Info("device state changed", slog.String("address", peer.Address()), slog.String("state", peer.State().String()))
}
