package networkmanager

import (
	"log/slog"
	"net"

	"github.com/robertdigital/aethercast/dhcp"
)

// dhcpController is the capability the coordinator needs from the DHCP
// pair: start exactly one side depending on role, stop both, and report
// the address currently held locally. Production wires *interfaceDhcp;
// tests substitute a fake so group-formation scenarios don't need a real
// interface or DHCP exchange.
type dhcpController interface {
	StartClient() error
	StartServer() error
	Stop()
	LocalAddress() net.IP
}

// interfaceDhcp wraps the dhcp package's Client/Server pair bound to a
// single P2P interface. Results are reported back through callbacks
// supplied at construction, which the coordinator wires to re-enter its
// own actor via Act — the same shape the supplicant package uses to
// report a watched process's exit back onto its actor.
type interfaceDhcp struct {
	ifaceName string
	logger    *slog.Logger

	onAddress      func(net.IP)
	onClientFailed func(error)

	client       *dhcp.Client
	server       *dhcp.Server
	localAddress net.IP
}

func newInterfaceDhcp(ifaceName string, logger *slog.Logger, onAddress func(net.IP), onClientFailed func(error)) *interfaceDhcp {
	return &interfaceDhcp{
		ifaceName:      ifaceName,
		logger:         logger,
		onAddress:      onAddress,
		onClientFailed: onClientFailed,
	}
}

func (d *interfaceDhcp) StartClient() error {
	iface, err := net.InterfaceByName(d.ifaceName)
	if err != nil {
		return err
	}
	client, err := dhcp.NewClient(iface)
	if err != nil {
		return err
	}
	d.client = client

	go func() {
		lease, err := client.Acquire()
		if err != nil {
			if d.onClientFailed != nil {
				d.onClientFailed(err)
			}
			return
		}
		if d.onAddress != nil {
			d.onAddress(lease.Address)
		}
	}()
	return nil
}

// StartServer runs the group-owner side of the DHCP pair. Lease grants
// here are reported with onLeaseGranted purely for logging: unlike the
// client side, a granted lease never changes the coordinator's own
// state, since as group owner it is already connected before the peer
// requests an address.
func (d *interfaceDhcp) StartServer() error {
	server, err := dhcp.NewServer(d.ifaceName, d.onLeaseGranted, dhcp.WithServerLogger(d.logger))
	if err != nil {
		return err
	}
	d.server = server
	d.localAddress = server.LocalAddress()

	go func() {
		if err := server.ListenAndServe(d.ifaceName); err != nil && d.logger != nil {
			d.logger.Warn("dhcp server exited", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Stop tears down whichever side is running. The client's socket is
// closed; no DHCPRELEASE is sent, so the lease is not released to the
// server. The server's socket is left to close when its ListenAndServe
// goroutine unwinds, since krolaw/dhcp4's ListenAndServeIf offers no
// explicit shutdown handle, and the address NewServer assigned to the
// interface is not removed.
func (d *interfaceDhcp) Stop() {
	if d.client != nil {
		_ = d.client.Close()
		d.client = nil
	}
	d.server = nil
	d.localAddress = nil
}

func (d *interfaceDhcp) LocalAddress() net.IP {
	return d.localAddress
}

func (d *interfaceDhcp) onLeaseGranted(mac net.HardwareAddr, addr net.IP) {
	if d.logger != nil {
		d.logger.Info("dhcp lease granted", slog.String("mac", mac.String()), slog.String("address", addr.String()))
	}
}
