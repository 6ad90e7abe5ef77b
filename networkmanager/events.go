package networkmanager

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/robertdigital/aethercast/device"
	"github.com/robertdigital/aethercast/wpa"
)

// logMalformed logs a supplicant event that failed to parse as expected.
func (c *Coordinator) logMalformed(event string, cause error) {
	if c.logger == nil {
		return
	}
	err := &MalformedMessageError{Err: cause}
	c.logger.Warn("malformed supplicant event", slog.String("event", event), slog.String("error", err.Error()))
}

// dispatchEvent routes an unsolicited supplicant event by name. It always
// runs on the coordinator's actor goroutine.
func (c *Coordinator) dispatchEvent(m wpa.Message) {
	switch m.Name() {
	case "P2P-DEVICE-FOUND":
		c.handleDeviceFound(m)
	case "P2P-DEVICE-LOST":
		c.handleDeviceLost(m)
	case "P2P-GROUP-STARTED":
		c.handleGroupStarted(m)
	case "P2P-GROUP-REMOVED":
		c.handleGroupRemoved(m)
	default:
		if c.logger != nil {
			c.logger.Debug("ignoring unhandled supplicant event", slog.String("name", m.Name()))
		}
	}
}

func (c *Coordinator) handleDeviceFound(m wpa.Message) {
	var addr string
	if err := m.Read(&addr); err != nil {
		c.logMalformed("P2P-DEVICE-FOUND", err)
		return
	}
	name, _ := m.Named("name")
	configMethods, _ := m.Named("config_methods")
	wfdInfo, _ := m.Named("wfd_dev_info")
	addr = device.NormalizeAddress(addr)

	if peer, ok := c.peers.Get(addr); ok {
		peer.SetName(name)
		peer.SetConfigMethods(configMethods)
		peer.SetWfdDeviceInfo(wfdInfo)
		return
	}

	peer := device.New(addr, name, configMethods)
	peer.SetWfdDeviceInfo(wfdInfo)
	c.peers.Put(peer)
	if c.delegate != nil {
		c.delegate.OnDeviceFound(peer)
	}
}

func (c *Coordinator) handleDeviceLost(m wpa.Message) {
	addr, ok := m.Named("p2p_dev_addr")
	if !ok {
		c.logMalformed("P2P-DEVICE-LOST", errors.New("missing p2p_dev_addr"))
		return
	}
	addr = device.NormalizeAddress(addr)

	peer, ok := c.peers.Get(addr)
	if !ok {
		return
	}
	c.peers.Remove(addr)
	if c.delegate != nil {
		c.delegate.OnDeviceLost(peer)
	}
}

func (c *Coordinator) handleGroupStarted(m wpa.Message) {
	if c.currentPeer == nil {
		return
	}
	var role string
	if err := m.Read(wpa.Skip(), &role); err != nil {
		c.logMalformed("P2P-GROUP-STARTED", err)
		return
	}

	peer := c.currentPeer
	peer.SetState(device.StateConfiguration)
	c.notifyStateChanged(peer)

	if role == "GO" {
		c.roleIsGO = true
		if err := c.dhcp.StartServer(); err != nil && c.logger != nil {
			c.logger.Warn("failed to start dhcp server", slog.String("error", err.Error()))
		}
		peer.SetState(device.StateConnected)
		c.notifyStateChanged(peer)
		return
	}

	// Anything other than exactly "GO" is treated as client, per the
	// role-token resolution: other supplicant builds may emit different
	// tokens for the peer side.
	c.roleIsGO = false
	if err := c.dhcp.StartClient(); err != nil && c.logger != nil {
		c.logger.Warn("failed to start dhcp client", slog.String("error", err.Error()))
	}
	c.armDhcpTimeout()
}

func (c *Coordinator) handleGroupRemoved(m wpa.Message) {
	if c.currentPeer == nil {
		return
	}
	var role string
	if err := m.Read(wpa.Skip(), &role); err != nil {
		c.logMalformed("P2P-GROUP-REMOVED", err)
		return
	}
	reason, _ := m.Named("reason")

	peer := c.currentPeer
	switch reason {
	case "FORMATION_FAILED", "PSK_FAILURE", "FREQ_CONFLICT":
		peer.SetState(device.StateFailure)
		formationErr := &GroupFormationFailedError{Reason: reason}
		if c.logger != nil {
			c.logger.Warn("group formation failed", slog.String("error", formationErr.Error()))
		}
	default:
		peer.SetState(device.StateDisconnected)
	}
	c.notifyStateChanged(peer)

	c.currentPeer = nil
	c.cancelDhcpTimeout()
	c.cancelFailureTimer()
	c.dhcp.Stop()
	c.roleIsGO = false
}

func (c *Coordinator) armDhcpTimeout() {
	c.cancelDhcpTimeout()
	c.dhcpTimer = time.AfterFunc(c.cfg.dhcpTimeout, func() {
		c.Act(nil, func() { c.onDhcpTimeout() })
	})
}

func (c *Coordinator) onDhcpTimeout() {
	if c.currentPeer == nil {
		return
	}
	peer := c.currentPeer
	if c.logger != nil {
		err := &DhcpTimeoutError{}
		c.logger.Warn("dhcp acquisition failed", slog.String("address", peer.Address()), slog.String("error", err.Error()))
	}
	peer.SetState(device.StateFailure)
	c.notifyStateChanged(peer)
	c.armFailureCooldown(peer)
}

func (c *Coordinator) armFailureCooldown(peer *device.NetworkDevice) {
	c.cancelFailureTimer()
	c.failureTimer = time.AfterFunc(c.cfg.peerFailureTimeout, func() {
		c.Act(nil, func() { c.onFailureCooldown(peer) })
	})
}

// onFailureCooldown demotes a failed peer back to idle and clears it as
// the current peer, so a fresh Connect can target a new peer afterwards.
func (c *Coordinator) onFailureCooldown(peer *device.NetworkDevice) {
	if c.currentPeer != peer {
		return
	}
	peer.SetState(device.StateIdle)
	c.notifyStateChanged(peer)
	c.currentPeer = nil
}

func (c *Coordinator) onAddressAssignedAsync(addr net.IP) {
	c.Act(nil, func() { c.onAddressAssigned(addr) })
}

func (c *Coordinator) onAddressAssigned(addr net.IP) {
	if c.currentPeer == nil {
		return
	}
	c.cancelDhcpTimeout()
	c.currentPeer.SetState(device.StateConnected)
	c.notifyStateChanged(c.currentPeer)
}

func (c *Coordinator) onDhcpClientFailedAsync(err error) {
	c.Act(nil, func() {
		if c.logger != nil {
			c.logger.Warn("dhcp client failed", slog.String("error", err.Error()))
		}
	})
}
