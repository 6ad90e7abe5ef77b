// Package networkmanager is the coordinator: it consumes supplicant
// events, drives the supplicant supervisor and the DHCP pair, maintains
// the peer table and the active-peer state machine, and emits delegate
// callbacks. It is the busiest package in this module, the Go analogue of
// the original's single GLib-main-loop network manager object.
package networkmanager

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/Arceliar/phony"

	"github.com/robertdigital/aethercast/device"
	"github.com/robertdigital/aethercast/supplicant"
	"github.com/robertdigital/aethercast/wpa"
)

var errSupplicantLost = errors.New("supplicant process exited or control socket hung up")

// supplicantController is the capability the coordinator needs from the
// supplicant supervisor. Production wires *supplicant.Supervisor; tests
// substitute a fake.
type supplicantController interface {
	Start() error
	Stop()
	Running() bool
	Enqueue(request wpa.Message, handler wpa.ReplyHandler)
	RespawnBudget() int
}

// Coordinator owns the peer table, the active-peer state machine, and
// drives the supplicant supervisor and DHCP pair beneath it. It embeds
// phony.Inbox so every state transition, timer firing, and socket event
// is processed one at a time without a mutex.
type Coordinator struct {
	phony.Inbox

	interfaceName string
	delegate      Delegate
	cfg           config
	logger        *slog.Logger

	supplicant supplicantController
	dhcp       dhcpController

	peers       *device.Table
	currentPeer *device.NetworkDevice
	roleIsGO    bool

	dhcpTimer    *time.Timer
	failureTimer *time.Timer
}

// New constructs a coordinator bound to interfaceName and immediately
// wires up its supplicant supervisor and DHCP pair. Call Setup to bring
// it up.
func New(interfaceName string, delegate Delegate, opts ...Option) *Coordinator {
	cfg := config{}
	configDefaults()(&cfg)
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Coordinator{
		interfaceName: interfaceName,
		delegate:      delegate,
		cfg:           cfg,
		logger:        cfg.logger,
		peers:         device.NewTable(),
	}

	supplicantOpts := append([]supplicant.Option(nil), cfg.supplicantOpts...)
	if cfg.wfdSubElements != nil {
		supplicantOpts = append(supplicantOpts, supplicant.WithWfdSubElements(cfg.wfdSubElements))
	}
	c.supplicant = supplicant.New(interfaceName, c, c.handleSupplicantEvent, cfg.logger, supplicantOpts...)
	c.dhcp = newInterfaceDhcp(interfaceName, cfg.logger, c.onAddressAssignedAsync, c.onDhcpClientFailedAsync)

	return c
}

// OnSupplicantReady implements supplicant.Delegate.
func (c *Coordinator) OnSupplicantReady(queue *wpa.CommandQueue) {
	c.Act(nil, func() {
		if c.logger != nil {
			c.logger.Info("supplicant session ready")
		}
	})
}

// OnSupplicantLost implements supplicant.Delegate: the supervisor has
// already torn the dead session down and, budget permitting, scheduled a
// respawn; the coordinator's job is to unwind whatever peer/group/DHCP
// state referred to that session.
func (c *Coordinator) OnSupplicantLost() {
	c.Act(nil, func() {
		var err error
		if c.supplicant.RespawnBudget() <= 0 {
			err = &SupplicantUnrecoverableError{}
		} else {
			err = &TransportDownError{Err: errSupplicantLost}
		}
		if c.logger != nil {
			c.logger.Warn("supplicant session lost", slog.String("error", err.Error()))
		}
		c.reset()
	})
}

func (c *Coordinator) handleSupplicantEvent(m wpa.Message) {
	c.Act(nil, func() { c.dispatchEvent(m) })
}

// Setup brings the coordinator up: if firmware loading isn't needed it
// starts the supplicant directly, otherwise it kicks off an asynchronous
// firmware load and waits for OnFirmwareLoaded.
func (c *Coordinator) Setup() {
	c.Act(nil, func() {
		if c.cfg.firmwareLoader == nil || !c.cfg.firmwareLoader.NeedsLoad() {
			c.startSupplicant()
			return
		}
		if err := c.cfg.firmwareLoader.TryLoad(); err != nil && c.logger != nil {
			c.logger.Warn("firmware load failed", slog.String("error", err.Error()))
		}
	})
}

// OnFirmwareLoaded is invoked by the firmware loader once loading
// completes, triggering the deferred supplicant start.
func (c *Coordinator) OnFirmwareLoaded() {
	c.Act(nil, func() { c.startSupplicant() })
}

func (c *Coordinator) startSupplicant() {
	if err := c.supplicant.Start(); err != nil && c.logger != nil {
		c.logger.Warn("failed to start supplicant", slog.String("error", err.Error()))
	}
}

// Scan enqueues a P2P_FIND for the given duration. There is no completion
// callback; discovered peers arrive individually via P2P-DEVICE-FOUND.
func (c *Coordinator) Scan(timeout time.Duration) {
	c.Act(nil, func() {
		seconds := int64(timeout / time.Second)
		c.supplicant.Enqueue(wpa.NewRequest("P2P_FIND").AppendInt(seconds), nil)
	})
}

// Connect targets address for pairing. It fails synchronously if address
// is not a known peer or a current peer already exists; otherwise it
// accepts the request and returns nil immediately, with progress reported
// through the delegate as P2P-GROUP-STARTED/-REMOVED events arrive.
func (c *Coordinator) Connect(address string) error {
	var result error
	phony.Block(c, func() {
		peer, ok := c.peers.Get(address)
		if !ok {
			result = &NoSuchPeerError{Address: address}
			return
		}
		if c.currentPeer != nil {
			result = &PeerAlreadyActiveError{}
			return
		}

		c.currentPeer = peer
		peer.SetState(device.StateAssociation)
		c.notifyStateChanged(peer)

		c.supplicant.Enqueue(wpa.NewRequest("P2P_CONNECT").Append(peer.Address()).Append("pbc"), func(reply wpa.Message, err error) {
			if err != nil || reply.IsFail() {
				reqErr := &RequestFailedError{Request: "P2P_CONNECT " + peer.Address()}
				if c.logger != nil {
					c.logger.Warn("supplicant request failed", slog.String("error", reqErr.Error()))
				}
			}
		})
	})
	return result
}

// DisconnectAll tears down any active group. Idempotent: issuing it with
// no current peer still enqueues the request, which the supplicant
// answers with OK regardless.
func (c *Coordinator) DisconnectAll() error {
	phony.Block(c, func() {
		c.supplicant.Enqueue(wpa.NewRequest("P2P_GROUP_REMOVE").Append(c.interfaceName), nil)
	})
	return nil
}

// Devices returns a snapshot of the peer table.
func (c *Coordinator) Devices() []*device.NetworkDevice {
	var snapshot []*device.NetworkDevice
	phony.Block(c, func() { snapshot = c.peers.Snapshot() })
	return snapshot
}

// LocalAddress returns the server's own address when acting as Group
// Owner, and nil otherwise: the address leased by the client side is not
// recorded, so it is not returned here.
func (c *Coordinator) LocalAddress() net.IP {
	var addr net.IP
	phony.Block(c, func() { addr = c.dhcp.LocalAddress() })
	return addr
}

// Running reports whether a supplicant process is currently alive.
func (c *Coordinator) Running() bool {
	var running bool
	phony.Block(c, func() { running = c.supplicant.Running() })
	return running
}

// Stop tears down any active session and kills the supplicant. Intended
// for orderly shutdown, not recoverable the way OnSupplicantLost is.
func (c *Coordinator) Stop() {
	phony.Block(c, func() {
		c.reset()
		c.supplicant.Stop()
	})
}

// Reset forces the coordinator back to its empty initial state: any
// current peer is disconnected, every tracked peer is reported lost, and
// both DHCP sides are stopped. Exposed for callers that need to force a
// resync (e.g. after an external firmware reload); also the coordinator's
// own response to OnSupplicantLost.
func (c *Coordinator) Reset() {
	phony.Block(c, func() { c.reset() })
}

func (c *Coordinator) reset() {
	if c.currentPeer != nil {
		c.currentPeer.SetState(device.StateDisconnected)
		c.notifyStateChanged(c.currentPeer)
		c.currentPeer = nil
	}
	c.cancelDhcpTimeout()
	c.cancelFailureTimer()
	c.dhcp.Stop()
	c.roleIsGO = false

	for _, peer := range c.peers.Clear() {
		if c.delegate != nil {
			c.delegate.OnDeviceLost(peer)
		}
	}
}

func (c *Coordinator) notifyStateChanged(peer *device.NetworkDevice) {
	if c.delegate != nil {
		c.delegate.OnDeviceStateChanged(peer)
	}
}

func (c *Coordinator) cancelDhcpTimeout() {
	if c.dhcpTimer != nil {
		c.dhcpTimer.Stop()
		c.dhcpTimer = nil
	}
}

func (c *Coordinator) cancelFailureTimer() {
	if c.failureTimer != nil {
		c.failureTimer.Stop()
		c.failureTimer = nil
	}
}
