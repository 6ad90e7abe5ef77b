// Package dhcp wraps the DHCPv4 exchanges a Wi-Fi Direct group member needs:
// a client that acquires a lease as the group client, and a server that
// hands one out as the group owner. Both sides run over the freshly formed
// P2P interface, which starts out addressless.
package dhcp

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	dhcp4client "github.com/d2g/dhcp4client"
	dhcp4 "github.com/d2g/dhcp4"
)

// Lease is the subset of an acquired DHCPACK the coordinator needs to bring
// the interface up and hand an address to the delegate above it.
type Lease struct {
	Address   net.IP
	Netmask   net.IP
	ServerID  net.IP
	LeaseTime time.Duration

	acknowledged dhcp4.Packet
}

type clientConfig struct {
	timeout time.Duration
}

// ClientOption is a functional option that tunes one setting on a Client.
type ClientOption func(*clientConfig)

func clientDefaults() ClientOption {
	return func(c *clientConfig) { c.timeout = 10 * time.Second }
}

// WithClientTimeout overrides how long a single Request/Renew round waits
// for a server response before giving up.
func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = timeout }
}

// Client acquires a single DHCPv4 lease on one interface. It is not an
// actor: acquisition is a one-shot blocking call the caller is expected to
// run on a dedicated goroutine and report back through its own actor, the
// same way the supplicant package's watch goroutine reports process exits
// back through Act.
type Client struct {
	cfg   clientConfig
	iface *net.Interface
	sock  dhcp4client.ConnectionInt
}

// NewClient opens a link-layer raw socket on iface, suitable for DHCP
// discovery before the interface has an address.
func NewClient(iface *net.Interface, opts ...ClientOption) (*Client, error) {
	cfg := clientConfig{}
	clientDefaults()(&cfg)
	for _, opt := range opts {
		opt(&cfg)
	}

	sock, err := dhcp4client.NewPacketSock(iface.Index)
	if err != nil {
		return nil, fmt.Errorf("dhcp: opening packet socket on %s: %w", iface.Name, err)
	}

	return &Client{cfg: cfg, iface: iface, sock: sock}, nil
}

// Acquire runs the full DISCOVER/OFFER/REQUEST/ACK exchange and blocks
// until a lease is granted or the client's timeout elapses. The caller is
// expected to race this against its own timer (the coordinator's
// DHCP-acquisition deadline) since dhcp4client's internal timeout is
// best-effort.
func (c *Client) Acquire() (Lease, error) {
	dc, err := dhcp4client.New(
		dhcp4client.HardwareAddr(c.iface.HardwareAddr),
		dhcp4client.Connection(c.sock),
		dhcp4client.Timeout(c.cfg.timeout),
	)
	if err != nil {
		return Lease{}, fmt.Errorf("dhcp: constructing client: %w", err)
	}

	ok, packet, err := dc.Request()
	if err != nil {
		return Lease{}, fmt.Errorf("dhcp: requesting lease: %w", err)
	}
	if !ok {
		return Lease{}, fmt.Errorf("dhcp: server declined or timed out")
	}

	return leaseFromPacket(packet), nil
}

// Release notifies the server the lease is no longer needed. Best effort;
// group teardown proceeds regardless of the outcome.
func (c *Client) Release(lease Lease) error {
	dc, err := dhcp4client.New(dhcp4client.Connection(c.sock))
	if err != nil {
		return err
	}
	return dc.Release(lease.acknowledged)
}

// Close releases the underlying socket.
func (c *Client) Close() error {
	if c.sock == nil {
		return nil
	}
	return c.sock.Close()
}

func leaseFromPacket(packet dhcp4.Packet) Lease {
	options := packet.ParseOptions()
	lease := Lease{
		Address:      packet.YIAddr(),
		ServerID:     net.IP(options[dhcp4.OptionServerIdentifier]),
		acknowledged: packet,
	}
	if mask, ok := options[dhcp4.OptionSubnetMask]; ok {
		lease.Netmask = net.IP(mask)
	}
	if raw, ok := options[dhcp4.OptionIPAddressLeaseTime]; ok && len(raw) == 4 {
		lease.LeaseTime = time.Duration(binary.BigEndian.Uint32(raw)) * time.Second
	}
	return lease
}
