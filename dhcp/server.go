package dhcp

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	dhcp4 "github.com/krolaw/dhcp4"
	"github.com/vishvananda/netlink"
)

const (
	defaultLeaseDuration = 2 * time.Hour
	defaultPoolSize      = 8
)

type serverConfig struct {
	serverAddr    net.IP
	subnetMask    net.IPMask
	poolStart     net.IP
	poolSize      int
	leaseDuration time.Duration
	logger        *slog.Logger
}

// ServerOption is a functional option that tunes one setting on a Server.
type ServerOption func(*serverConfig)

func serverDefaults() ServerOption {
	return func(c *serverConfig) {
		c.serverAddr = net.IPv4(192, 168, 49, 1)
		c.subnetMask = net.IPv4Mask(255, 255, 255, 0)
		c.poolStart = net.IPv4(192, 168, 49, 50)
		c.poolSize = defaultPoolSize
		c.leaseDuration = defaultLeaseDuration
	}
}

// WithServerAddress overrides the group owner's own address (assigned to
// the P2P interface) and its subnet mask. The range handed to clients is
// not derived from it; set that with WithPool.
func WithServerAddress(addr net.IP, mask net.IPMask) ServerOption {
	return func(c *serverConfig) {
		c.serverAddr = addr
		c.subnetMask = mask
	}
}

// WithPool overrides the first leasable address and how many addresses
// follow it.
func WithPool(start net.IP, size int) ServerOption {
	return func(c *serverConfig) {
		c.poolStart = start
		c.poolSize = size
	}
}

// WithLeaseDuration overrides how long a handed-out lease is valid for.
func WithLeaseDuration(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.leaseDuration = d }
}

// WithServerLogger attaches a logger for accepted/declined requests.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = logger }
}

// Server hands out a single-address-at-a-time DHCPv4 lease on the P2P
// interface once this device is the group owner. It implements
// dhcp4.Handler (ServeDHCP).
type Server struct {
	cfg serverConfig

	mu      sync.Mutex
	leases  map[string]net.IP // MAC -> address
	nextIdx int

	onLeaseGranted func(mac net.HardwareAddr, addr net.IP)
}

// NewServer assigns cfg.serverAddr to iface (the group owner's own
// interface address) and returns a Server ready to be handed to
// ListenAndServeIf.
func NewServer(ifaceName string, onLeaseGranted func(mac net.HardwareAddr, addr net.IP), opts ...ServerOption) (*Server, error) {
	cfg := serverConfig{}
	serverDefaults()(&cfg)
	for _, opt := range opts {
		opt(&cfg)
	}

	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("dhcp: looking up interface %s: %w", ifaceName, err)
	}
	ones, _ := cfg.subnetMask.Size()
	nladdr, err := netlink.ParseAddr(fmt.Sprintf("%s/%d", cfg.serverAddr, ones))
	if err != nil {
		return nil, fmt.Errorf("dhcp: parsing server address: %w", err)
	}
	if err := netlink.AddrAdd(link, nladdr); err != nil {
		return nil, fmt.Errorf("dhcp: assigning %s to %s: %w", cfg.serverAddr, ifaceName, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return nil, fmt.Errorf("dhcp: bringing up %s: %w", ifaceName, err)
	}

	return &Server{
		cfg:            cfg,
		leases:         make(map[string]net.IP),
		onLeaseGranted: onLeaseGranted,
	}, nil
}

// LocalAddress returns the group owner's own address, the one assigned to
// the interface in NewServer.
func (s *Server) LocalAddress() net.IP {
	return s.cfg.serverAddr
}

// ListenAndServe binds the DHCP server socket on ifaceName and blocks
// until it fails or the caller kills the owning goroutine. Run it the same
// way the supplicant package runs cmd.Wait(): on a dedicated goroutine that
// reports failures back through the coordinator's actor.
func (s *Server) ListenAndServe(ifaceName string) error {
	return dhcp4.ListenAndServeIf(ifaceName, s)
}

// ServeDHCP implements dhcp4.Handler.
func (s *Server) ServeDHCP(req dhcp4.Packet, msgType dhcp4.MessageType, options dhcp4.Options) dhcp4.Packet {
	switch msgType {
	case dhcp4.Discover:
		addr := s.leaseFor(req.CHAddr())
		return dhcp4.ReplyPacket(req, dhcp4.Offer, s.cfg.serverAddr, addr, s.cfg.leaseDuration, s.optionSlice())

	case dhcp4.Request:
		if serverID, ok := options[dhcp4.OptionServerIdentifier]; ok && !net.IP(serverID).Equal(s.cfg.serverAddr) {
			return nil
		}
		addr := s.leaseFor(req.CHAddr())
		reqAddr := net.IP(options[dhcp4.OptionRequestedIPAddress])
		if reqAddr == nil {
			reqAddr = req.CIAddr()
		}
		if reqAddr != nil && !reqAddr.Equal(addr) {
			return dhcp4.ReplyPacket(req, dhcp4.NAK, s.cfg.serverAddr, nil, 0, nil)
		}
		if s.onLeaseGranted != nil {
			s.onLeaseGranted(req.CHAddr(), addr)
		}
		if s.cfg.logger != nil {
			s.cfg.logger.Info("dhcp lease granted", slog.String("mac", req.CHAddr().String()), slog.String("addr", addr.String()))
		}
		return dhcp4.ReplyPacket(req, dhcp4.ACK, s.cfg.serverAddr, addr, s.cfg.leaseDuration, s.optionSlice())

	case dhcp4.Release, dhcp4.Decline:
		s.mu.Lock()
		delete(s.leases, req.CHAddr().String())
		s.mu.Unlock()
	}
	return nil
}

func (s *Server) optionSlice() []dhcp4.Option {
	return []dhcp4.Option{
		{Code: dhcp4.OptionSubnetMask, Value: s.cfg.subnetMask},
		{Code: dhcp4.OptionRouter, Value: s.cfg.serverAddr},
	}
}

// leaseFor returns the address already leased to mac, or the next address
// in the pool in rotation; after cfg.poolSize new MACs it wraps around and
// may hand out an address still leased to another MAC. There is only ever
// one other party in a Wi-Fi Direct group, so a single-slot pool growing to cfg.poolSize is generous
// headroom rather than a real multi-client allocator.
func (s *Server) leaseFor(mac net.HardwareAddr) net.IP {
	key := mac.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if addr, ok := s.leases[key]; ok {
		return addr
	}

	addr := dhcp4.IPAdd(s.cfg.poolStart, s.nextIdx%s.cfg.poolSize)
	s.nextIdx++
	s.leases[key] = addr
	return addr
}
