package dhcp

import (
	"net"
	"testing"

	dhcp4 "github.com/krolaw/dhcp4"
)

func newTestServer() *Server {
	cfg := serverConfig{}
	serverDefaults()(&cfg)
	return &Server{cfg: cfg, leases: make(map[string]net.IP)}
}

func TestLeaseForIsStableForSameMAC(t *testing.T) {
	s := newTestServer()
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")

	first := s.leaseFor(mac)
	second := s.leaseFor(mac)

	if !first.Equal(second) {
		t.Fatalf("expected the same MAC to keep its lease, got %s then %s", first, second)
	}
}

func TestLeaseForAssignsDistinctAddresses(t *testing.T) {
	s := newTestServer()
	macA, _ := net.ParseMAC("aa:bb:cc:dd:ee:01")
	macB, _ := net.ParseMAC("aa:bb:cc:dd:ee:02")

	a := s.leaseFor(macA)
	b := s.leaseFor(macB)

	if a.Equal(b) {
		t.Fatalf("expected distinct MACs to get distinct addresses, both got %s", a)
	}
}

func TestLeaseForWrapsWithinPool(t *testing.T) {
	s := newTestServer()
	s.cfg.poolSize = 2

	var last net.IP
	for i := 0; i < 5; i++ {
		mac := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, byte(i)}
		last = s.leaseFor(mac)
	}

	if !last.Equal(dhcp4.IPAdd(s.cfg.poolStart, 4%2)) {
		t.Fatalf("expected the fifth lease to wrap back into the 2-address pool, got %s", last)
	}
}
