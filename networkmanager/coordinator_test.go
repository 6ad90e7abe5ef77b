package networkmanager

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Arceliar/phony"

	"github.com/robertdigital/aethercast/device"
	"github.com/robertdigital/aethercast/wpa"
)

type fakeSupplicant struct {
	mu            sync.Mutex
	running       bool
	requests      []wpa.Message
	respawnBudget int
}

func (f *fakeSupplicant) Start() error  { f.running = true; return nil }
func (f *fakeSupplicant) Stop()         { f.running = false }
func (f *fakeSupplicant) Running() bool { return f.running }
func (f *fakeSupplicant) RespawnBudget() int {
	if f.respawnBudget == 0 {
		return 3
	}
	return f.respawnBudget
}
func (f *fakeSupplicant) Enqueue(request wpa.Message, handler wpa.ReplyHandler) {
	f.mu.Lock()
	f.requests = append(f.requests, request)
	f.mu.Unlock()
	if handler != nil {
		handler(wpa.Message{}, nil)
	}
}

type fakeDhcp struct {
	clientStarted bool
	serverStarted bool
	stopCount     int
	localAddr     net.IP
}

func (f *fakeDhcp) StartClient() error   { f.clientStarted = true; return nil }
func (f *fakeDhcp) StartServer() error   { f.serverStarted = true; return nil }
func (f *fakeDhcp) Stop()                { f.stopCount++; f.clientStarted, f.serverStarted = false, false }
func (f *fakeDhcp) LocalAddress() net.IP { return f.localAddr }

type fakeDelegate struct {
	mu           sync.Mutex
	found        []*device.NetworkDevice
	lost         []*device.NetworkDevice
	stateChanges []*device.NetworkDevice
}

func (d *fakeDelegate) OnDeviceFound(p *device.NetworkDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.found = append(d.found, p)
}
func (d *fakeDelegate) OnDeviceLost(p *device.NetworkDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = append(d.lost, p)
}
func (d *fakeDelegate) OnDeviceStateChanged(p *device.NetworkDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateChanges = append(d.stateChanges, p)
}

func newTestCoordinator(delegate Delegate, sup *fakeSupplicant, dh *fakeDhcp, cfgOpts ...Option) *Coordinator {
	cfg := config{}
	configDefaults()(&cfg)
	for _, opt := range cfgOpts {
		opt(&cfg)
	}
	return &Coordinator{
		interfaceName: "p2p0",
		delegate:      delegate,
		cfg:           cfg,
		peers:         device.NewTable(),
		supplicant:    sup,
		dhcp:          dh,
	}
}

func dispatch(c *Coordinator, raw string) {
	msg, err := wpa.Parse([]byte(raw))
	if err != nil {
		panic(err)
	}
	phony.Block(c, func() { c.dispatchEvent(msg) })
}

func TestDiscoveryRoundTrip(t *testing.T) {
	delegate := &fakeDelegate{}
	c := newTestCoordinator(delegate, &fakeSupplicant{}, &fakeDhcp{})

	dispatch(c, "P2P-DEVICE-FOUND 4e:74:03:70:e2:c1 p2p_dev_addr=4e:74:03:70:e2:c1 pri_dev_type=8-0050F204-2 name='Aquaris M10' config_methods=0x188 dev_capab=0x5 group_capab=0x0 wfd_dev_info=0x00111c440032 new=1")

	if len(delegate.found) != 1 || delegate.found[0].Address() != "4e:74:03:70:e2:c1" || delegate.found[0].Name() != "Aquaris M10" {
		t.Fatalf("expected OnDeviceFound for 4e:74:03:70:e2:c1/Aquaris M10, got %+v", delegate.found)
	}

	dispatch(c, "P2P-DEVICE-LOST p2p_dev_addr=4e:74:03:70:e2:c1")

	if len(delegate.lost) != 1 || delegate.lost[0].Address() != "4e:74:03:70:e2:c1" {
		t.Fatalf("expected OnDeviceLost for 4e:74:03:70:e2:c1, got %+v", delegate.lost)
	}
	if len(c.Devices()) != 0 {
		t.Fatalf("expected the peer table to be empty after the device was lost")
	}
}

func TestConnectAsClient(t *testing.T) {
	delegate := &fakeDelegate{}
	sup := &fakeSupplicant{}
	dh := &fakeDhcp{}
	c := newTestCoordinator(delegate, sup, dh)

	dispatch(c, "P2P-DEVICE-FOUND 4e:74:03:70:e2:c1 name='Aquaris M10' config_methods=0x188")

	if err := c.Connect("4e:74:03:70:e2:c1"); err != nil {
		t.Fatalf("unexpected error from Connect: %v", err)
	}

	dispatch(c, `P2P-GROUP-STARTED p2p0 client ssid="DIRECT-hB" freq=2412 passphrase="HtP0qYon" go_dev_addr=4e:74:03:64:95:a7`)

	var state device.State
	phony.Block(c, func() { state = c.currentPeer.State() })
	if state != device.StateConfiguration {
		t.Fatalf("expected peer state configuration after P2P-GROUP-STARTED, got %s", state)
	}
	if !dh.clientStarted {
		t.Fatal("expected the dhcp client to have been started")
	}

	phony.Block(c, func() { c.onAddressAssigned(net.IPv4(192, 168, 49, 3)) })

	phony.Block(c, func() { state = c.currentPeer.State() })
	if state != device.StateConnected {
		t.Fatalf("expected peer state connected after address assignment, got %s", state)
	}
	phony.Block(c, func() {
		if c.dhcpTimer != nil {
			t.Fatal("expected the dhcp acquisition timeout to be cancelled")
		}
	})
}

func TestConnectAsGroupOwner(t *testing.T) {
	delegate := &fakeDelegate{}
	sup := &fakeSupplicant{}
	dh := &fakeDhcp{}
	c := newTestCoordinator(delegate, sup, dh)

	dispatch(c, "P2P-DEVICE-FOUND 4e:74:03:70:e2:c1 name='Aquaris M10' config_methods=0x188")
	if err := c.Connect("4e:74:03:70:e2:c1"); err != nil {
		t.Fatalf("unexpected error from Connect: %v", err)
	}

	dispatch(c, "P2P-GROUP-STARTED p2p0 GO ssid=\"DIRECT-hB\" freq=2412")

	var state device.State
	var roleIsGO bool
	phony.Block(c, func() {
		state = c.currentPeer.State()
		roleIsGO = c.roleIsGO
	})

	if state != device.StateConnected {
		t.Fatalf("expected peer state connected immediately as GO, got %s", state)
	}
	if !roleIsGO {
		t.Fatal("expected roleIsGO to be set")
	}
	if !dh.serverStarted {
		t.Fatal("expected the dhcp server to have been started")
	}
	phony.Block(c, func() {
		if c.dhcpTimer != nil {
			t.Fatal("expected no dhcp acquisition timeout to be armed as GO")
		}
	})
}

func TestDhcpTimeoutDemotesToIdle(t *testing.T) {
	delegate := &fakeDelegate{}
	sup := &fakeSupplicant{}
	dh := &fakeDhcp{}
	c := newTestCoordinator(delegate, sup, dh,
		WithDhcpTimeout(10*time.Millisecond),
		WithPeerFailureTimeout(10*time.Millisecond),
	)

	dispatch(c, "P2P-DEVICE-FOUND 4e:74:03:70:e2:c1 name='Aquaris M10' config_methods=0x188")
	if err := c.Connect("4e:74:03:70:e2:c1"); err != nil {
		t.Fatalf("unexpected error from Connect: %v", err)
	}
	dispatch(c, `P2P-GROUP-STARTED p2p0 client ssid="DIRECT-hB"`)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		var state device.State
		phony.Block(c, func() {
			if c.currentPeer != nil {
				state = c.currentPeer.State()
			}
		})
		if state == device.StateFailure {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	delegate.mu.Lock()
	sawFailure := false
	for _, p := range delegate.stateChanges {
		if p.State() == device.StateFailure {
			sawFailure = true
		}
	}
	delegate.mu.Unlock()
	if !sawFailure {
		t.Fatal("expected a state-changed notification with state failure after the dhcp timeout")
	}

	deadline = time.Now().Add(time.Second)
	var currentNil bool
	for time.Now().Before(deadline) {
		phony.Block(c, func() { currentNil = c.currentPeer == nil })
		if currentNil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !currentNil {
		t.Fatal("expected the peer to be released as current after the failure cooldown")
	}
}

func TestGroupFormationFailure(t *testing.T) {
	delegate := &fakeDelegate{}
	sup := &fakeSupplicant{}
	dh := &fakeDhcp{}
	c := newTestCoordinator(delegate, sup, dh)

	dispatch(c, "P2P-DEVICE-FOUND 4e:74:03:70:e2:c1 name='Aquaris M10' config_methods=0x188")
	if err := c.Connect("4e:74:03:70:e2:c1"); err != nil {
		t.Fatalf("unexpected error from Connect: %v", err)
	}

	dispatch(c, "P2P-GROUP-REMOVED p2p0 GO reason=FORMATION_FAILED")

	delegate.mu.Lock()
	lastState := delegate.stateChanges[len(delegate.stateChanges)-1].State()
	delegate.mu.Unlock()
	if lastState != device.StateFailure {
		t.Fatalf("expected the last state change to be failure, got %s", lastState)
	}

	var currentNil bool
	phony.Block(c, func() { currentNil = c.currentPeer == nil })
	if !currentNil {
		t.Fatal("expected the current peer to be cleared after group formation failure")
	}
	if dh.stopCount == 0 {
		t.Fatal("expected both dhcp sides to have been stopped")
	}
}

func TestSupplicantCrashResetsEverything(t *testing.T) {
	delegate := &fakeDelegate{}
	sup := &fakeSupplicant{}
	dh := &fakeDhcp{}
	c := newTestCoordinator(delegate, sup, dh)

	dispatch(c, "P2P-DEVICE-FOUND 4e:74:03:70:e2:c1 name='Aquaris M10' config_methods=0x188")
	dispatch(c, "P2P-DEVICE-FOUND 22:33:44:55:66:77 name='Other Device' config_methods=0x188")

	c.OnSupplicantLost()
	phony.Block(c, func() {}) // flush the Act queued by OnSupplicantLost

	if len(c.Devices()) != 0 {
		t.Fatal("expected the peer table to be emptied after the supplicant was lost")
	}
	delegate.mu.Lock()
	lostCount := len(delegate.lost)
	delegate.mu.Unlock()
	if lostCount != 2 {
		t.Fatalf("expected OnDeviceLost for every tracked peer, got %d calls", lostCount)
	}
}
