package wpa

import "testing"

func TestParseEvent(t *testing.T) {
	raw := `<3>P2P-DEVICE-FOUND 4e:74:03:70:e2:c1 p2p_dev_addr=4e:74:03:70:e2:c1 pri_dev_type=8-0050F204-2 name='Aquaris M10' config_methods=0x188 dev_capab=0x5 group_capab=0x0 wfd_dev_info=0x00111c440032 new=1`
	m, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Kind() != KindEvent {
		t.Fatalf("expected event, got kind %v", m.Kind())
	}
	if m.Name() != "P2P-DEVICE-FOUND" {
		t.Fatalf("unexpected event name %q", m.Name())
	}

	var address string
	if err := m.Read(&address); err != nil {
		t.Fatalf("unexpected error reading address: %v", err)
	}
	if address != "4e:74:03:70:e2:c1" {
		t.Fatalf("unexpected address %q", address)
	}

	name, ok := m.Named("name")
	if !ok || name != "Aquaris M10" {
		t.Fatalf("unexpected name %q (ok=%v)", name, ok)
	}

	configMethods, ok := m.Named("config_methods")
	if !ok || configMethods != "0x188" {
		t.Fatalf("unexpected config_methods %q (ok=%v)", configMethods, ok)
	}
}

func TestParseDeviceLost(t *testing.T) {
	m, err := Parse([]byte("<3>P2P-DEVICE-LOST p2p_dev_addr=4e:74:03:70:e2:c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	address, ok := m.Named("p2p_dev_addr")
	if !ok || address != "4e:74:03:70:e2:c1" {
		t.Fatalf("unexpected address %q (ok=%v)", address, ok)
	}
}

func TestParseGroupStarted(t *testing.T) {
	m, err := Parse([]byte(`<3>P2P-GROUP-STARTED p2p0 client ssid="DIRECT-hB" freq=2412 passphrase="HtP0qYon" go_dev_addr=4e:74:03:64:95:a7`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var role string
	if err := m.Read(Skip(), &role); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != "client" {
		t.Fatalf("unexpected role %q", role)
	}
}

func TestParseGroupRemoved(t *testing.T) {
	m, err := Parse([]byte("<3>P2P-GROUP-REMOVED p2p0 GO reason=FORMATION_FAILED"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reason, ok := m.Named("reason")
	if !ok || reason != "FORMATION_FAILED" {
		t.Fatalf("unexpected reason %q (ok=%v)", reason, ok)
	}
}

func TestParseReplyClassification(t *testing.T) {
	ok, err := Parse([]byte("OK"))
	if err != nil || !ok.IsOK() {
		t.Fatalf("expected OK reply, got %+v err=%v", ok, err)
	}

	fail, err := Parse([]byte("FAIL-BUSY"))
	if err != nil || !fail.IsFail() {
		t.Fatalf("expected FAIL reply, got %+v err=%v", fail, err)
	}

	opaque, err := Parse([]byte("p2p0"))
	if err != nil || opaque.IsOK() || opaque.IsFail() {
		t.Fatalf("expected opaque reply to be neither OK nor FAIL, got %+v", opaque)
	}
}

func TestBuildRequestRoundTrip(t *testing.T) {
	m := NewRequest("P2P_CONNECT").Append("4e:74:03:70:e2:c1").Append("pbc")
	if got, want := m.Raw(), "P2P_CONNECT 4e:74:03:70:e2:c1 pbc"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	scan := NewRequest("P2P_FIND").AppendInt(30)
	if got, want := scan.Raw(), "P2P_FIND 30"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	set := NewRequest("SET").Append("wifi_display").AppendInt(1)
	if got, want := set.Raw(), "SET wifi_display 1"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	subelem := NewRequest("WFD_SUBELEM_SET").AppendInt(0).Append("000600101C440032")
	if got, want := subelem.Raw(), "WFD_SUBELEM_SET 0 000600101C440032"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReadMalformedOnMissingField(t *testing.T) {
	m, err := Parse([]byte("<3>P2P-GROUP-STARTED p2p0"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var role string
	if err := m.Read(Skip(), &role); err == nil {
		t.Fatal("expected ErrMalformed when a positional field is missing")
	}
}
