package device

import "testing"

func TestTableNormalizesCase(t *testing.T) {
	table := NewTable()
	table.Put(New("4E:74:03:70:E2:C1", "Aquaris M10", "0x188"))

	d, ok := table.Get("4e:74:03:70:e2:c1")
	if !ok {
		t.Fatal("expected peer to be found with lower-case address")
	}
	if d.Address() != "4e:74:03:70:e2:c1" {
		t.Fatalf("expected stored address to be normalised, got %q", d.Address())
	}
}

func TestTableRemove(t *testing.T) {
	table := NewTable()
	table.Put(New("aa:bb:cc:dd:ee:ff", "peer", ""))
	table.Remove("AA:BB:CC:DD:EE:FF")

	if _, ok := table.Get("aa:bb:cc:dd:ee:ff"); ok {
		t.Fatal("expected peer to be removed regardless of address case")
	}
	if table.Len() != 0 {
		t.Fatalf("expected empty table, got %d entries", table.Len())
	}
}

func TestTableClearReturnsPriorContents(t *testing.T) {
	table := NewTable()
	table.Put(New("11:22:33:44:55:66", "a", ""))
	table.Put(New("aa:bb:cc:dd:ee:ff", "b", ""))

	cleared := table.Clear()
	if len(cleared) != 2 {
		t.Fatalf("expected 2 peers returned from Clear, got %d", len(cleared))
	}
	if table.Len() != 0 {
		t.Fatal("expected table to be empty after Clear")
	}
}
