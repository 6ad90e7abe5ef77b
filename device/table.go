package device

// Table maps a peer's normalised hardware address to its NetworkDevice.
//
// Table carries no synchronization of its own: it is a bare map guarded
// only by the fact that a single phony.Inbox actor is its sole caller —
// here, the networkmanager coordinator. Table must never be shared
// across goroutines directly.
type Table struct {
	byAddress map[string]*NetworkDevice
}

// NewTable returns an empty peer table.
func NewTable() *Table {
	return &Table{byAddress: make(map[string]*NetworkDevice)}
}

// Get looks up a peer by hardware address (any case).
func (t *Table) Get(address string) (*NetworkDevice, bool) {
	d, ok := t.byAddress[NormalizeAddress(address)]
	return d, ok
}

// Put inserts or replaces a peer under its own address.
func (t *Table) Put(d *NetworkDevice) {
	t.byAddress[d.Address()] = d
}

// Remove deletes the peer at address, if present.
func (t *Table) Remove(address string) {
	delete(t.byAddress, NormalizeAddress(address))
}

// Len returns the number of peers currently tracked.
func (t *Table) Len() int {
	return len(t.byAddress)
}

// Snapshot returns every tracked peer in unspecified order.
func (t *Table) Snapshot() []*NetworkDevice {
	values := make([]*NetworkDevice, 0, len(t.byAddress))
	for _, d := range t.byAddress {
		values = append(values, d)
	}
	return values
}

// Clear empties the table, returning the peers it held so the caller can
// notify about their removal before dropping them.
func (t *Table) Clear() []*NetworkDevice {
	values := t.Snapshot()
	t.byAddress = make(map[string]*NetworkDevice)
	return values
}
