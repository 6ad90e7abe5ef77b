// Package device holds the peer model the network manager discovers,
// tracks, and connects to over Wi-Fi Direct.
package device

import "strings"

// State is a peer's position in the connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateAssociation
	StateConfiguration
	StateConnected
	StateFailure
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAssociation:
		return "association"
	case StateConfiguration:
		return "configuration"
	case StateConnected:
		return "connected"
	case StateFailure:
		return "failure"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// NormalizeAddress canonicalises a hardware address to lower-case,
// colon-separated form so that P2P-DEVICE-FOUND/-LOST events that differ
// only in case never produce duplicate table entries.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(addr), "-", ":"))
}

// NetworkDevice is a discovered remote Miracast-capable peer.
//
// The coordinator exclusively owns NetworkDevice values; anything else
// holding a *NetworkDevice has a non-owning reference that is only valid
// while the coordinator keeps the entry in its table.
type NetworkDevice struct {
	address        string
	name           string
	configMethods  string
	wfdDeviceInfo  string
	state          State
}

// New creates a peer in its initial idle state.
func New(address, name, configMethods string) *NetworkDevice {
	return &NetworkDevice{
		address:       NormalizeAddress(address),
		name:          name,
		configMethods: configMethods,
		state:         StateIdle,
	}
}

func (d *NetworkDevice) Address() string       { return d.address }
func (d *NetworkDevice) Name() string          { return d.name }
func (d *NetworkDevice) ConfigMethods() string { return d.configMethods }
func (d *NetworkDevice) WfdDeviceInfo() string { return d.wfdDeviceInfo }
func (d *NetworkDevice) State() State          { return d.state }

func (d *NetworkDevice) SetName(name string)                 { d.name = name }
func (d *NetworkDevice) SetConfigMethods(configMethods string) { d.configMethods = configMethods }
func (d *NetworkDevice) SetWfdDeviceInfo(info string)         { d.wfdDeviceInfo = info }
func (d *NetworkDevice) SetState(state State)                { d.state = state }
