package networkmanager

import "github.com/robertdigital/aethercast/device"

// Delegate receives peer lifecycle notifications from the coordinator.
// A small capability interface rather than a base class: any value
// satisfying this method set works.
type Delegate interface {
	OnDeviceFound(peer *device.NetworkDevice)
	OnDeviceLost(peer *device.NetworkDevice)
	OnDeviceStateChanged(peer *device.NetworkDevice)
}

// FirmwareLoader is the external collaborator that knows whether the P2P
// radio's firmware needs to be (re)loaded before the supplicant can be
// started, and how to trigger that load asynchronously.
type FirmwareLoader interface {
	NeedsLoad() bool
	TryLoad() error
}
