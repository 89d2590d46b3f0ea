package devicemanager

import "sim-gateway-go/internal/pkg/hardware"

// DeviceManagerInterface is the read side of the device registry used at
// dispatch time.
type DeviceManagerInterface interface {
	// Lookup returns the device owning a software address
	Lookup(softwareAddress int) (*hardware.Device, bool)

	// Resolve returns the device and the component bound to a software address
	Resolve(softwareAddress int) (*hardware.Device, hardware.Component, bool)

	// Route queues a raw payload for the component bound to a software address
	Route(softwareAddress int, payload []byte) error

	// Devices returns every registered device
	Devices() []*hardware.Device
}
