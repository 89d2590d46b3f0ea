package devicemanager

import (
	"errors"
	"fmt"
	"sync"

	"sim-gateway-go/internal/pkg/hardware"
)

// ErrNoDevice is returned by Route when no device is mapped to an address.
var ErrNoDevice = errors.New("no device mapped to software address")

// Registry maps software addresses to the devices that own them. It is
// populated during topology assembly and read-only afterwards, so lookups
// take no lock.
type Registry struct {
	devices    []*hardware.Device
	bySoftware map[int]*hardware.Device

	closeOnce sync.Once
}

// NewRegistry creates a registry and registers every component of devices.
func NewRegistry(devices ...*hardware.Device) (*Registry, error) {
	r := &Registry{bySoftware: make(map[int]*hardware.Device)}
	for _, d := range devices {
		if err := r.Add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers d and all of its components. It must not be called once the
// registry is shared.
func (r *Registry) Add(d *hardware.Device) error {
	for _, c := range d.Components() {
		if err := r.Register(c.SoftwareAddress, d); err != nil {
			return err
		}
	}
	r.devices = append(r.devices, d)
	return nil
}

// Register maps softwareAddress to device.
func (r *Registry) Register(softwareAddress int, device *hardware.Device) error {
	if owner, dup := r.bySoftware[softwareAddress]; dup && owner != device {
		return fmt.Errorf("software address %d already mapped to device %s", softwareAddress, owner.Name())
	}
	r.bySoftware[softwareAddress] = device
	return nil
}

// Lookup returns the device owning softwareAddress.
func (r *Registry) Lookup(softwareAddress int) (*hardware.Device, bool) {
	d, ok := r.bySoftware[softwareAddress]
	return d, ok
}

// Resolve returns the device and component bound to softwareAddress.
func (r *Registry) Resolve(softwareAddress int) (*hardware.Device, hardware.Component, bool) {
	d, ok := r.bySoftware[softwareAddress]
	if !ok {
		return nil, hardware.Component{}, false
	}
	c, ok := d.ComponentBySoftwareAddress(softwareAddress)
	if !ok {
		return nil, hardware.Component{}, false
	}
	return d, c, true
}

// Route queues payload on the device owning softwareAddress, addressed to the
// bound component's hardware address.
func (r *Registry) Route(softwareAddress int, payload []byte) error {
	d, c, ok := r.Resolve(softwareAddress)
	if !ok {
		return fmt.Errorf("%w %d", ErrNoDevice, softwareAddress)
	}
	d.Write(c.HardwareAddress, payload)
	return nil
}

// Devices returns the registered devices in registration order.
func (r *Registry) Devices() []*hardware.Device {
	return append([]*hardware.Device(nil), r.devices...)
}

// Close closes every device once.
func (r *Registry) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		for _, d := range r.devices {
			if err := d.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", d.Name(), err))
			}
		}
	})
	return errors.Join(errs...)
}
