package devicemanager

import "sim-gateway-go/internal/pkg/state"

// DispatchHandler routes each state event to the device component bound to
// its control. Controls without hardware are ignored.
func DispatchHandler(reg DeviceManagerInterface) state.Handler {
	return func(ev state.Event) {
		d, c, ok := reg.Resolve(ev.Control.Address)
		if !ok {
			return
		}
		d.Write(c.HardwareAddress, ev.Payload)
	}
}
