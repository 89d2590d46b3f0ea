// Package dcs holds the DCS World control catalog and the engine telemetry
// state fed by the dcsEngineInfo command.
package dcs

import "sim-gateway-go/internal/pkg/state"

// SimType is the simulator type name used in configuration.
const SimType = "dcs"

// Software addresses of the DCS controls.
const (
	None = iota
	EngineFuelExternal
	EngineFuelInternal
	EngineTempLeft
	EngineTempRight
	EngineRPMLeft
	EngineRPMRight
	EngineFuelConsumptionLeft
	EngineFuelConsumptionRight
	EngineStartLeft
	EngineStartRight
	EngineHydraulicPressureLeft
	EngineHydraulicPressureRight
)

var captions = map[int]string{
	None:                         "Not Specified",
	EngineFuelExternal:           "Engine Fuel External",
	EngineFuelInternal:           "Engine Fuel Internal",
	EngineTempLeft:               "Engine Temperature Left",
	EngineTempRight:              "Engine Temperature Right",
	EngineRPMLeft:                "Engine RPM Left",
	EngineRPMRight:               "Engine RPM Right",
	EngineFuelConsumptionLeft:    "Engine Fuel Consumption Left",
	EngineFuelConsumptionRight:   "Engine Fuel Consumption Right",
	EngineStartLeft:              "Engine Start Left",
	EngineStartRight:             "Engine Start Right",
	EngineHydraulicPressureLeft:  "Engine Hydraulic Pressure Left",
	EngineHydraulicPressureRight: "Engine Hydraulic Pressure Right",
}

// Control returns the control with the given software address, or the None
// control when the address is not part of the catalog.
func Control(address int) state.Control {
	caption, ok := captions[address]
	if !ok {
		address, caption = None, captions[None]
	}
	return state.Control{Address: address, Caption: caption, SimType: SimType}
}

// Controls returns every catalog control except None, ordered by address.
func Controls() []state.Control {
	out := make([]state.Control, 0, len(captions)-1)
	for addr := EngineFuelExternal; addr <= EngineHydraulicPressureRight; addr++ {
		out = append(out, Control(addr))
	}
	return out
}
