package dcs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sim-gateway-go/internal/pkg/logger"
	"sim-gateway-go/internal/pkg/state"
)

// EngineInfoFields is the number of comma separated values in a payload.
const EngineInfoFields = 12

// ErrFieldCount is returned when a payload does not have EngineInfoFields values.
var ErrFieldCount = errors.New("invalid number of engine info fields")

// EngineInfo tracks the engine telemetry block.
type EngineInfo struct {
	fuelInternal         *state.Variable[float64]
	fuelExternal         *state.Variable[float64]
	tempLeft             *state.Variable[float64]
	tempRight            *state.Variable[float64]
	rpmLeft              *state.Variable[float64]
	rpmRight             *state.Variable[float64]
	fuelConsumptionLeft  *state.Variable[float64]
	fuelConsumptionRight *state.Variable[float64]
	engineStartLeft      *state.Variable[bool]
	engineStartRight     *state.Variable[bool]
	pressureLeft         *state.Variable[float64]
	pressureRight        *state.Variable[float64]

	// payload order
	fields []func(raw string) error
	lc     logger.LoggingClient
}

// NewEngineInfo creates the engine variables, all emitting into sink.
func NewEngineInfo(sink state.Sink, lc logger.LoggingClient) *EngineInfo {
	e := &EngineInfo{
		fuelInternal:         state.NewFloat(Control(EngineFuelInternal), state.DefaultScale, sink),
		fuelExternal:         state.NewFloat(Control(EngineFuelExternal), state.DefaultScale, sink),
		tempLeft:             state.NewFloat(Control(EngineTempLeft), 1, sink),
		tempRight:            state.NewFloat(Control(EngineTempRight), 1, sink),
		rpmLeft:              state.NewFloat(Control(EngineRPMLeft), 0, sink),
		rpmRight:             state.NewFloat(Control(EngineRPMRight), 0, sink),
		fuelConsumptionLeft:  state.NewFloat(Control(EngineFuelConsumptionLeft), state.DefaultScale, sink),
		fuelConsumptionRight: state.NewFloat(Control(EngineFuelConsumptionRight), state.DefaultScale, sink),
		engineStartLeft:      state.NewBool(Control(EngineStartLeft), sink),
		engineStartRight:     state.NewBool(Control(EngineStartRight), sink),
		pressureLeft:         state.NewFloat(Control(EngineHydraulicPressureLeft), state.DefaultScale, sink),
		pressureRight:        state.NewFloat(Control(EngineHydraulicPressureRight), state.DefaultScale, sink),
		lc:                   lc,
	}

	e.fields = []func(string) error{
		floatField(e.fuelInternal),
		floatField(e.fuelExternal),
		floatField(e.tempLeft),
		floatField(e.tempRight),
		floatField(e.rpmLeft),
		floatField(e.rpmRight),
		floatField(e.fuelConsumptionLeft),
		floatField(e.fuelConsumptionRight),
		boolField(e.engineStartLeft),
		boolField(e.engineStartRight),
		floatField(e.pressureLeft),
		floatField(e.pressureRight),
	}
	return e
}

func floatField(v *state.Variable[float64]) func(string) error {
	return func(raw string) error {
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return err
		}
		v.Set(f)
		return nil
	}
}

func boolField(v *state.Variable[bool]) func(string) error {
	return func(raw string) error {
		v.Set(raw == "1")
		return nil
	}
}

// Apply updates the engine variables from a payload of EngineInfoFields comma
// separated values. A payload of the wrong shape changes nothing. A field
// that fails to parse is skipped and the others are still applied. Apply
// returns the number of fields applied.
func (e *EngineInfo) Apply(payload string) (int, error) {
	data := strings.Split(payload, ",")
	// trailing empty fields are not counted
	for len(data) > 1 && data[len(data)-1] == "" {
		data = data[:len(data)-1]
	}
	if len(data) != EngineInfoFields {
		e.lc.Error("DCS engine info payload contained an invalid number of elements", "expected", EngineInfoFields, "got", len(data))
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrFieldCount, EngineInfoFields, len(data))
	}

	applied := 0
	for i, raw := range data {
		if err := e.fields[i](strings.TrimSpace(raw)); err != nil {
			e.lc.Warn("Skipping unparsable engine info field", "index", i, "value", raw, "err", err)
			continue
		}
		applied++
	}
	return applied, nil
}

// Reset returns every value to zero/false. Values that change emit events.
func (e *EngineInfo) Reset() {
	for _, v := range []*state.Variable[float64]{
		e.fuelInternal, e.fuelExternal,
		e.tempLeft, e.tempRight,
		e.rpmLeft, e.rpmRight,
		e.fuelConsumptionLeft, e.fuelConsumptionRight,
		e.pressureLeft, e.pressureRight,
	} {
		v.Set(0)
	}
	e.engineStartLeft.Set(false)
	e.engineStartRight.Set(false)
}

// Snapshot is a copy of the current engine values.
type Snapshot struct {
	FuelInternal         float64
	FuelExternal         float64
	TempLeft             float64
	TempRight            float64
	RPMLeft              float64
	RPMRight             float64
	FuelConsumptionLeft  float64
	FuelConsumptionRight float64
	EngineStartLeft      bool
	EngineStartRight     bool
	PressureLeft         float64
	PressureRight        float64
}

// Snapshot returns the current values.
func (e *EngineInfo) Snapshot() Snapshot {
	return Snapshot{
		FuelInternal:         e.fuelInternal.Get(),
		FuelExternal:         e.fuelExternal.Get(),
		TempLeft:             e.tempLeft.Get(),
		TempRight:            e.tempRight.Get(),
		RPMLeft:              e.rpmLeft.Get(),
		RPMRight:             e.rpmRight.Get(),
		FuelConsumptionLeft:  e.fuelConsumptionLeft.Get(),
		FuelConsumptionRight: e.fuelConsumptionRight.Get(),
		EngineStartLeft:      e.engineStartLeft.Get(),
		EngineStartRight:     e.engineStartRight.Get(),
		PressureLeft:         e.pressureLeft.Get(),
		PressureRight:        e.pressureRight.Get(),
	}
}
