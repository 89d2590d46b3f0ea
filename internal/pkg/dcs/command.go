package dcs

import (
	"context"
	"errors"
	"fmt"

	"sim-gateway-go/internal/pkg/command"
)

// EngineInfoCommandName is the telemetry ingest command.
const EngineInfoCommandName = "dcsEngineInfo"

// EngineInfoCommand feeds payloads into an EngineInfo.
type EngineInfoCommand struct {
	info *EngineInfo
}

// NewEngineInfoCommand creates the dcsEngineInfo command.
func NewEngineInfoCommand(info *EngineInfo) *EngineInfoCommand {
	return &EngineInfoCommand{info: info}
}

func (c *EngineInfoCommand) Name() string                   { return EngineInfoCommandName }
func (c *EngineInfoCommand) Properties() command.Properties { return command.NewProperties() }

func (c *EngineInfoCommand) Description() string {
	return fmt.Sprintf("[value] Update DCS engine info state; comma-delimited list of %d values", EngineInfoFields)
}

// Execute applies the payload. Telemetry produces no output unless the
// payload has the wrong number of fields.
func (c *EngineInfoCommand) Execute(_ context.Context, in command.Input) (command.Result, error) {
	if _, err := c.info.Apply(in.Payload); err != nil {
		if errors.Is(err, ErrFieldCount) {
			return command.Text(err.Error()), nil
		}
		return command.Result{}, err
	}
	return command.Result{}, nil
}
