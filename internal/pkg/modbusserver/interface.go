package modbusserver

import (
	"context"

	"sim-gateway-go/internal/pkg/state"
)

// MirrorInterface defines the read-only Modbus mirror operations
type MirrorInterface interface {
	// Start starts the Modbus TCP listener
	Start(ctx context.Context) error

	// Stop stops the listener and the cache cleanup
	Stop() error

	// IsRunning returns whether the listener is running
	IsRunning() bool

	// Handler returns the state event handler that feeds the mirror
	Handler() state.Handler
}
