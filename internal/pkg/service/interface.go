package service

import (
	"context"

	"sim-gateway-go/internal/pkg/config"
	"sim-gateway-go/internal/pkg/dcs"
	"sim-gateway-go/internal/pkg/devicemanager"
	"sim-gateway-go/internal/pkg/forwardlog"
	"sim-gateway-go/internal/pkg/logger"
	"sim-gateway-go/internal/pkg/modbusserver"
	"sim-gateway-go/internal/pkg/mqtt"
	"sim-gateway-go/internal/pkg/server"
)

// AppServiceInterface defines the application service operations
type AppServiceInterface interface {
	// Initialize initializes the service with configuration
	Initialize(configPath string) error

	// Run runs the service until a shutdown is requested
	Run() error

	// Stop stops the service
	Stop() error

	// GetLoggingClient returns the logging client
	GetLoggingClient() logger.LoggingClient

	// GetServer returns the connection acceptor
	GetServer() server.ServerInterface

	// GetDeviceManager returns the device registry
	GetDeviceManager() devicemanager.DeviceManagerInterface

	// GetEngineInfo returns the engine telemetry state
	GetEngineInfo() *dcs.EngineInfo

	// GetModbusMirror returns the Modbus mirror, nil when disabled
	GetModbusMirror() modbusserver.MirrorInterface

	// GetMQTTClient returns the MQTT client manager, nil when disabled
	GetMQTTClient() *mqtt.ClientManager

	// GetForwarder returns the state event forwarder, nil when MQTT is disabled
	GetForwarder() *forwardlog.Forwarder

	// GetAppConfig returns the application configuration
	GetAppConfig() *config.AppConfig

	// GetContext returns the service context
	GetContext() context.Context
}
