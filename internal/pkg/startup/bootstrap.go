package startup

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"sim-gateway-go/internal/pkg/config"
	"sim-gateway-go/internal/pkg/server"
	"sim-gateway-go/internal/pkg/service"
)

// Process exit codes
const (
	ExitOK = iota
	ExitFileNotFound
	ExitConfigUnreadable
	ExitConfigParse
	ExitBind
	ExitServerConfig
	ExitFailure
)

// ExitCodeFor maps a startup or run error to its process exit code.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrConfigNotFound):
		return ExitFileNotFound
	case errors.Is(err, config.ErrConfigUnreadable):
		return ExitConfigUnreadable
	case errors.Is(err, config.ErrConfigParse):
		return ExitConfigParse
	case errors.Is(err, server.ErrBind):
		return ExitBind
	case errors.Is(err, config.ErrServerConfig):
		return ExitServerConfig
	default:
		return ExitFailure
	}
}

// DefaultConfigPath returns res/configuration.yaml next to the executable.
func DefaultConfigPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), "res", "configuration.yaml"), nil
}

// BootStrap initializes and runs the application, then exits the process.
func BootStrap(appName string, version string) {
	configPath := flag.String("c", "", "Path to configuration file")
	flag.Parse()

	os.Exit(Run(appName, version, *configPath))
}

// Run builds and runs the service and returns the exit code.
func Run(appName string, version string, cfgPath string, opts ...service.Option) int {
	if cfgPath == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return ExitFailure
		}
		cfgPath = p
	}

	fmt.Printf("Bootstrapping application: %s Version: %s\n", appName, version)

	appService, err := service.NewAppService(appName, version, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application service: %v\n", err)
		return ExitFailure
	}

	if err := appService.Initialize(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		_ = appService.Stop()
		return ExitCodeFor(err)
	}

	if err := appService.Run(); err != nil {
		appService.GetLoggingClient().Error("Application run failed", "err", err)
		return ExitCodeFor(err)
	}
	return ExitOK
}
