package devicemanager

import (
	"errors"
	"fmt"

	"sim-gateway-go/internal/pkg/config"
	"sim-gateway-go/internal/pkg/hardware"
	"sim-gateway-go/internal/pkg/logger"
)

// Assemble builds the devices described by cfg, opens their channels and
// returns the populated registry. A device whose serial number is not
// attached and that has no fallback port is skipped with a warning; its
// controls then have no hardware and their events are dropped.
func Assemble(cfg *config.AppConfig, opener hardware.Opener, lister hardware.PortLister, lc logger.LoggingClient, opts ...hardware.DeviceOption) (*Registry, error) {
	reg, _ := NewRegistry()

	var ports []hardware.PortInfo
	listed := false
	listPorts := func() []hardware.PortInfo {
		if listed || lister == nil {
			return ports
		}
		listed = true
		var err error
		if ports, err = lister(); err != nil {
			lc.Warn("Failed to enumerate serial ports", "err", err)
		}
		return ports
	}

	for i := range cfg.Devices {
		dc := &cfg.Devices[i]

		portName, err := resolvePort(dc, listPorts)
		if err != nil {
			lc.Warn("Skipping device", "device", dc.Name, "sn", dc.Serial, "err", err)
			continue
		}

		components, err := buildComponents(dc, cfg.SimType, lc)
		if err != nil {
			return nil, err
		}

		portCfg := hardware.PortConfig{
			Name:     portName,
			BaudRate: dc.BaudRate,
			DataBits: dc.DataBits,
			StopBits: dc.StopBits,
			Parity:   dc.Parity,
			Timeout:  dc.GetTimeout(),
		}
		devOpts := append([]hardware.DeviceOption{hardware.WithQueueCapacity(dc.QueueCapacity)}, opts...)
		dev, err := hardware.NewDevice(
			hardware.DeviceInfo{Name: dc.Name, Serial: dc.Serial, Description: dc.Description},
			portCfg, opener, components, lc, devOpts...,
		)
		if err != nil {
			return nil, err
		}

		if err := dev.Open(); err != nil {
			// the scheduler retries on every tick
			lc.Warn("Failed to open device, will retry", "device", dc.Name, "port", portName, "err", err)
		}

		if err := reg.Add(dev); err != nil {
			_ = dev.Close()
			return nil, err
		}
		lc.Info("Device registered", "device", dc.Name, "port", portName, "components", len(components))
	}

	return reg, nil
}

func resolvePort(dc *config.DeviceConfig, listPorts func() []hardware.PortInfo) (string, error) {
	if dc.Serial != "" {
		if p, ok := hardware.FindBySerial(listPorts(), dc.Serial); ok {
			return p.Name, nil
		}
		if dc.Port == "" {
			return "", fmt.Errorf("%w: serial number %s", hardware.ErrDeviceNotFound, dc.Serial)
		}
	}
	if dc.Port == "" {
		return "", errors.New("no serial number or port configured")
	}
	return dc.Port, nil
}

func buildComponents(dc *config.DeviceConfig, simType string, lc logger.LoggingClient) ([]hardware.Component, error) {
	out := make([]hardware.Component, 0, len(dc.Components))
	for _, cc := range dc.Components {
		ct, err := hardware.ParseComponentType(cc.Type)
		if err != nil {
			return nil, fmt.Errorf("device %s component %s: %w", dc.Name, cc.Name, err)
		}
		hw := cc.ResolveHardwareAddress(simType)
		if hw < 0 {
			lc.Warn("Component has no hardware address for this simulator, skipping", "device", dc.Name, "component", cc.Name, "sim", simType)
			continue
		}
		out = append(out, hardware.Component{
			Type:            ct,
			Name:            cc.Name,
			Description:     cc.Description,
			SoftwareAddress: cc.Address,
			HardwareAddress: hw,
		})
	}
	return out, nil
}
