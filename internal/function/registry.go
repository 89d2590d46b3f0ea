package functions

import (
	"sim-gateway-go/internal/pkg/command"
	"sim-gateway-go/internal/pkg/dcs"
	"sim-gateway-go/internal/pkg/devicemanager"
	"sim-gateway-go/internal/pkg/hardware"
	"sim-gateway-go/internal/pkg/logger"
)

// RemoteGroup 是MQTT远程调用可见的命令组, 不继承默认组
const RemoteGroup = 10

// Deps 命令集依赖
type Deps struct {
	Name       string
	Version    string
	Devices    devicemanager.DeviceManagerInterface
	EngineInfo *dcs.EngineInfo
	Lister     hardware.PortLister
	Logger     logger.LoggingClient
}

// NewRegistry 组装网关命令集.
// 默认组供TCP会话使用; 远程组只包含非特权的数据命令.
func NewRegistry(d Deps) (*command.Registry, error) {
	if d.Lister == nil {
		d.Lister = hardware.ListPorts
	}

	help := NewHelpCommand()
	helo := NewHeloCommand(Greeting(d.Name, d.Version))
	write := NewWriteCommand(d.Logger)
	setState := NewSetStateCommand(d.Devices)
	listDevices := NewListDevicesCommand(d.Lister)
	engineInfo := dcs.NewEngineInfoCommand(d.EngineInfo)

	b := command.NewBuilder().
		AddCommand(command.DefaultGroup, help).
		AddCommand(command.DefaultGroup, helo).
		AddCommand(command.DefaultGroup, NewQuitCommand()).
		AddCommand(command.DefaultGroup, NewTerminateCommand(d.Name, d.Logger)).
		AddCommand(command.DefaultGroup, write).
		AddCommand(command.DefaultGroup, setState).
		AddCommand(command.DefaultGroup, listDevices).
		AddCommand(command.DefaultGroup, engineInfo)

	for _, cmd := range []command.Command{help, helo, write, setState, listDevices, engineInfo} {
		b.AddCommand(RemoteGroup, cmd)
	}

	return b.Build()
}
