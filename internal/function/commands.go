package functions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"sim-gateway-go/internal/pkg/command"
	"sim-gateway-go/internal/pkg/devicemanager"
	"sim-gateway-go/internal/pkg/hardware"
	"sim-gateway-go/internal/pkg/logger"
)

// 命令名称
const (
	CmdHelp        = "help"
	CmdHelo        = "helo"
	CmdQuit        = "quit"
	CmdTerminate   = "terminate"
	CmdWrite       = "write"
	CmdSetState    = "setState"
	CmdListDevices = "listDevices"
)

// setState 错误提示
const (
	setStateFormat   = "Expected format software address=value"
	setStateUnsigned = "Expected format software address=value - software address must be an unsigned integer"
	setStateNoDevice = "No device mapped to software address %d"
	setStateOK       = "ok"
)

// Greeting 返回helo命令的问候语
func Greeting(name, version string) string {
	return fmt.Sprintf("Greetings! %s %s at your service", name, version)
}

// NewHelpCommand 列出调用者命令组中的可用命令, 按名称排序
func NewHelpCommand() command.Command {
	return command.NewQuick(CmdHelp, "List available commands", func(_ context.Context, in command.Input) (command.Result, error) {
		names := make([]string, 0, len(in.Available))
		width := 0
		for name := range in.Available {
			names = append(names, name)
			width = max(width, len(name))
		}
		slices.Sort(names)

		var b strings.Builder
		b.WriteString("\r\nAvailable Commands:\r\n")
		for _, name := range names {
			desc := ""
			if d, ok := in.Available[name].(command.Describer); ok {
				desc = d.Description()
			}
			fmt.Fprintf(&b, "%*s - %s\r\n", width+1, name, desc)
		}
		return command.Text(b.String()), nil
	})
}

// NewHeloCommand 返回问候语
func NewHeloCommand(greeting string) command.Command {
	return command.NewQuick(CmdHelo, "Greeting", func(context.Context, command.Input) (command.Result, error) {
		return command.Text(greeting), nil
	})
}

// NewQuitCommand 关闭当前客户端
func NewQuitCommand() command.Command {
	return command.NewQuick(CmdQuit, "Close the client", func(context.Context, command.Input) (command.Result, error) {
		return command.Result{Outcome: command.Quit}, nil
	})
}

// NewTerminateCommand 请求关闭整个服务
func NewTerminateCommand(name string, lc logger.LoggingClient) command.Command {
	return command.NewQuick(CmdTerminate, "Shutdown the "+name+" server", func(_ context.Context, in command.Input) (command.Result, error) {
		lc.Info("Requesting shutdown", "session", in.SessionID)
		return command.Result{Outcome: command.Shutdown}, nil
	}, command.Privileged)
}

// NewWriteCommand 将消息写入日志并原样返回
func NewWriteCommand(lc logger.LoggingClient) command.Command {
	return command.NewQuick(CmdWrite, "[value] Write message to log", func(_ context.Context, in command.Input) (command.Result, error) {
		lc.Info(in.Payload, "session", in.SessionID)
		return command.Text(in.Payload), nil
	})
}

// NewSetStateCommand 将原始值直接写入绑定到软件地址的组件, 不经过状态变量
func NewSetStateCommand(devices devicemanager.DeviceManagerInterface) command.Command {
	return command.NewQuick(CmdSetState, "[int address]=[value] Write a raw value to a component", func(_ context.Context, in command.Input) (command.Result, error) {
		parts := strings.Split(in.Payload, "=")
		if len(parts) != 2 || parts[1] == "" {
			return command.Text(setStateFormat), nil
		}

		address, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || address < 0 {
			return command.Text(setStateUnsigned), nil
		}

		if err := devices.Route(address, []byte(parts[1])); err != nil {
			if errors.Is(err, devicemanager.ErrNoDevice) {
				return command.Text(fmt.Sprintf(setStateNoDevice, address)), nil
			}
			return command.Result{}, err
		}
		return command.Text(setStateOK), nil
	})
}

// NewListDevicesCommand 列出主机上的串口
func NewListDevicesCommand(lister hardware.PortLister) command.Command {
	return command.NewQuick(CmdListDevices, "List attached serial devices", func(context.Context, command.Input) (command.Result, error) {
		ports, err := lister()
		if err != nil {
			return command.Result{}, fmt.Errorf("enumerate serial ports: %w", err)
		}
		if len(ports) == 0 {
			return command.Text("No serial devices found"), nil
		}

		lines := make([]string, 0, len(ports))
		for i, p := range ports {
			lines = append(lines, fmt.Sprintf("%d) %s sn:%s", i+1, p.Description(), p.SerialNumber))
		}
		return command.Text(strings.Join(lines, "\r\n")), nil
	})
}
