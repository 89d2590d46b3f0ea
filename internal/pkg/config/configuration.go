package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrConfigNotFound 配置文件不存在
	ErrConfigNotFound = errors.New("configuration file not found")
	// ErrConfigUnreadable 配置文件无法读取
	ErrConfigUnreadable = errors.New("configuration file unreadable")
	// ErrConfigParse 配置文件解析或校验失败
	ErrConfigParse = errors.New("configuration parse error")
	// ErrServerConfig 服务器监听配置错误
	ErrServerConfig = errors.New("server configuration error")
)

const (
	MinServerPort     = 1024
	MaxServerPort     = 65534
	DefaultServerPort = 4201
)

// Component types understood by the topology builder
const (
	ComponentToggle       = "toggle"
	ComponentMomentary    = "momentary"
	ComponentRotary       = "rotary"
	ComponentLCDCharacter = "lcd_character"
	ComponentLED          = "led"
)

var componentTypes = map[string]bool{
	ComponentToggle:       true,
	ComponentMomentary:    true,
	ComponentRotary:       true,
	ComponentLCDCharacter: true,
	ComponentLED:          true,
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// WritableConfig 保持运行时可更改的配置
type WritableConfig struct {
	LogLevel string `yaml:"LogLevel"`
}

// LogConfig 日志输出配置
type LogConfig struct {
	FilePath string `yaml:"FilePath"`
	JSON     bool   `yaml:"JSON"`
}

// ServerConfig 保持TCP命令服务器配置
type ServerConfig struct {
	Host                 string `yaml:"Host"`
	Port                 int    `yaml:"Port"`
	AcceptTimeout        string `yaml:"AcceptTimeout"`
	Workers              int    `yaml:"Workers"`
	RetryInterval        string `yaml:"RetryInterval"`
	Prompt               string `yaml:"Prompt"`
	MaxSessionErrors     int    `yaml:"MaxSessionErrors"`
	ResetErrorsOnSuccess bool   `yaml:"ResetErrorsOnSuccess"`
	IdleTimeout          string `yaml:"IdleTimeout"`
	MonitorInterval      string `yaml:"MonitorInterval"`
	ResponseByteOrder    string `yaml:"ResponseByteOrder"` // "BIG" 或 "LITTLE"
}

// Address 返回监听地址
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetAcceptTimeout 返回accept超时作为time.Duration
func (s *ServerConfig) GetAcceptTimeout() time.Duration {
	return parseDuration(s.AcceptTimeout, 5*time.Second)
}

// GetRetryInterval 返回工作池拒绝后的重试间隔
func (s *ServerConfig) GetRetryInterval() time.Duration {
	return parseDuration(s.RetryInterval, time.Second)
}

// GetIdleTimeout 返回会话空闲超时, 0表示禁用
func (s *ServerConfig) GetIdleTimeout() time.Duration {
	return parseDuration(s.IdleTimeout, 0)
}

// GetMonitorInterval 返回会话存活检查间隔
func (s *ServerConfig) GetMonitorInterval() time.Duration {
	return parseDuration(s.MonitorInterval, 5*time.Second)
}

// SchedulerConfig 周期任务配置
type SchedulerConfig struct {
	StateInterval  string `yaml:"StateInterval"`
	DeviceInterval string `yaml:"DeviceInterval"`
	ShutdownGrace  string `yaml:"ShutdownGrace"`
}

// GetStateInterval 返回状态事件处理周期
func (s *SchedulerConfig) GetStateInterval() time.Duration {
	return parseDuration(s.StateInterval, 100*time.Millisecond)
}

// GetDeviceInterval 返回设备写队列刷新周期
func (s *SchedulerConfig) GetDeviceInterval() time.Duration {
	return parseDuration(s.DeviceInterval, 100*time.Millisecond)
}

// GetShutdownGrace 返回强制取消前的宽限期
func (s *SchedulerConfig) GetShutdownGrace() time.Duration {
	return parseDuration(s.ShutdownGrace, 5*time.Second)
}

// ComponentConfig 设备上的一个物理控件
type ComponentConfig struct {
	Type            string         `yaml:"Type"`
	Name            string         `yaml:"Name"`
	Description     string         `yaml:"Description"`
	Address         int            `yaml:"Address"` // software address
	HardwareAddress int            `yaml:"HardwareAddress"`
	Sim             map[string]int `yaml:"Sim"` // per simulator hardware address override
}

// ResolveHardwareAddress returns the hardware address used for the given simulator type.
func (c *ComponentConfig) ResolveHardwareAddress(simType string) int {
	if addr, ok := c.Sim[simType]; ok {
		return addr
	}
	return c.HardwareAddress
}

// DeviceConfig 串口设备配置
type DeviceConfig struct {
	Name          string            `yaml:"Name"`
	Serial        string            `yaml:"Serial"`
	Port          string            `yaml:"Port"`
	Description   string            `yaml:"Description"`
	BaudRate      int               `yaml:"BaudRate"`
	DataBits      int               `yaml:"DataBits"`
	StopBits      int               `yaml:"StopBits"`
	Parity        string            `yaml:"Parity"`
	Timeout       string            `yaml:"Timeout"`
	QueueCapacity int               `yaml:"QueueCapacity"`
	Components    []ComponentConfig `yaml:"Components"`
}

// GetTimeout 返回串口读写超时
func (d *DeviceConfig) GetTimeout() time.Duration {
	return parseDuration(d.Timeout, time.Second)
}

// MqttConfig 保持MQTT客户端配置
type MqttConfig struct {
	Enabled           bool   `yaml:"Enabled"`
	Broker            string `yaml:"Broker"`
	ClientID          string `yaml:"ClientID"`
	NodeID            string `yaml:"NodeID"`
	Username          string `yaml:"Username"`
	Password          string `yaml:"Password"`
	QoS               int    `yaml:"QoS"`
	KeepAlive         int    `yaml:"KeepAlive"` // 秒
	BatchSize         int    `yaml:"BatchSize"`
	FlushInterval     string `yaml:"FlushInterval"`
	HeartbeatInterval string `yaml:"HeartbeatInterval"`
}

// GetFlushInterval 返回状态事件批量发送间隔
func (m *MqttConfig) GetFlushInterval() time.Duration {
	return parseDuration(m.FlushInterval, time.Second)
}

// GetHeartbeatInterval 返回心跳间隔
func (m *MqttConfig) GetHeartbeatInterval() time.Duration {
	return parseDuration(m.HeartbeatInterval, 2*time.Minute)
}

// ModbusConfig 只读Modbus TCP镜像配置
type ModbusConfig struct {
	Enabled  bool   `yaml:"Enabled"`
	Host     string `yaml:"Host"`
	Port     int    `yaml:"Port"`
	CacheTTL string `yaml:"CacheTTL"`
}

// GetCacheTTL 返回缓存值的TTL, 0表示永不过期
func (m *ModbusConfig) GetCacheTTL() time.Duration {
	return parseDuration(m.CacheTTL, 0)
}

// MetricsConfig Prometheus指标端点配置
type MetricsConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Address string `yaml:"Address"`
}

// AppConfig 是主配置结构
type AppConfig struct {
	Writable  WritableConfig  `yaml:"Writable"`
	Log       LogConfig       `yaml:"Log"`
	Server    ServerConfig    `yaml:"Server"`
	Scheduler SchedulerConfig `yaml:"Scheduler"`
	SimType   string          `yaml:"SimType"`
	Devices   []DeviceConfig  `yaml:"Devices"`
	Mqtt      MqttConfig      `yaml:"Mqtt"`
	Modbus    ModbusConfig    `yaml:"Modbus"`
	Metrics   MetricsConfig   `yaml:"Metrics"`
}

// Validate 验证配置并填充默认值
func (c *AppConfig) Validate() error {
	if c.Writable.LogLevel == "" {
		c.Writable.LogLevel = "INFO"
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if c.Scheduler.StateInterval == "" {
		c.Scheduler.StateInterval = "100ms"
	}
	if c.Scheduler.DeviceInterval == "" {
		c.Scheduler.DeviceInterval = "100ms"
	}
	if c.Scheduler.ShutdownGrace == "" {
		c.Scheduler.ShutdownGrace = "5s"
	}

	if c.SimType == "" {
		c.SimType = "dcs"
	}
	c.SimType = strings.ToLower(c.SimType)

	if err := c.validateDevices(); err != nil {
		return err
	}

	if c.Mqtt.Enabled {
		if c.Mqtt.Broker == "" {
			return errors.New("MQTT Broker cannot be empty")
		}
		if c.Mqtt.ClientID == "" {
			return errors.New("MQTT ClientID cannot be empty")
		}
		if c.Mqtt.QoS < 0 || c.Mqtt.QoS > 2 {
			return errors.New("MQTT QoS must be 0, 1, or 2")
		}
	}
	if c.Mqtt.NodeID == "" {
		c.Mqtt.NodeID = "sim-gateway"
	}
	if c.Mqtt.KeepAlive <= 0 {
		c.Mqtt.KeepAlive = 60
	}
	if c.Mqtt.BatchSize <= 0 {
		c.Mqtt.BatchSize = 10
	}
	if c.Mqtt.FlushInterval == "" {
		c.Mqtt.FlushInterval = "1s"
	}
	if c.Mqtt.HeartbeatInterval == "" {
		c.Mqtt.HeartbeatInterval = "2m"
	}

	if c.Modbus.Host == "" {
		c.Modbus.Host = "0.0.0.0"
	}
	if c.Modbus.Port <= 0 {
		c.Modbus.Port = 5020
	}
	if c.Modbus.CacheTTL == "" {
		c.Modbus.CacheTTL = "0s"
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9120"
	}

	return nil
}

func (c *AppConfig) validateServer() error {
	s := &c.Server
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = DefaultServerPort
	}
	if s.Port < MinServerPort || s.Port > MaxServerPort {
		return fmt.Errorf("%w: port %d must be between %d and %d", ErrServerConfig, s.Port, MinServerPort, MaxServerPort)
	}
	if s.AcceptTimeout == "" {
		s.AcceptTimeout = "5s"
	}
	if s.Workers <= 0 {
		s.Workers = 20
	}
	if s.RetryInterval == "" {
		s.RetryInterval = "1s"
	}
	if s.MaxSessionErrors <= 0 {
		s.MaxSessionErrors = 5
	}
	if s.IdleTimeout == "" {
		s.IdleTimeout = "0s"
	}
	if s.MonitorInterval == "" {
		s.MonitorInterval = "5s"
	}
	switch strings.ToUpper(s.ResponseByteOrder) {
	case "", "BIG":
		s.ResponseByteOrder = "BIG"
	case "LITTLE":
		s.ResponseByteOrder = "LITTLE"
	default:
		return fmt.Errorf("%w: unknown response byte order %q", ErrServerConfig, s.ResponseByteOrder)
	}
	return nil
}

func (c *AppConfig) validateDevices() error {
	softwareAddrs := make(map[int]string)
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Name == "" {
			d.Name = fmt.Sprintf("device-%d", i)
		}
		if d.Serial == "" && d.Port == "" {
			return fmt.Errorf("device %s must define Serial or Port", d.Name)
		}
		if d.BaudRate <= 0 {
			d.BaudRate = 9600
		}
		if d.DataBits <= 0 {
			d.DataBits = 8
		}
		if d.StopBits <= 0 {
			d.StopBits = 1
		}
		if d.Parity == "" {
			d.Parity = "N"
		}
		if d.Timeout == "" {
			d.Timeout = "1s"
		}
		if d.QueueCapacity <= 0 {
			d.QueueCapacity = 10
		}

		hardwareAddrs := make(map[int]string)
		for j := range d.Components {
			comp := &d.Components[j]
			comp.Type = strings.ToLower(comp.Type)
			if !componentTypes[comp.Type] {
				return fmt.Errorf("device %s component %s: unknown type %q", d.Name, comp.Name, comp.Type)
			}
			if comp.Address < 0 {
				return fmt.Errorf("device %s component %s: software address must be unsigned", d.Name, comp.Name)
			}
			if owner, dup := softwareAddrs[comp.Address]; dup {
				return fmt.Errorf("software address %d used by both %s and %s/%s", comp.Address, owner, d.Name, comp.Name)
			}
			softwareAddrs[comp.Address] = d.Name + "/" + comp.Name

			hw := comp.ResolveHardwareAddress(c.SimType)
			if hw < 0 {
				// 当前模拟器没有对应硬件地址, 拓扑构建时跳过
				continue
			}
			if other, dup := hardwareAddrs[hw]; dup {
				return fmt.Errorf("device %s: hardware address %d used by both %s and %s", d.Name, hw, other, comp.Name)
			}
			hardwareAddrs[hw] = comp.Name
		}
	}
	return nil
}

// LoadConfig 从YAML文件加载配置
func LoadConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("%w: failed to read config file: %w", ErrConfigUnreadable, err)
	}

	var config AppConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %w", ErrConfigParse, err)
	}

	if err := config.Validate(); err != nil {
		if errors.Is(err, ErrServerConfig) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: config validation failed: %w", ErrConfigParse, err)
	}

	return &config, nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *AppConfig {
	cfg := &AppConfig{
		Writable: WritableConfig{LogLevel: "INFO"},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          DefaultServerPort,
			AcceptTimeout: "5s",
			Workers:       20,
		},
		SimType: "dcs",
		Mqtt: MqttConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "sim-gateway-001",
			NodeID:   "sim-gateway",
			QoS:      1,
		},
	}
	_ = cfg.Validate()
	return cfg
}
