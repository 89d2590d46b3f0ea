package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"sim-gateway-go/internal/function"
	"sim-gateway-go/internal/pkg/command"
	"sim-gateway-go/internal/pkg/config"
	"sim-gateway-go/internal/pkg/dcs"
	"sim-gateway-go/internal/pkg/devicemanager"
	"sim-gateway-go/internal/pkg/forwardlog"
	"sim-gateway-go/internal/pkg/hardware"
	"sim-gateway-go/internal/pkg/logger"
	"sim-gateway-go/internal/pkg/metrics"
	"sim-gateway-go/internal/pkg/modbusserver"
	"sim-gateway-go/internal/pkg/mqtt"
	"sim-gateway-go/internal/pkg/server"
	"sim-gateway-go/internal/pkg/state"

	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRunning 服务已经在运行
var ErrAlreadyRunning = errors.New("service already running")

// AppService 是主应用服务
type AppService struct {
	appName    string
	version    string
	configPath string

	lc     logger.LoggingClient
	config *config.AppConfig
	opener hardware.Opener
	lister hardware.PortLister

	queue      *state.Queue
	processor  *state.Processor
	engine     *dcs.EngineInfo
	devices    *devicemanager.Registry
	schedulers []*hardware.Scheduler
	commands   *command.Registry
	server     *server.Server

	metrics       *metrics.Registry
	metricsServer *metrics.Server
	mqttClient    *mqtt.ClientManager
	forwarder     *forwardlog.Forwarder
	mirror        *modbusserver.Mirror

	ctx      context.Context
	cancel   context.CancelFunc
	running  atomic.Bool
	stopOnce sync.Once
}

// Option 配置AppService
type Option func(*AppService)

// WithOpener 替换串口打开方式
func WithOpener(o hardware.Opener) Option {
	return func(s *AppService) { s.opener = o }
}

// WithPortLister 替换串口枚举方式
func WithPortLister(l hardware.PortLister) Option {
	return func(s *AppService) { s.lister = l }
}

// WithLoggingClient 使用已有的日志客户端
func WithLoggingClient(lc logger.LoggingClient) Option {
	return func(s *AppService) { s.lc = lc }
}

// NewAppService 创建新的应用服务
func NewAppService(name string, version string, opts ...Option) (AppServiceInterface, error) {
	if name == "" {
		return nil, errors.New("please specify service name")
	}
	if version == "" {
		return nil, errors.New("please specify service version")
	}

	s := &AppService{
		appName: name,
		version: version,
		opener:  hardware.SerialOpener{},
		lister:  hardware.ListPorts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize 使用配置初始化服务
func (s *AppService) Initialize(configPath string) error {
	s.configPath = configPath

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	return s.initialize(cfg)
}

// initialize 按配置组装所有组件, 设备串口在此打开
func (s *AppService) initialize(cfg *config.AppConfig) error {
	s.config = cfg

	if s.lc == nil {
		s.lc = logger.NewClientWithConfig(logger.LoggerConfig{
			LogLevel:      cfg.Writable.LogLevel,
			FilePath:      cfg.Log.FilePath,
			EnableConsole: true,
			JSON:          cfg.Log.JSON,
		})
	}
	s.lc.Info("Initializing service", "name", s.appName, "version", s.version, "sim", cfg.SimType)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.queue = state.NewQueue()

	var deviceOpts []hardware.DeviceOption
	if cfg.Metrics.Enabled {
		s.metrics = metrics.NewRegistry()
		s.metricsServer = metrics.NewServer(cfg.Metrics.Address, s.metrics, s.lc)
		deviceOpts = append(deviceOpts, hardware.WithObserver(s.metrics))
	}

	// 拓扑: 设备, 控件和设备注册表
	devices, err := devicemanager.Assemble(cfg, s.opener, s.lister, s.lc, deviceOpts...)
	if err != nil {
		return fmt.Errorf("failed to assemble device topology: %w", err)
	}
	s.devices = devices
	for _, d := range devices.Devices() {
		s.schedulers = append(s.schedulers, hardware.NewScheduler(d, cfg.Scheduler.GetDeviceInterval(), s.lc))
	}

	s.engine = dcs.NewEngineInfo(s.queue, s.lc)

	commands, err := functions.NewRegistry(functions.Deps{
		Name:       s.appName,
		Version:    s.version,
		Devices:    s.devices,
		EngineInfo: s.engine,
		Lister:     s.lister,
		Logger:     s.lc,
	})
	if err != nil {
		return fmt.Errorf("failed to build command registry: %w", err)
	}
	s.commands = commands

	// 状态事件处理器, 顺序: 日志, 设备分发, MQTT转发, Modbus镜像, 指标
	handlers := []state.Handler{
		state.LogHandler(s.lc),
		devicemanager.DispatchHandler(s.devices),
	}

	if cfg.Mqtt.Enabled {
		s.mqttClient = mqtt.NewClientManager(cfg.Mqtt.NodeID, mqtt.ClientConfig{
			Broker:    cfg.Mqtt.Broker,
			ClientID:  cfg.Mqtt.ClientID,
			Username:  cfg.Mqtt.Username,
			Password:  cfg.Mqtt.Password,
			QoS:       byte(cfg.Mqtt.QoS),
			KeepAlive: cfg.Mqtt.KeepAlive,
		}, s.lc)
		s.forwarder = forwardlog.NewForwarder(s.mqttClient, s.lc,
			forwardlog.WithBatchSize(cfg.Mqtt.BatchSize),
			forwardlog.WithFlushInterval(cfg.Mqtt.GetFlushInterval()),
			forwardlog.WithStopTimeout(cfg.Scheduler.GetShutdownGrace()),
		)
		remote := mqtt.NewRemoteExecutor(s.commands, functions.RemoteGroup, s.mqttClient, s.lc)
		s.mqttClient.RegisterMessageHandler(mqtt.TypeCommand, remote.Handle)
		handlers = append(handlers, s.forwarder.Handler())
	}

	if cfg.Modbus.Enabled {
		s.mirror = modbusserver.NewMirror(&cfg.Modbus, s.lc)
		handlers = append(handlers, s.mirror.Handler())
	}

	if s.metrics != nil {
		handlers = append(handlers, s.metrics.Handler())
	}

	s.processor = state.NewProcessor(s.queue, cfg.Scheduler.GetStateInterval(), s.lc, handlers...)

	serverCfg, err := server.ConfigFrom(&cfg.Server)
	if err != nil {
		return err
	}
	serverOpts := []server.Option{
		server.WithOnClose(func() { s.lc.Info("Command server closed") }),
	}
	if s.metrics != nil {
		serverOpts = append(serverOpts,
			server.WithObserver(s.metrics),
			server.WithRegisterer(s.metrics.Registerer()),
		)
	}
	s.server = server.New(serverCfg, s.commands, s.lc, serverOpts...)

	s.lc.Info("Service initialized successfully", "devices", len(s.schedulers), "handlers", len(handlers))
	return nil
}

// Run 运行服务, 直到客户端请求关闭, 收到信号或调用Stop
func (s *AppService) Run() error {
	if s.server == nil {
		return errors.New("service not initialized")
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.lc.Info("Starting service", "name", s.appName)

	if err := s.startSurfaces(); err != nil {
		s.shutdown()
		return err
	}
	if err := s.server.Listen(); err != nil {
		s.shutdown()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return s.processor.Run(gctx) })
	for _, sch := range s.schedulers {
		g.Go(func() error { return sch.Run(gctx) })
	}
	g.Go(func() error { return s.server.Serve(gctx) })

	// 等待关闭触发, 然后停止接受连接并取消周期任务
	g.Go(func() error {
		select {
		case <-s.server.ShutdownRequested():
			s.lc.Info("Shutdown requested by client")
		case sig := <-sigCh:
			s.lc.Info("Received signal", "signal", sig.String())
		case <-gctx.Done():
		}
		if err := s.server.Close(); err != nil {
			s.lc.Warn("Failed to close command server", "err", err)
		}
		cancel()
		return nil
	})

	err := g.Wait()
	if err != nil {
		s.lc.Error("Service stopped with error", "err", err, "state", s.server.ErrorState().String())
	}

	s.drain(s.config.Scheduler.GetShutdownGrace())
	s.shutdown()
	return err
}

// startSurfaces 启动可选的对外接口
func (s *AppService) startSurfaces() error {
	if s.metricsServer != nil {
		if err := s.metricsServer.Start(); err != nil {
			return err
		}
	}
	if s.mqttClient != nil {
		if err := s.mqttClient.Connect(); err != nil {
			return fmt.Errorf("MQTT connect failed: %w", err)
		}
		s.mqttClient.StartHeartbeat(s.config.Mqtt.GetHeartbeatInterval())
		s.forwarder.Start()
	}
	if s.mirror != nil {
		if err := s.mirror.Start(s.ctx); err != nil {
			return err
		}
	}
	return nil
}

// drain 在宽限期内处理剩余事件并刷新设备队列
func (s *AppService) drain(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if n := s.processor.Tick(); n > 0 {
			s.lc.Debug("Processed remaining state events", "events", n)
		}
		for _, d := range s.devices.Devices() {
			if _, err := d.Flush(); err != nil {
				s.lc.Warn("Final flush failed", "device", d.Name(), "err", err)
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(grace):
		s.lc.Warn("Shutdown grace period elapsed, forcing stop", "grace", grace)
	}
}

// shutdown 停止对外接口并关闭设备, 只执行一次
func (s *AppService) shutdown() {
	s.stopOnce.Do(func() {
		s.lc.Info("Stopping service", "name", s.appName)

		if s.cancel != nil {
			s.cancel()
		}
		if s.server != nil {
			_ = s.server.Close()
		}
		if s.mirror != nil {
			_ = s.mirror.Stop()
		}
		if s.forwarder != nil {
			s.forwarder.Stop()
		}
		if s.mqttClient != nil {
			s.mqttClient.Disconnect()
		}
		if s.metricsServer != nil {
			if err := s.metricsServer.Stop(time.Second); err != nil {
				s.lc.Warn("Failed to stop metrics server", "err", err)
			}
		}
		if s.devices != nil {
			if err := s.devices.Close(); err != nil {
				s.lc.Warn("Failed to close devices", "err", err)
			}
		}

		s.lc.Info("Service stopped successfully")
	})
}

// Stop 停止服务. 运行中时由Run完成清理
func (s *AppService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if !s.running.Load() && s.lc != nil {
		s.shutdown()
	}
	return nil
}

// Getter methods (获取器方法)

// GetLoggingClient 返回日志客户端
func (s *AppService) GetLoggingClient() logger.LoggingClient {
	return s.lc
}

// GetServer 返回命令服务器
func (s *AppService) GetServer() server.ServerInterface {
	if s.server == nil {
		return nil
	}
	return s.server
}

// GetDeviceManager 返回设备注册表
func (s *AppService) GetDeviceManager() devicemanager.DeviceManagerInterface {
	if s.devices == nil {
		return nil
	}
	return s.devices
}

// GetEngineInfo 返回发动机状态
func (s *AppService) GetEngineInfo() *dcs.EngineInfo {
	return s.engine
}

// GetModbusMirror 返回Modbus镜像
func (s *AppService) GetModbusMirror() modbusserver.MirrorInterface {
	if s.mirror == nil {
		return nil
	}
	return s.mirror
}

// GetMQTTClient 返回MQTT客户端管理器
func (s *AppService) GetMQTTClient() *mqtt.ClientManager {
	return s.mqttClient
}

// GetForwarder 返回状态事件转发器
func (s *AppService) GetForwarder() *forwardlog.Forwarder {
	return s.forwarder
}

// GetAppConfig 返回应用配置
func (s *AppService) GetAppConfig() *config.AppConfig {
	return s.config
}

// GetContext 返回服务上下文
func (s *AppService) GetContext() context.Context {
	return s.ctx
}
