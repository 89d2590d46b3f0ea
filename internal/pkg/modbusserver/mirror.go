package modbusserver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"sim-gateway-go/internal/pkg/config"
	"sim-gateway-go/internal/pkg/logger"
	"sim-gateway-go/internal/pkg/state"

	"github.com/tbrandon/mbserver"
)

// ErrAlreadyRunning Mirror已经启动
var ErrAlreadyRunning = errors.New("modbus mirror already running")

// Mirror 以只读Modbus TCP方式提供最新状态值
type Mirror struct {
	config *config.ModbusConfig
	server *mbserver.Server
	cache  *Cache
	reader *RegisterReader
	lc     logger.LoggingClient

	running atomic.Bool
	records atomic.Int64
	cancel  context.CancelFunc
}

// NewMirror 创建新的Modbus镜像
func NewMirror(cfg *config.ModbusConfig, lc logger.LoggingClient) *Mirror {
	cache := NewCache(cfg.GetCacheTTL())
	return &Mirror{
		config: cfg,
		cache:  cache,
		reader: NewRegisterReader(cache, NewConverter(BigEndian), lc),
		lc:     lc,
	}
}

// Handler 返回注册到状态处理器的处理函数
func (m *Mirror) Handler() state.Handler {
	return m.Record
}

// Record 记录一个状态事件的新值
func (m *Mirror) Record(ev state.Event) {
	addr := ev.Control.Address
	if addr < 0 || addr > 0xFFFF {
		m.lc.Debug(fmt.Sprintf("Address %d outside Modbus range, not mirrored", addr))
		return
	}
	m.cache.Set(uint16(addr), &CachedData{
		Value:     ev.Value,
		Caption:   ev.Control.Caption,
		SimType:   ev.Control.SimType,
		Timestamp: ev.Time,
	})
	m.records.Add(1)
}

// Lookup 返回软件地址当前的镜像值
func (m *Mirror) Lookup(addr uint16) (interface{}, bool) {
	data, ok := m.cache.Get(addr)
	if !ok {
		return nil, false
	}
	return data.Value, true
}

// Start 启动Modbus TCP监听器
func (m *Mirror) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	m.server = mbserver.NewServer()
	m.registerHandlers()

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	if err := m.server.ListenTCP(addr); err != nil {
		m.running.Store(false)
		return fmt.Errorf("failed to start Modbus TCP listener: %w", err)
	}

	if ttl := m.config.GetCacheTTL(); ttl > 0 {
		m.cache.StartPeriodicCleanup(ttl, func(n int) {
			m.lc.Debug(fmt.Sprintf("Expired %d mirrored values", n))
		})
	}

	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		_ = m.Stop()
	}()

	m.lc.Info(fmt.Sprintf("Modbus mirror started on %s", addr))
	return nil
}

// registerHandlers 注册功能码处理程序, 写功能码一律拒绝
func (m *Mirror) registerHandlers() {
	m.server.RegisterFunctionHandler(1, m.handleReadBits)      // 0x01 读线圈
	m.server.RegisterFunctionHandler(2, m.handleReadBits)      // 0x02 读离散输入
	m.server.RegisterFunctionHandler(3, m.handleReadRegisters) // 0x03 读保持寄存器
	m.server.RegisterFunctionHandler(4, m.handleReadRegisters) // 0x04 读输入寄存器

	for _, fc := range []uint8{5, 6, 15, 16} {
		m.server.RegisterFunctionHandler(fc, m.handleWrite)
	}
}

func (m *Mirror) handleReadBits(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	startAddr, quantity, err := parseReadRequest(frame, 2000)
	if err != nil {
		return []byte{}, &mbserver.IllegalDataValue
	}
	m.lc.Debug(fmt.Sprintf("Read bits: fc=%d, addr=%d, quantity=%d", frame.GetFunction(), startAddr, quantity))
	return m.reader.ReadBits(startAddr, quantity), &mbserver.Success
}

func (m *Mirror) handleReadRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	startAddr, quantity, err := parseReadRequest(frame, 125)
	if err != nil {
		return []byte{}, &mbserver.IllegalDataValue
	}
	return m.reader.ReadRegisters(startAddr, quantity), &mbserver.Success
}

func (m *Mirror) handleWrite(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	m.lc.Warn(fmt.Sprintf("Rejected write function %d on read-only mirror", frame.GetFunction()))
	return []byte{}, &mbserver.IllegalFunction
}

// parseReadRequest 解析读取请求的起始地址和数量
func parseReadRequest(frame mbserver.Framer, maxQty uint16) (uint16, uint16, error) {
	data := frame.GetData()
	if len(data) < 4 {
		return 0, 0, fmt.Errorf("invalid data length")
	}

	startAddr := uint16(data[0])<<8 | uint16(data[1])
	quantity := uint16(data[2])<<8 | uint16(data[3])

	if quantity < 1 || quantity > maxQty {
		return 0, 0, fmt.Errorf("quantity out of range: %d", quantity)
	}
	return startAddr, quantity, nil
}

// Stop 停止Modbus镜像
func (m *Mirror) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.cache.Stop()
	if m.server != nil {
		m.server.Close()
	}
	m.lc.Info("Modbus mirror stopped", "records", m.records.Load())
	return nil
}

// IsRunning 返回镜像是否正在运行
func (m *Mirror) IsRunning() bool {
	return m.running.Load()
}
