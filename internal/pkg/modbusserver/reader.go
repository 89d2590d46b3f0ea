package modbusserver

import (
	"fmt"

	"sim-gateway-go/internal/pkg/logger"
)

// RegisterReader 从缓存构建Modbus读取响应
type RegisterReader struct {
	cache     *Cache
	converter *Converter
	lc        logger.LoggingClient
}

// NewRegisterReader 创建新的寄存器读取器
func NewRegisterReader(cache *Cache, conv *Converter, lc logger.LoggingClient) *RegisterReader {
	return &RegisterReader{
		cache:     cache,
		converter: conv,
		lc:        lc,
	}
}

// ReadBits 读取线圈或离散输入, 位i对应软件地址startAddr+i
func (r *RegisterReader) ReadBits(startAddr uint16, quantity uint16) []byte {
	byteCount := (quantity + 7) / 8
	data := make([]byte, 1+byteCount)
	data[0] = byte(byteCount)

	for i := uint16(0); i < quantity; i++ {
		cached, ok := r.cache.Get(startAddr + i)
		if ok && ToBool(cached.Value) {
			data[1+i/8] |= 1 << (i % 8)
		}
	}
	return data
}

// ReadRegisters 读取保持或输入寄存器, 软件地址n的值位于寄存器2n和2n+1
func (r *RegisterReader) ReadRegisters(startAddr uint16, quantity uint16) []byte {
	data := make([]byte, 1+int(quantity)*2)
	data[0] = byte(quantity * 2)

	for i := uint16(0); i < quantity; i++ {
		reg := uint32(startAddr) + uint32(i)
		addr := reg / RegistersPerValue
		if addr > 0xFFFF {
			break
		}
		cached, ok := r.cache.Get(uint16(addr))
		if !ok {
			continue
		}
		half := int(reg%RegistersPerValue) * 2
		word := r.converter.ToRegisters(cached.Value)
		copy(data[1+int(i)*2:], word[half:half+2])
	}

	r.lc.Debug(fmt.Sprintf("Read registers: start=%d, quantity=%d", startAddr, quantity))
	return data
}
