package modbusserver

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

// ByteOrder 定义寄存器内多字节值的字节顺序
type ByteOrder int

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

// RegistersPerValue 每个状态值占用的寄存器数量 (float32)
const RegistersPerValue = 2

// Converter 将状态值转换为线圈位和float32寄存器
type Converter struct {
	byteOrder ByteOrder
}

// NewConverter 使用指定的字节顺序创建新的转换器
func NewConverter(order ByteOrder) *Converter {
	return &Converter{byteOrder: order}
}

// ToRegisters 将值编码为两个寄存器 (4字节float32)
func (c *Converter) ToRegisters(value interface{}) []byte {
	result := make([]byte, 4)
	bits := math.Float32bits(float32(ToFloat(value)))
	if c.byteOrder == BigEndian {
		binary.BigEndian.PutUint32(result, bits)
	} else {
		binary.LittleEndian.PutUint32(result, bits)
	}
	return result
}

// ToFloat 将各种状态值转换为float64, 无法识别的值为0
func ToFloat(value interface{}) float64 {
	switch v := value.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint16:
		return float64(v)
	case float32:
		return float64(v)
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// ToBool 将状态值转换为线圈位
func ToBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		s := strings.TrimSpace(strings.ToLower(v))
		if s == "true" || s == "on" {
			return true
		}
		return ToFloat(s) != 0
	default:
		return ToFloat(value) != 0
	}
}
