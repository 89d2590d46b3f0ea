package modbusserver

import (
	"context"
	"testing"
	"time"

	"sim-gateway-go/internal/pkg/config"
	"sim-gateway-go/internal/pkg/logger"
	"sim-gateway-go/internal/pkg/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbrandon/mbserver"
)

// MockFramer is a mock implementation of mbserver.Framer
type MockFramer struct {
	data      []byte
	function  uint8
	exception *byte
}

func (m *MockFramer) GetData() []byte     { return m.data }
func (m *MockFramer) GetFunction() uint8  { return m.function }
func (m *MockFramer) Bytes() []byte       { return m.data }
func (m *MockFramer) SetData(data []byte) { m.data = data }

func (m *MockFramer) Copy() mbserver.Framer {
	return &MockFramer{data: m.data, function: m.function}
}

func (m *MockFramer) SetException(exception *mbserver.Exception) {
	if exception != nil {
		val := byte(*exception)
		m.exception = &val
	}
}

func request(fc uint8, start, qty uint16) *MockFramer {
	return &MockFramer{
		function: fc,
		data:     []byte{byte(start >> 8), byte(start), byte(qty >> 8), byte(qty)},
	}
}

func newMirror(ttl string) *Mirror {
	return NewMirror(&config.ModbusConfig{Host: "127.0.0.1", Port: 0, CacheTTL: ttl}, logger.NewClient(logger.ErrorLog))
}

func record(m *Mirror, addr int, value any) {
	m.Handler()(state.Event{
		Control: state.Control{Address: addr, Caption: "c", SimType: "dcs"},
		Value:   value,
		Time:    time.Now(),
	})
}

func TestToBool(t *testing.T) {
	tests := []struct {
		value    any
		expected bool
	}{
		{true, true},
		{false, false},
		{1, true},
		{0, false},
		{0.5, true},
		{"on", true},
		{"TRUE", true},
		{"1", true},
		{"0", false},
		{"off", false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ToBool(tt.value), "%v", tt.value)
	}
}

func TestConverterByteOrder(t *testing.T) {
	tests := []struct {
		name     string
		order    ByteOrder
		expected []byte
	}{
		{"BigEndian", BigEndian, []byte{0x42, 0x2A, 0x00, 0x00}},
		{"LittleEndian", LittleEndian, []byte{0x00, 0x00, 0x2A, 0x42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewConverter(tt.order).ToRegisters(42.5))
			assert.Equal(t, tt.expected, NewConverter(tt.order).ToRegisters("42.5"))
		})
	}
}

func TestCacheTTL(t *testing.T) {
	c := NewCache(0)
	c.Set(1, &CachedData{Value: 1, Timestamp: time.Now().Add(-time.Hour)})
	_, ok := c.Get(1)
	assert.True(t, ok, "zero TTL never expires")

	c = NewCache(time.Minute)
	c.Set(1, &CachedData{Value: 1, Timestamp: time.Now().Add(-time.Hour)})
	c.Set(2, &CachedData{Value: 2})
	_, ok = c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Cleanup())
	assert.Equal(t, 1, c.Size())
	c.Stop()
	c.Stop()
}

func TestReadBits(t *testing.T) {
	m := newMirror("")
	record(m, 0, true)
	record(m, 2, true)
	record(m, 3, false)
	record(m, 9, "1")

	for _, fc := range []uint8{1, 2} {
		data, exc := m.handleReadBits(nil, request(fc, 0, 10))
		require.Equal(t, &mbserver.Success, exc)
		assert.Equal(t, []byte{2, 0x05, 0x02}, data)
	}
}

func TestReadRegisters(t *testing.T) {
	m := newMirror("")
	record(m, 3, 42.5)

	tests := []struct {
		name     string
		start    uint16
		qty      uint16
		expected []byte
	}{
		{"whole value", 6, 2, []byte{4, 0x42, 0x2A, 0x00, 0x00}},
		{"low word only", 7, 1, []byte{2, 0x00, 0x00}},
		{"straddles empty address", 5, 2, []byte{4, 0x00, 0x00, 0x42, 0x2A}},
		{"unmapped", 100, 1, []byte{2, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, exc := m.handleReadRegisters(nil, request(3, tt.start, tt.qty))
			require.Equal(t, &mbserver.Success, exc)
			assert.Equal(t, tt.expected, data)
		})
	}
}

func TestReadRequestValidation(t *testing.T) {
	m := newMirror("")

	_, exc := m.handleReadBits(nil, &MockFramer{function: 1, data: []byte{0, 1}})
	assert.Equal(t, &mbserver.IllegalDataValue, exc)

	_, exc = m.handleReadBits(nil, request(1, 0, 0))
	assert.Equal(t, &mbserver.IllegalDataValue, exc)

	_, exc = m.handleReadRegisters(nil, request(3, 0, 126))
	assert.Equal(t, &mbserver.IllegalDataValue, exc)
}

func TestWritesRejected(t *testing.T) {
	m := newMirror("")
	for _, fc := range []uint8{5, 6, 15, 16} {
		_, exc := m.handleWrite(nil, request(fc, 0, 1))
		assert.Equal(t, &mbserver.IllegalFunction, exc)
	}
}

func TestRecordOutOfRange(t *testing.T) {
	m := newMirror("")
	record(m, 70000, true)
	record(m, 4, 7)

	_, ok := m.Lookup(uint16(70000 & 0xFFFF))
	assert.False(t, ok)
	v, ok := m.Lookup(4)
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestStartStop(t *testing.T) {
	m := newMirror("1m")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Start(ctx))
	assert.True(t, m.IsRunning())
	assert.ErrorIs(t, m.Start(ctx), ErrAlreadyRunning)

	cancel()
	require.Eventually(t, func() bool { return !m.IsRunning() }, time.Second, 5*time.Millisecond)
	assert.NoError(t, m.Stop())
}
