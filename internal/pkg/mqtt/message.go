package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message type constants
const (
	TypeHeartbeat   = 1 // 心跳
	TypeStateChange = 2 // 状态变化事件批次
	TypeCommand     = 3 // 远程命令
)

// Response codes
const (
	CodeOK           = 200
	CodeBadRequest   = 400
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeCommandError = 500
)

const protocolVersion = "1.0"

// MQTTMessage represents the base message structure
type MQTTMessage struct {
	RequestID string      `json:"requestId"`
	Version   string      `json:"version"`
	Type      int         `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// MQTTResponse represents a response message with code and msg
type MQTTResponse struct {
	RequestID string      `json:"requestId"`
	Version   string      `json:"version"`
	Type      int         `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Code      int         `json:"code"`
	Msg       string      `json:"msg"`
	Payload   interface{} `json:"payload"`
}

// NewMessage creates a new MQTTMessage with default values
func NewMessage(msgType int, payload interface{}) *MQTTMessage {
	return &MQTTMessage{
		RequestID: uuid.New().String(),
		Version:   protocolVersion,
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// NewResponse creates a new MQTTResponse from a request
func NewResponse(requestID string, msgType int, code int, msg string, payload interface{}) *MQTTResponse {
	return &MQTTResponse{
		RequestID: requestID,
		Version:   protocolVersion,
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Code:      code,
		Msg:       msg,
		Payload:   payload,
	}
}

// ToJSON serializes the message to JSON bytes
func (m *MQTTMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToJSON serializes the response to JSON bytes
func (r *MQTTResponse) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ParseMessage parses JSON bytes into an MQTTMessage
func ParseMessage(data []byte) (*MQTTMessage, error) {
	var msg MQTTMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// ParseResponse parses JSON bytes into an MQTTResponse
func ParseResponse(data []byte) (*MQTTResponse, error) {
	var resp MQTTResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// ---- Payload Types ----

// HeartbeatPayload for type=1 heartbeat messages
type HeartbeatPayload struct {
	NodeID string `json:"nodeId"`
	Uptime int64  `json:"uptime"` // 秒
}

// StateRecord 一次状态变化
type StateRecord struct {
	Address   int    `json:"address"`
	Caption   string `json:"caption"`
	SimType   string `json:"simType"`
	Value     string `json:"value"`
	OldValue  string `json:"oldValue"`
	Timestamp int64  `json:"timestamp"` // 毫秒
}

// StateChangePayload for type=2 state change batches
type StateChangePayload struct {
	Events []StateRecord `json:"events"`
}

// CommandPayload for type=3 command messages
type CommandPayload struct {
	Command string `json:"command"`
	Payload string `json:"payload,omitempty"`
}

// CommandResponsePayload for type=3 command responses
type CommandResponsePayload struct {
	Command string `json:"command"`
	Output  string `json:"output,omitempty"`
}

// ---- Helper functions for payload extraction ----

func decodePayload[T any](raw interface{}) (*T, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetCommandPayload extracts CommandPayload from message
func (m *MQTTMessage) GetCommandPayload() (*CommandPayload, error) {
	if m.Type != TypeCommand {
		return nil, fmt.Errorf("message type is not command: %d", m.Type)
	}
	return decodePayload[CommandPayload](m.Payload)
}

// GetStateChangePayload extracts StateChangePayload from message
func (m *MQTTMessage) GetStateChangePayload() (*StateChangePayload, error) {
	if m.Type != TypeStateChange {
		return nil, fmt.Errorf("message type is not state change: %d", m.Type)
	}
	return decodePayload[StateChangePayload](m.Payload)
}

// GetCommandResponsePayload extracts CommandResponsePayload from response
func (r *MQTTResponse) GetCommandResponsePayload() (*CommandResponsePayload, error) {
	if r.Type != TypeCommand {
		return nil, fmt.Errorf("response type is not command: %d", r.Type)
	}
	return decodePayload[CommandResponsePayload](r.Payload)
}
