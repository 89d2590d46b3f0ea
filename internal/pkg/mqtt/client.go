package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sim-gateway-go/internal/pkg/logger"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler handles incoming MQTT messages of a specific type
type MessageHandler func(msg *MQTTMessage) error

// ClientManager manages the MQTT connection and message routing
type ClientManager struct {
	client pahomqtt.Client
	cfg    ClientConfig
	nodeID string

	topicUp   string // subscribe: /v1/sim/{nodeId}/up
	topicDown string // publish: /v1/sim/{nodeId}/down

	messageHandlers map[int]MessageHandler

	connectedAt   time.Time
	heartbeatStop chan struct{}
	heartbeatOnce sync.Once

	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	lc logger.LoggingClient
	mu sync.RWMutex
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker    string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
	KeepAlive int // seconds
}

// NewClientManager creates a new MQTT client manager
func NewClientManager(nodeID string, cfg ClientConfig, lc logger.LoggingClient) *ClientManager {
	return &ClientManager{
		cfg:             cfg,
		nodeID:          nodeID,
		topicUp:         fmt.Sprintf("/v1/sim/%s/up", nodeID),
		topicDown:       fmt.Sprintf("/v1/sim/%s/down", nodeID),
		messageHandlers: make(map[int]MessageHandler),
		newClient:       pahomqtt.NewClient,
		lc:              lc,
	}
}

// Connect establishes the MQTT connection
func (cm *ClientManager) Connect() error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cm.cfg.Broker)
	opts.SetClientID(cm.cfg.ClientID)
	if cm.cfg.Username != "" {
		opts.SetUsername(cm.cfg.Username)
	}
	if cm.cfg.Password != "" {
		opts.SetPassword(cm.cfg.Password)
	}
	if cm.cfg.KeepAlive > 0 {
		opts.SetKeepAlive(time.Duration(cm.cfg.KeepAlive) * time.Second)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		cm.lc.Info("MQTT connected, subscribing", "topic", cm.topicUp)
		if err := cm.subscribe(); err != nil {
			cm.lc.Error("MQTT subscribe failed", "err", err)
		}
	})
	opts.SetConnectionLostHandler(func(c pahomqtt.Client, err error) {
		cm.lc.Warn("MQTT connection lost", "err", err)
	})

	cm.client = cm.newClient(opts)
	token := cm.client.Connect()
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}
	cm.connectedAt = time.Now()
	cm.lc.Info("MQTT connected", "broker", cm.cfg.Broker)
	return nil
}

func (cm *ClientManager) subscribe() error {
	token := cm.client.Subscribe(cm.topicUp, cm.cfg.QoS, cm.onMessage)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("MQTT subscribe failed: %w", token.Error())
	}
	return nil
}

// onMessage parses an incoming message and routes it by type
func (cm *ClientManager) onMessage(client pahomqtt.Client, msg pahomqtt.Message) {
	var message MQTTMessage
	if err := json.Unmarshal(msg.Payload(), &message); err != nil {
		cm.lc.Error("Failed to parse MQTT message", "topic", msg.Topic(), "err", err)
		return
	}
	cm.lc.Debug("Received MQTT message", "type", message.Type, "requestId", message.RequestID)

	cm.mu.RLock()
	handler, ok := cm.messageHandlers[message.Type]
	cm.mu.RUnlock()
	if !ok {
		cm.lc.Warn("No handler registered for message", "type", message.Type)
		return
	}
	if err := handler(&message); err != nil {
		cm.lc.Error("Message handler error", "type", message.Type, "err", err)
	}
}

func (cm *ClientManager) publish(data []byte) error {
	if cm.client == nil {
		return fmt.Errorf("MQTT client not connected")
	}
	token := cm.client.Publish(cm.topicDown, cm.cfg.QoS, false, data)
	token.Wait()
	return token.Error()
}

// Publish publishes a message to the down topic
func (cm *ClientManager) Publish(msg *MQTTMessage) error {
	data, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	if err := cm.publish(data); err != nil {
		return fmt.Errorf("MQTT publish failed: %w", err)
	}
	cm.lc.Trace("Published message", "type", msg.Type, "topic", cm.topicDown)
	return nil
}

// PublishResponse publishes a response message to the down topic
func (cm *ClientManager) PublishResponse(resp *MQTTResponse) error {
	data, err := resp.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize response: %w", err)
	}
	if err := cm.publish(data); err != nil {
		return fmt.Errorf("MQTT publish response failed: %w", err)
	}
	cm.lc.Debug("Published response", "type", resp.Type, "code", resp.Code, "topic", cm.topicDown)
	return nil
}

// StartHeartbeat starts periodic heartbeat sending
func (cm *ClientManager) StartHeartbeat(interval time.Duration) {
	cm.heartbeatStop = make(chan struct{})
	cm.heartbeatOnce = sync.Once{}
	go func(stop <-chan struct{}) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		cm.sendHeartbeat()
		for {
			select {
			case <-ticker.C:
				cm.sendHeartbeat()
			case <-stop:
				cm.lc.Info("Heartbeat stopped")
				return
			}
		}
	}(cm.heartbeatStop)
	cm.lc.Info("Heartbeat started", "interval", interval)
}

func (cm *ClientManager) sendHeartbeat() {
	var uptime int64
	if !cm.connectedAt.IsZero() {
		uptime = int64(time.Since(cm.connectedAt).Seconds())
	}
	msg := NewMessage(TypeHeartbeat, &HeartbeatPayload{NodeID: cm.nodeID, Uptime: uptime})
	if err := cm.Publish(msg); err != nil {
		cm.lc.Error("Failed to send heartbeat", "err", err)
	}
}

// StopHeartbeat stops the heartbeat goroutine
func (cm *ClientManager) StopHeartbeat() {
	if cm.heartbeatStop != nil {
		cm.heartbeatOnce.Do(func() { close(cm.heartbeatStop) })
	}
}

// RegisterMessageHandler registers a handler for a specific message type
func (cm *ClientManager) RegisterMessageHandler(msgType int, handler MessageHandler) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.messageHandlers[msgType] = handler
}

// Disconnect cleanly disconnects the MQTT client
func (cm *ClientManager) Disconnect() {
	cm.StopHeartbeat()
	if cm.client != nil && cm.client.IsConnected() {
		cm.client.Disconnect(1000)
		cm.lc.Info("MQTT disconnected")
	}
}

// GetNodeID returns the node ID
func (cm *ClientManager) GetNodeID() string {
	return cm.nodeID
}

// IsConnected returns whether the MQTT client is connected
func (cm *ClientManager) IsConnected() bool {
	return cm.client != nil && cm.client.IsConnected()
}
