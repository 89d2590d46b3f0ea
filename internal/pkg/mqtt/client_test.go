package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"sim-gateway-go/internal/pkg/command"
	"sim-gateway-go/internal/pkg/logger"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// doneToken is an already completed token.
type doneToken struct {
	pahomqtt.Token
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }

// fakeClient records publishes. Methods it does not override panic.
type fakeClient struct {
	pahomqtt.Client

	mu         sync.Mutex
	published  [][]byte
	topics     []string
	subscribed string
	publishErr error
	connected  bool
}

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return &doneToken{}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *fakeClient) Subscribe(topic string, _ byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	c.subscribed = topic
	c.mu.Unlock()
	return &doneToken{}
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return &doneToken{err: c.publishErr}
	}
	c.topics = append(c.topics, topic)
	c.published = append(c.published, payload.([]byte))
	return &doneToken{}
}

func (c *fakeClient) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.published...)
}

// mockMessage implements pahomqtt.Message for testing
type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 0 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

func createTestClientManager(t *testing.T) (*ClientManager, *fakeClient) {
	t.Helper()
	cm := NewClientManager("test-node", ClientConfig{
		Broker:    "tcp://localhost:1883",
		ClientID:  "test-client",
		QoS:       1,
		KeepAlive: 60,
	}, logger.NewClient(logger.ErrorLog))
	fc := &fakeClient{}
	cm.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client { return fc }
	return cm, fc
}

func TestNewClientManager(t *testing.T) {
	cm, _ := createTestClientManager(t)
	assert.Equal(t, "test-node", cm.GetNodeID())
	assert.Equal(t, "/v1/sim/test-node/up", cm.topicUp)
	assert.Equal(t, "/v1/sim/test-node/down", cm.topicDown)
	assert.False(t, cm.IsConnected())
}

func TestPublishBeforeConnect(t *testing.T) {
	cm, _ := createTestClientManager(t)
	assert.Error(t, cm.Publish(NewMessage(TypeHeartbeat, nil)))
}

func TestConnectAndPublish(t *testing.T) {
	cm, fc := createTestClientManager(t)
	require.NoError(t, cm.Connect())
	assert.True(t, cm.IsConnected())

	msg := NewMessage(TypeStateChange, &StateChangePayload{Events: []StateRecord{{Address: 1, Value: "10.5"}}})
	require.NoError(t, cm.Publish(msg))

	got := fc.messages()
	require.Len(t, got, 1)
	assert.Equal(t, "/v1/sim/test-node/down", fc.topics[0])

	parsed, err := ParseMessage(got[0])
	require.NoError(t, err)
	assert.Equal(t, msg.RequestID, parsed.RequestID)
	payload, err := parsed.GetStateChangePayload()
	require.NoError(t, err)
	assert.Equal(t, "10.5", payload.Events[0].Value)

	cm.Disconnect()
	assert.False(t, cm.IsConnected())
}

func TestPublishError(t *testing.T) {
	cm, fc := createTestClientManager(t)
	require.NoError(t, cm.Connect())
	fc.publishErr = errors.New("not connected")

	assert.Error(t, cm.Publish(NewMessage(TypeHeartbeat, nil)))
	assert.Error(t, cm.PublishResponse(NewResponse("r", TypeCommand, CodeOK, "OK", nil)))
}

func TestHeartbeat(t *testing.T) {
	cm, fc := createTestClientManager(t)
	require.NoError(t, cm.Connect())

	cm.StartHeartbeat(time.Hour)
	require.Eventually(t, func() bool { return len(fc.messages()) == 1 }, time.Second, 5*time.Millisecond)
	cm.StopHeartbeat()
	assert.NotPanics(t, cm.StopHeartbeat)

	msg, err := ParseMessage(fc.messages()[0])
	require.NoError(t, err)
	assert.Equal(t, TypeHeartbeat, msg.Type)
	assert.Equal(t, "test-node", msg.Payload.(map[string]interface{})["nodeId"])
}

func TestStopHeartbeatNotStarted(t *testing.T) {
	cm, _ := createTestClientManager(t)
	assert.NotPanics(t, cm.StopHeartbeat)
	assert.NotPanics(t, cm.Disconnect)
}

func TestOnMessageRouting(t *testing.T) {
	cm, _ := createTestClientManager(t)

	var got *MQTTMessage
	cm.RegisterMessageHandler(TypeCommand, func(msg *MQTTMessage) error {
		got = msg
		return nil
	})

	data, err := NewMessage(TypeCommand, &CommandPayload{Command: "helo"}).ToJSON()
	require.NoError(t, err)
	cm.onMessage(nil, &mockMessage{topic: cm.topicUp, payload: data})

	require.NotNil(t, got)
	payload, err := got.GetCommandPayload()
	require.NoError(t, err)
	assert.Equal(t, "helo", payload.Command)

	assert.NotPanics(t, func() {
		cm.onMessage(nil, &mockMessage{topic: cm.topicUp, payload: []byte("invalid json")})
	})
	data, _ = json.Marshal(NewMessage(999, nil))
	assert.NotPanics(t, func() {
		cm.onMessage(nil, &mockMessage{topic: cm.topicUp, payload: data})
	})
}

func TestPayloadTypeMismatch(t *testing.T) {
	_, err := NewMessage(TypeHeartbeat, nil).GetCommandPayload()
	assert.Error(t, err)
	_, err = NewMessage(TypeCommand, nil).GetStateChangePayload()
	assert.Error(t, err)
	_, err = NewResponse("x", TypeHeartbeat, CodeOK, "", nil).GetCommandResponsePayload()
	assert.Error(t, err)
}

type capturePublisher struct{ responses []*MQTTResponse }

func (p *capturePublisher) PublishResponse(resp *MQTTResponse) error {
	p.responses = append(p.responses, resp)
	return nil
}

func remoteRegistry(t *testing.T) *command.Registry {
	t.Helper()
	reg, err := command.NewBuilder().
		AddCommand(10, command.NewQuick("echo", "", func(_ context.Context, in command.Input) (command.Result, error) {
			return command.Text(in.Payload), nil
		})).
		AddCommand(10, command.NewQuick("boom", "", func(context.Context, command.Input) (command.Result, error) {
			return command.Result{}, errors.New("exploded")
		})).
		AddCommand(10, command.NewQuick("bye", "", func(context.Context, command.Input) (command.Result, error) {
			return command.Result{Outcome: command.Quit}, nil
		})).
		AddCommand(10, command.NewQuick("stop", "", func(context.Context, command.Input) (command.Result, error) {
			return command.Result{Outcome: command.Shutdown}, nil
		}, command.Privileged)).
		Build()
	require.NoError(t, err)
	return reg
}

func TestRemoteExecutor(t *testing.T) {
	tests := []struct {
		name     string
		msg      *MQTTMessage
		wantCode int
		wantOut  string
	}{
		{"executes", NewMessage(TypeCommand, &CommandPayload{Command: "echo", Payload: "hi"}), CodeOK, "hi"},
		{"unknown command", NewMessage(TypeCommand, &CommandPayload{Command: "nosuch"}), CodeNotFound, ""},
		{"command error", NewMessage(TypeCommand, &CommandPayload{Command: "boom"}), CodeCommandError, ""},
		{"privileged refused", NewMessage(TypeCommand, &CommandPayload{Command: "stop"}), CodeForbidden, ""},
		{"quit outcome refused", NewMessage(TypeCommand, &CommandPayload{Command: "bye"}), CodeForbidden, ""},
		{"wrong type", NewMessage(TypeHeartbeat, nil), CodeBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &capturePublisher{}
			ex := NewRemoteExecutor(remoteRegistry(t), 10, pub, logger.NewClient(logger.ErrorLog))
			require.NoError(t, ex.Handle(tt.msg))

			require.Len(t, pub.responses, 1)
			resp := pub.responses[0]
			assert.Equal(t, tt.msg.RequestID, resp.RequestID)
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantOut != "" {
				payload, err := resp.GetCommandResponsePayload()
				require.NoError(t, err)
				assert.Equal(t, tt.wantOut, payload.Output)
			}
		})
	}
}

func TestRemoteExecutorUnknownGroup(t *testing.T) {
	pub := &capturePublisher{}
	ex := NewRemoteExecutor(remoteRegistry(t), 99, pub, logger.NewClient(logger.ErrorLog))
	resp := ex.Execute(NewMessage(TypeCommand, &CommandPayload{Command: "echo"}))
	assert.Equal(t, CodeCommandError, resp.Code)
}
