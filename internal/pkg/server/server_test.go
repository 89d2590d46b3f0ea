package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"sim-gateway-go/internal/pkg/command"
	"sim-gateway-go/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLogger records error messages.
type MockLogger struct {
	mu     sync.Mutex
	errors []string
}

var _ logger.LoggingClient = (*MockLogger)(nil)

func (m *MockLogger) SetLogLevel(string) error                { return nil }
func (m *MockLogger) LogLevel() string                        { return logger.DebugLog }
func (m *MockLogger) Trace(string, ...interface{})            {}
func (m *MockLogger) Debug(string, ...interface{})            {}
func (m *MockLogger) Info(string, ...interface{})             {}
func (m *MockLogger) Warn(string, ...interface{})             {}
func (m *MockLogger) Tracef(string, ...interface{})           {}
func (m *MockLogger) Debugf(string, ...interface{})           {}
func (m *MockLogger) Infof(string, ...interface{})            {}
func (m *MockLogger) Warnf(string, ...interface{})            {}
func (m *MockLogger) Errorf(format string, a ...interface{})  { m.Error(fmt.Sprintf(format, a...)) }
func (m *MockLogger) Close() error                            { return nil }

func (m *MockLogger) Error(msg string, _ ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *MockLogger) Errors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func testRegistry(t *testing.T) *command.Registry {
	t.Helper()
	reg, err := command.NewBuilder().
		AddCommand(0, command.NewQuick("echo", "echo payload", func(_ context.Context, in command.Input) (command.Result, error) {
			return command.Text(in.Payload), nil
		})).
		AddCommand(0, command.NewQuick("cat", "multiline echo", func(_ context.Context, in command.Input) (command.Result, error) {
			return command.Text(in.Payload), nil
		}, command.Multiline)).
		AddCommand(0, command.NewQuick("fail", "always fails", func(context.Context, command.Input) (command.Result, error) {
			return command.Result{}, errors.New("nope")
		})).
		AddCommand(0, command.NewQuick("bye", "quit", func(context.Context, command.Input) (command.Result, error) {
			return command.Result{Output: "bye", Outcome: command.Quit}, nil
		})).
		AddCommand(0, command.NewQuick("stop", "shutdown", func(context.Context, command.Input) (command.Result, error) {
			return command.Result{Outcome: command.Shutdown}, nil
		}, command.Privileged)).
		AddCommand(0, command.NewQuick("who", "session id", func(_ context.Context, in command.Input) (command.Result, error) {
			return command.Text(fmt.Sprintf("%s %d", in.SessionID, len(in.Available))), nil
		})).
		Build()
	require.NoError(t, err)
	return reg
}

type pipeClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func (c *pipeClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(t, err)
}

func (c *pipeClient) read(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	s, err := ReadResponse(c.r, binary.BigEndian)
	require.NoError(t, err)
	return s
}

type sessionRun struct {
	outcome command.Outcome
	err     error
}

func startSession(t *testing.T, cfg SessionConfig, lc logger.LoggingClient) (*Session, *pipeClient, <-chan sessionRun) {
	t.Helper()
	srv, cli := net.Pipe()
	sess := NewSession(srv, testRegistry(t), cfg, lc, nil)
	done := make(chan sessionRun, 1)
	go func() {
		o, err := sess.Run(context.Background())
		done <- sessionRun{o, err}
	}()
	t.Cleanup(func() {
		_ = cli.Close()
		_ = sess.Close()
	})
	return sess, &pipeClient{conn: cli, r: bufio.NewReader(cli)}, done
}

func waitRun(t *testing.T, done <-chan sessionRun) sessionRun {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
		return sessionRun{}
	}
}

func TestResponseWriter(t *testing.T) {
	tests := []struct {
		name  string
		order binary.ByteOrder
		text  string
		want  []byte
	}{
		{"big endian", binary.BigEndian, "hi", []byte{0, 0, 0, 2, 'h', 'i', '\r', '\n'}},
		{"little endian", binary.LittleEndian, "hi", []byte{2, 0, 0, 0, 'h', 'i', '\r', '\n'}},
		{"utf8 byte length", binary.BigEndian, "é", []byte{0, 0, 0, 2, 0xC3, 0xA9, '\r', '\n'}},
		{"empty writes nothing", binary.BigEndian, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewResponseWriter(&buf, tt.order).WriteResponse(tt.text))
			assert.Equal(t, tt.want, buf.Bytes())
		})
	}
}

func TestReadResponse(t *testing.T) {
	var buf bytes.Buffer
	w := NewResponseWriter(&buf, binary.LittleEndian)
	require.NoError(t, w.WriteResponse("first"))
	require.NoError(t, w.WriteResponse("line one\nline two"))

	r := bufio.NewReader(&buf)
	got, err := ReadResponse(r, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, "first", got)
	got, err = ReadResponse(r, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", got)

	_, err = ReadResponse(bufio.NewReader(bytes.NewReader([]byte{0, 0, 0, 1, 'x', '\n', '\n'})), nil)
	assert.Error(t, err)
}

func TestResponseSizeLimit(t *testing.T) {
	huge := []byte{0xFF, 0xFF, 0xFF, 0xF0}
	_, err := ReadResponse(bufio.NewReader(bytes.NewReader(huge)), binary.BigEndian)
	assert.ErrorIs(t, err, ErrResponseTooLarge)

	var buf bytes.Buffer
	err = NewResponseWriter(&buf, nil).WriteResponse(string(make([]byte, MaxResponseSize+1)))
	assert.ErrorIs(t, err, ErrResponseTooLarge)
	assert.Zero(t, buf.Len())

	text := string(bytes.Repeat([]byte{'a'}, MaxResponseSize))
	require.NoError(t, NewResponseWriter(&buf, nil).WriteResponse(text))
	got, err := ReadResponse(bufio.NewReader(&buf), nil)
	require.NoError(t, err)
	assert.Len(t, got, MaxResponseSize)
}

func TestParseByteOrder(t *testing.T) {
	o, err := ParseByteOrder("little")
	require.NoError(t, err)
	assert.Equal(t, binary.LittleEndian, o)
	o, err = ParseByteOrder("")
	require.NoError(t, err)
	assert.Equal(t, binary.BigEndian, o)
	_, err = ParseByteOrder("middle")
	assert.Error(t, err)
}

func TestSessionPromptAndEcho(t *testing.T) {
	_, c, done := startSession(t, SessionConfig{Prompt: "Greetings"}, &MockLogger{})

	assert.Equal(t, "Greetings", c.read(t))

	c.send(t, "  echo   hello world  ")
	assert.Equal(t, "hello world", c.read(t))

	c.send(t, "bye")
	assert.Equal(t, "bye", c.read(t))

	r := waitRun(t, done)
	assert.NoError(t, r.err)
	assert.Equal(t, command.Quit, r.outcome)
}

func TestSessionPassesSessionContext(t *testing.T) {
	sess, c, _ := startSession(t, SessionConfig{}, &MockLogger{})

	c.send(t, "who")
	assert.Equal(t, sess.ID()+" 6", c.read(t))
}

func TestSessionUnknownCommand(t *testing.T) {
	lc := &MockLogger{}
	sess, c, done := startSession(t, SessionConfig{}, lc)

	c.send(t, "nosuch arg")
	assert.Equal(t, InvalidCommand, c.read(t))

	c.send(t, "echo still here")
	assert.Equal(t, "still here", c.read(t))

	c.send(t, "bye")
	c.read(t)
	waitRun(t, done)

	assert.Equal(t, 1, sess.Errors())
	assert.Equal(t, ModeCommand, sess.Mode())
	assert.Equal(t, 1, lc.Errors())
}

func TestSessionErrorThreshold(t *testing.T) {
	tests := []struct {
		name          string
		reset         bool
		lines         []string
		wantForced    bool
		wantErrCount  int
	}{
		{
			name:         "cumulative counter forces disconnect on fifth error",
			lines:        []string{"x", "x", "echo ok", "x", "fail", "x"},
			wantForced:   true,
			wantErrCount: 5,
		},
		{
			name:         "reset on success keeps session open",
			reset:        true,
			lines:        []string{"x", "x", "x", "x", "echo ok", "x", "x", "x", "x"},
			wantErrCount: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, c, done := startSession(t, SessionConfig{ResetErrorsOnSuccess: tt.reset}, &MockLogger{})
			for _, l := range tt.lines {
				c.send(t, l)
				got := c.read(t)
				if l == "echo ok" {
					assert.Equal(t, "ok", got)
				} else {
					assert.Equal(t, InvalidCommand, got)
				}
			}

			if tt.wantForced {
				r := waitRun(t, done)
				assert.NoError(t, r.err)
				assert.Equal(t, command.Quit, r.outcome)
			} else {
				c.send(t, "bye")
				c.read(t)
				waitRun(t, done)
			}
			assert.Equal(t, tt.wantErrCount, sess.Errors())
		})
	}
}

func TestSessionMultiline(t *testing.T) {
	sess, c, done := startSession(t, SessionConfig{}, &MockLogger{})

	c.send(t, "cat ignored payload")
	c.send(t, "first")
	c.send(t, " second ")
	c.send(t, ".")
	assert.Equal(t, "first\n second \n", c.read(t))

	// buffer is cleared between multiline commands
	c.send(t, "cat")
	c.send(t, "again")
	c.send(t, ".")
	assert.Equal(t, "again\n", c.read(t))

	c.send(t, "bye")
	c.read(t)
	waitRun(t, done)
	assert.Equal(t, ModeCommand, sess.Mode())
	assert.Zero(t, sess.Errors())
}

func TestSessionEmptyMultilineWritesNothing(t *testing.T) {
	_, c, done := startSession(t, SessionConfig{}, &MockLogger{})

	c.send(t, "cat")
	c.send(t, ".")
	c.send(t, "echo next")
	assert.Equal(t, "next", c.read(t))

	c.send(t, "bye")
	c.read(t)
	waitRun(t, done)
}

func TestSessionShutdown(t *testing.T) {
	_, c, done := startSession(t, SessionConfig{}, &MockLogger{})

	c.send(t, "stop")
	r := waitRun(t, done)
	assert.NoError(t, r.err)
	assert.Equal(t, command.Shutdown, r.outcome)
}

func TestSessionPeerDisconnect(t *testing.T) {
	sess, c, done := startSession(t, SessionConfig{}, &MockLogger{})

	require.NoError(t, c.conn.Close())
	r := waitRun(t, done)
	assert.Equal(t, command.Quit, r.outcome)
	assert.False(t, sess.IsRunning())
}

func TestSessionContextCancel(t *testing.T) {
	srv, cli := net.Pipe()
	defer cli.Close()
	sess := NewSession(srv, testRegistry(t), SessionConfig{}, &MockLogger{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, _ = sess.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session ignored cancellation")
	}
}

func TestSessionExpired(t *testing.T) {
	srv, cli := net.Pipe()
	defer cli.Close()
	sess := NewSession(srv, testRegistry(t), SessionConfig{}, &MockLogger{}, nil)
	defer sess.Close()

	assert.False(t, sess.Expired(0))
	assert.False(t, sess.Expired(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.True(t, sess.Expired(time.Millisecond))
	assert.NotEmpty(t, sess.ID())
	assert.Greater(t, sess.Uptime(), time.Duration(0))
}

// countingObserver counts session and command notifications.
type countingObserver struct {
	mu       sync.Mutex
	opened   int
	closed   int
	commands map[string]int
	failures int
}

func (o *countingObserver) SessionOpened() { o.mu.Lock(); o.opened++; o.mu.Unlock() }
func (o *countingObserver) SessionClosed() { o.mu.Lock(); o.closed++; o.mu.Unlock() }
func (o *countingObserver) CommandExecuted(name string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.commands == nil {
		o.commands = make(map[string]int)
	}
	o.commands[name]++
	if err != nil {
		o.failures++
	}
}

func (o *countingObserver) snapshot() (opened, closed, failures int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened, o.closed, o.failures
}

func startServer(t *testing.T, cfg Config, opts ...Option) (*Server, <-chan error) {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	if cfg.AcceptTimeout == 0 {
		cfg.AcceptTimeout = 20 * time.Millisecond
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	s := New(cfg, testRegistry(t), &MockLogger{}, opts...)
	require.NoError(t, s.Listen())

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()
	t.Cleanup(func() { _ = s.Close() })
	return s, done
}

func dial(t *testing.T, s *Server) *pipeClient {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &pipeClient{conn: conn, r: bufio.NewReader(conn)}
}

func TestServerServesSessions(t *testing.T) {
	obs := &countingObserver{}
	s, _ := startServer(t, Config{Session: SessionConfig{Prompt: "hello"}}, WithObserver(obs))

	c1 := dial(t, s)
	c2 := dial(t, s)
	assert.Equal(t, "hello", c1.read(t))
	assert.Equal(t, "hello", c2.read(t))

	c1.send(t, "echo one")
	c2.send(t, "echo two")
	assert.Equal(t, "one", c1.read(t))
	assert.Equal(t, "two", c2.read(t))

	c1.send(t, "fail")
	assert.Equal(t, InvalidCommand, c1.read(t))

	c1.send(t, "bye")
	assert.Equal(t, "bye", c1.read(t))

	require.Eventually(t, func() bool {
		_, closed, _ := obs.snapshot()
		return closed == 1
	}, 2*time.Second, 10*time.Millisecond)

	opened, _, failures := obs.snapshot()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, s.Sessions())

	up, err := s.Uptime()
	require.NoError(t, err)
	assert.Greater(t, up, time.Duration(0))
}

func TestServerShutdownCommand(t *testing.T) {
	closed := make(chan struct{})
	s, done := startServer(t, Config{}, WithOnClose(func() { close(closed) }))

	c := dial(t, s)
	c.send(t, "stop")

	select {
	case <-s.ShutdownRequested():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown was not requested")
	}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not stop")
	}

	require.NoError(t, s.Close())
	<-closed
	require.NoError(t, s.Close(), "second close is a no-op")
	assert.Equal(t, ErrNone, s.ErrorState())
}

func TestServerCloseDisconnectsSessions(t *testing.T) {
	s, done := startServer(t, Config{Session: SessionConfig{Prompt: "p"}})
	c := dial(t, s)
	c.read(t)

	require.NoError(t, s.Close())
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not stop")
	}
}

func TestServerIdleTimeout(t *testing.T) {
	s, _ := startServer(t, Config{
		IdleTimeout:     50 * time.Millisecond,
		MonitorInterval: 10 * time.Millisecond,
		Session:         SessionConfig{Prompt: "p"},
	})
	c := dial(t, s)
	c.read(t)

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestServerBindFailure(t *testing.T) {
	s, _ := startServer(t, Config{})

	other := New(Config{Address: s.Addr().String()}, testRegistry(t), &MockLogger{})
	err := other.Listen()
	assert.ErrorIs(t, err, ErrBind)
}

func TestServeRequiresListen(t *testing.T) {
	s := New(Config{Address: "127.0.0.1:0"}, testRegistry(t), &MockLogger{})
	assert.ErrorIs(t, s.Serve(context.Background()), ErrNotListening)
	_, err := s.Uptime()
	assert.ErrorIs(t, err, ErrNotListening)
}
