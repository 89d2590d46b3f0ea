package server

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sim-gateway-go/internal/pkg/command"
	"sim-gateway-go/internal/pkg/logger"

	"github.com/google/uuid"
)

// MultilineTerminator ends multiline input when sent alone on a line.
const MultilineTerminator = "."

// InvalidCommand is written back for any failed line.
const InvalidCommand = "Invalid command"

const (
	DefaultMaxErrors = 5
	maxLineSize      = 1 << 20
)

// ErrTooManyErrors ends a session that hit the error threshold.
var ErrTooManyErrors = errors.New("too many invalid commands")

// Mode is the input mode of a session.
type Mode int

const (
	ModeCommand Mode = iota
	ModeMultiline
)

func (m Mode) String() string {
	if m == ModeMultiline {
		return "MULTILINE"
	}
	return "COMMAND"
}

// SessionConfig holds per-session protocol settings.
type SessionConfig struct {
	Prompt string
	// Group is the command group lines are resolved in
	Group                int
	MaxErrors            int
	ResetErrorsOnSuccess bool
	ByteOrder            binary.ByteOrder
}

// Session runs the line protocol for one connection.
type Session struct {
	id        string
	conn      net.Conn
	commands  *command.Registry
	cfg       SessionConfig
	lc        logger.LoggingClient
	observer  Observer
	out       *ResponseWriter
	connected time.Time

	lastActivity atomic.Int64
	running      atomic.Bool
	closeOnce    sync.Once

	// owned by the Run goroutine
	mode    Mode
	pending command.Command
	buffer  strings.Builder
	errors  int
}

// NewSession wraps conn. Run must be called to start reading.
func NewSession(conn net.Conn, commands *command.Registry, cfg SessionConfig, lc logger.LoggingClient, observer Observer) *Session {
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = DefaultMaxErrors
	}
	if observer == nil {
		observer = nopObserver{}
	}
	s := &Session{
		id:        uuid.NewString(),
		conn:      conn,
		commands:  commands,
		cfg:       cfg,
		lc:        lc,
		observer:  observer,
		out:       NewResponseWriter(conn, cfg.ByteOrder),
		connected: time.Now(),
	}
	s.lastActivity.Store(s.connected.UnixNano())
	s.running.Store(true)
	return s
}

func (s *Session) ID() string              { return s.id }
func (s *Session) ConnectedAt() time.Time  { return s.connected }
func (s *Session) Uptime() time.Duration   { return time.Since(s.connected) }
func (s *Session) IsRunning() bool         { return s.running.Load() }
func (s *Session) RemoteAddr() net.Addr    { return s.conn.RemoteAddr() }
func (s *Session) LastActivity() time.Time { return time.Unix(0, s.lastActivity.Load()) }

// Expired reports whether no line arrived within idle. Zero idle never expires.
func (s *Session) Expired(idle time.Duration) bool {
	return idle > 0 && time.Since(s.LastActivity()) > idle
}

// Close stops the session and closes its connection.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.running.Store(false)
		err = s.conn.Close()
	})
	return err
}

// Run reads lines until the peer disconnects, a command quits, the error
// threshold is reached or ctx is done. It returns command.Shutdown when a
// command asked to stop the service, command.Quit otherwise.
func (s *Session) Run(ctx context.Context) (command.Outcome, error) {
	defer s.running.Store(false)
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	if s.cfg.Prompt != "" {
		if err := s.out.WriteResponse(s.cfg.Prompt); err != nil {
			return command.Quit, err
		}
	}

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)

	for s.running.Load() && scanner.Scan() {
		s.lastActivity.Store(time.Now().UnixNano())
		line := scanner.Text()

		outcome, err := s.handleLine(ctx, line)
		if err != nil {
			if errors.Is(err, ErrTooManyErrors) {
				s.lc.Warn("Closing session", "session", s.id, "err", err)
				return command.Quit, nil
			}
			return command.Quit, err
		}
		switch outcome {
		case command.Quit:
			s.lc.Info("Client requested to be disconnected", "session", s.id)
			return command.Quit, nil
		case command.Shutdown:
			s.lc.Info("Client requested service shutdown", "session", s.id)
			return command.Shutdown, nil
		}
	}

	if err := scanner.Err(); err != nil && s.running.Load() {
		return command.Quit, err
	}
	return command.Quit, nil
}

// handleLine advances the state machine by one line. Only connection errors
// and the error threshold are returned; command failures are answered inline.
func (s *Session) handleLine(ctx context.Context, line string) (command.Outcome, error) {
	outcome, execErr := s.step(ctx, line)
	if s.mode != ModeMultiline {
		s.buffer.Reset()
	}
	if execErr == nil {
		return outcome, nil
	}

	var werr *writeError
	if errors.As(execErr, &werr) {
		return command.Quit, werr.err
	}

	s.mode = ModeCommand
	s.pending = nil
	s.buffer.Reset()
	s.errors++
	s.lc.Error("Failed to process command", "session", s.id, "line", line, "err", execErr)

	if err := s.out.WriteResponse(InvalidCommand); err != nil {
		return command.Quit, err
	}
	if s.errors >= s.cfg.MaxErrors {
		return command.Quit, fmt.Errorf("%w: %d", ErrTooManyErrors, s.errors)
	}
	return command.Continue, nil
}

func (s *Session) step(ctx context.Context, line string) (command.Outcome, error) {
	switch s.mode {
	case ModeMultiline:
		if line != MultilineTerminator {
			s.buffer.WriteString(line)
			s.buffer.WriteByte('\n')
			return command.Continue, nil
		}
		cmd := s.pending
		s.mode = ModeCommand
		s.pending = nil
		return s.execute(ctx, cmd, command.Input{Name: cmd.Name(), Payload: s.buffer.String()})

	default:
		name, payload := command.ParseLine(line)
		cmd, err := s.commands.Lookup(s.cfg.Group, name)
		if err != nil {
			return command.Continue, err
		}
		if cmd.Properties().Has(command.Multiline) {
			s.mode = ModeMultiline
			s.pending = cmd
			return command.Continue, nil
		}
		return s.execute(ctx, cmd, command.Input{Name: name, Payload: payload})
	}
}

func (s *Session) execute(ctx context.Context, cmd command.Command, in command.Input) (command.Outcome, error) {
	in.SessionID = s.id
	if available, err := s.commands.Commands(s.cfg.Group); err == nil {
		in.Available = available
	}

	res, err := cmd.Execute(ctx, in)
	s.observer.CommandExecuted(cmd.Name(), err)
	if err != nil {
		return command.Continue, fmt.Errorf("%s: %w", cmd.Name(), err)
	}

	if werr := s.out.WriteResponse(res.Output); werr != nil {
		return command.Quit, &writeError{err: werr}
	}
	if s.cfg.ResetErrorsOnSuccess {
		s.errors = 0
	}
	return res.Outcome, nil
}

// Errors returns the error counter. It is only meaningful once Run returned.
func (s *Session) Errors() int { return s.errors }

// Mode returns the input mode. It is only meaningful once Run returned.
func (s *Session) Mode() Mode { return s.mode }

type writeError struct{ err error }

func (e *writeError) Error() string { return "write response: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }
