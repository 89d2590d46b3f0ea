// Package server accepts TCP clients and runs a line-protocol session for
// each of them on a bounded worker pool.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"sim-gateway-go/internal/pkg/command"
	"sim-gateway-go/internal/pkg/config"
	"sim-gateway-go/internal/pkg/logger"
	"sim-gateway-go/internal/pkg/workerpool"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrBind wraps a failure to bind the listening socket.
var ErrBind = errors.New("failed to bind listening socket")

// ErrNotListening is returned by Serve before Listen and by Uptime when offline.
var ErrNotListening = errors.New("server is not listening")

// ErrorState records why the accept loop stopped.
type ErrorState int32

const (
	ErrNone ErrorState = iota
	// ErrClientAssertFail: accepting a client failed with a non-timeout error
	ErrClientAssertFail
	// ErrOutOfMemory: a client could not be handed to the worker pool
	ErrOutOfMemory
)

func (e ErrorState) String() string {
	switch e {
	case ErrNone:
		return "none"
	case ErrClientAssertFail:
		return "client assert fail"
	case ErrOutOfMemory:
		return "out of memory"
	}
	return "unknown"
}

// Config holds the acceptor settings.
type Config struct {
	Address         string
	AcceptTimeout   time.Duration
	Workers         int
	RetryInterval   time.Duration
	IdleTimeout     time.Duration
	MonitorInterval time.Duration
	Session         SessionConfig
}

// ConfigFrom converts the validated server section.
func ConfigFrom(sc *config.ServerConfig) (Config, error) {
	order, err := ParseByteOrder(sc.ResponseByteOrder)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", config.ErrServerConfig, err)
	}
	return Config{
		Address:         sc.Address(),
		AcceptTimeout:   sc.GetAcceptTimeout(),
		Workers:         sc.Workers,
		RetryInterval:   sc.GetRetryInterval(),
		IdleTimeout:     sc.GetIdleTimeout(),
		MonitorInterval: sc.GetMonitorInterval(),
		Session: SessionConfig{
			Prompt:               sc.Prompt,
			Group:                command.DefaultGroup,
			MaxErrors:            sc.MaxSessionErrors,
			ResetErrorsOnSuccess: sc.ResetErrorsOnSuccess,
			ByteOrder:            order,
		},
	}, nil
}

// Option configures a Server.
type Option func(*Server)

// WithObserver receives session and command notifications.
func WithObserver(o Observer) Option {
	return func(s *Server) { s.observer = o }
}

// WithOnClose sets a hook run once when the server closes.
func WithOnClose(fn func()) Option {
	return func(s *Server) { s.onClose = fn }
}

// WithRegisterer registers the session worker pool metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) { s.registerer = reg }
}

// Server is the connection acceptor.
type Server struct {
	cfg        Config
	commands   *command.Registry
	lc         logger.LoggingClient
	observer   Observer
	onClose    func()
	registerer prometheus.Registerer

	listener net.Listener
	pool     *workerpool.Pool[net.Conn]

	listening  atomic.Bool
	closing    atomic.Bool
	errState   atomic.Int32
	startedAt  atomic.Int64
	closeOnce  sync.Once
	shutdownCh chan struct{}
	shutOnce   sync.Once

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a server for the given command registry.
func New(cfg Config, commands *command.Registry, lc logger.LoggingClient, opts ...Option) *Server {
	if cfg.AcceptTimeout <= 0 {
		cfg.AcceptTimeout = 5 * time.Second
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 5 * time.Second
	}
	s := &Server{
		cfg:        cfg,
		commands:   commands,
		lc:         lc,
		observer:   nopObserver{},
		shutdownCh: make(chan struct{}),
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the listening socket and prepares the session pool.
func (s *Server) Listen() error {
	poolOpts := []workerpool.Option[net.Conn]{
		workerpool.WithRetryInterval[net.Conn](s.cfg.RetryInterval),
		workerpool.WithLogger[net.Conn](s.lc),
	}
	if s.registerer != nil {
		poolOpts = append(poolOpts, workerpool.WithRegisterer[net.Conn](s.registerer))
	}
	pool, err := workerpool.NewPool("sessions", s.cfg.Workers, s.handleConn, poolOpts...)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w on %s: %w", ErrBind, s.cfg.Address, err)
	}
	s.pool = pool
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until ctx is done, a session requests shutdown,
// the server is closed, or accepting fails. The accept call times out
// periodically so the loop can observe those signals.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return ErrNotListening
	}
	if err := s.pool.Start(ctx); err != nil {
		return err
	}

	s.startedAt.Store(time.Now().UnixNano())
	s.listening.Store(true)
	s.lc.Info("Server started", "address", s.listener.Addr().String())
	defer func() {
		s.lc.Info("Server shutting down", "uptime", s.uptime())
		s.startedAt.Store(0)
	}()

	deadliner, _ := s.listener.(interface{ SetDeadline(time.Time) error })

	for s.listening.Load() {
		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdownCh:
			return nil
		default:
		}

		if deadliner != nil {
			_ = deadliner.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout))
		}
		conn, err := s.listener.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !s.listening.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.lc.Error("Failed to accept client connection", "err", err)
			s.errState.Store(int32(ErrClientAssertFail))
			return fmt.Errorf("accept: %w", err)
		}

		s.lc.Info("Accepted client connection", "remote", conn.RemoteAddr().String())
		if err := s.pool.SubmitWait(ctx, conn); err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}
			s.lc.Error("Failed to hand client to worker pool", "err", err)
			s.errState.Store(int32(ErrOutOfMemory))
			return fmt.Errorf("submit session: %w", err)
		}
	}
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) error {
	sess := NewSession(conn, s.commands, s.cfg.Session, s.lc, s.observer)
	defer func() { _ = sess.Close() }()

	s.track(sess)
	defer s.untrack(sess)
	if s.closing.Load() {
		return nil
	}
	s.observer.SessionOpened()
	defer s.observer.SessionClosed()

	monitorDone := make(chan struct{})
	defer close(monitorDone)
	go s.monitor(sess, monitorDone)

	s.lc.Info("Client successfully connected", "session", sess.ID(), "remote", conn.RemoteAddr().String())

	outcome, err := sess.Run(ctx)
	if err != nil {
		s.lc.Error("Failed to execute client program", "session", sess.ID(), "err", err)
	}
	if outcome == command.Shutdown {
		s.RequestShutdown()
	}

	s.lc.Info("Client disconnected", "session", sess.ID(), "uptime", sess.Uptime())
	return err
}

// monitor closes sess once it expires. It exits when done is closed.
func (s *Server) monitor(sess *Session, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !sess.IsRunning() {
				return
			}
			if sess.Expired(s.cfg.IdleTimeout) {
				s.lc.Info("Closing idle session", "session", sess.ID(), "idle", time.Since(sess.LastActivity()))
				_ = sess.Close()
				return
			}
		}
	}
}

func (s *Server) track(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
}

// Sessions returns the number of connected sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RequestShutdown signals that the whole service should stop.
func (s *Server) RequestShutdown() {
	s.shutOnce.Do(func() { close(s.shutdownCh) })
}

// ShutdownRequested is closed once shutdown was requested.
func (s *Server) ShutdownRequested() <-chan struct{} { return s.shutdownCh }

// ErrorState reports why the accept loop failed, if it did.
func (s *Server) ErrorState() ErrorState { return ErrorState(s.errState.Load()) }

// Uptime returns how long the accept loop has been running.
func (s *Server) Uptime() (time.Duration, error) {
	if s.startedAt.Load() == 0 {
		return 0, ErrNotListening
	}
	return s.uptime(), nil
}

func (s *Server) uptime() time.Duration {
	started := s.startedAt.Load()
	if started == 0 {
		return 0
	}
	return time.Since(time.Unix(0, started))
}

// Close stops accepting, closes the listening socket and every session, waits
// for the session workers and runs the close hook. Only the first call has an
// effect.
func (s *Server) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.listening.Store(false)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, fmt.Errorf("close listener: %w", err))
			}
		}

		s.mu.Lock()
		for _, sess := range s.sessions {
			_ = sess.Close()
		}
		s.mu.Unlock()

		if s.pool != nil {
			if err := s.pool.Stop(s.cfg.AcceptTimeout); err != nil {
				errs = append(errs, fmt.Errorf("stop session pool: %w", err))
			}
		}

		if s.onClose != nil {
			s.onClose()
		}
	})
	return errors.Join(errs...)
}
