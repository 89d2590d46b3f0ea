package server

import "net"

// Observer receives session and command notifications.
type Observer interface {
	SessionOpened()
	SessionClosed()
	CommandExecuted(name string, err error)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()                {}
func (nopObserver) SessionClosed()                {}
func (nopObserver) CommandExecuted(string, error) {}

// ServerInterface is the acceptor as seen by the service layer.
type ServerInterface interface {
	// Listen binds the listening socket
	Listen() error

	// Addr returns the bound address
	Addr() net.Addr

	// ShutdownRequested is closed once a session asked to stop the service
	ShutdownRequested() <-chan struct{}

	// ErrorState reports why the accept loop stopped, if it failed
	ErrorState() ErrorState

	// Close stops accepting, closes sessions and runs the close hook
	Close() error
}
