// Package console is the client side of the command protocol.
package console

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"sim-gateway-go/internal/pkg/server"
)

// Client sends command lines and decodes length-prefixed responses.
type Client struct {
	conn  net.Conn
	r     *bufio.Reader
	order binary.ByteOrder

	mu sync.Mutex // serializes writes
}

// Dial connects to a gateway command server.
func Dial(ctx context.Context, addr string, order binary.ByteOrder) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return NewClient(conn, order), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, order binary.ByteOrder) *Client {
	return &Client{conn: conn, r: bufio.NewReader(conn), order: order}
}

// Send writes one command or multiline body line.
func (c *Client) Send(line string) error {
	line = strings.TrimRight(line, "\r\n")
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

// Receive calls fn for every response until the server closes the
// connection. A clean close returns nil.
func (c *Client) Receive(fn func(text string)) error {
	for {
		text, err := server.ReadResponse(c.r, c.order)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
		fn(text)
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
