package server

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// LengthSize is the width of the response length prefix.
const LengthSize = 4

// MaxResponseSize bounds the text of a single response frame.
const MaxResponseSize = 1 << 20

const lineTerminator = "\r\n"

// ErrResponseTooLarge is returned for frames longer than MaxResponseSize.
var ErrResponseTooLarge = errors.New("response exceeds maximum frame size")

// ParseByteOrder maps "BIG" or "LITTLE" to a byte order. Empty means big-endian.
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToUpper(s) {
	case "", "BIG":
		return binary.BigEndian, nil
	case "LITTLE":
		return binary.LittleEndian, nil
	}
	return nil, fmt.Errorf("unknown byte order %q", s)
}

// ResponseWriter writes length-prefixed text responses:
// [uint32 byte length][UTF-8 text]\r\n
type ResponseWriter struct {
	mu    sync.Mutex
	w     io.Writer
	order binary.ByteOrder
}

// NewResponseWriter wraps w. A nil order means big-endian.
func NewResponseWriter(w io.Writer, order binary.ByteOrder) *ResponseWriter {
	if order == nil {
		order = binary.BigEndian
	}
	return &ResponseWriter{w: w, order: order}
}

// WriteResponse writes text as one frame. Empty text writes nothing.
func (rw *ResponseWriter) WriteResponse(text string) error {
	if text == "" {
		return nil
	}
	if len(text) > MaxResponseSize {
		return fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, len(text))
	}

	buf := make([]byte, LengthSize, LengthSize+len(text)+len(lineTerminator))
	rw.order.PutUint32(buf, uint32(len(text)))
	buf = append(buf, text...)
	buf = append(buf, lineTerminator...)

	rw.mu.Lock()
	defer rw.mu.Unlock()
	_, err := rw.w.Write(buf)
	return err
}

// ReadResponse reads one frame written by a ResponseWriter.
func ReadResponse(r *bufio.Reader, order binary.ByteOrder) (string, error) {
	if order == nil {
		order = binary.BigEndian
	}
	var head [LengthSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return "", err
	}
	n := order.Uint32(head[:])
	if n > MaxResponseSize {
		return "", fmt.Errorf("%w: peer announced %d bytes", ErrResponseTooLarge, n)
	}

	body := make([]byte, int(n)+len(lineTerminator))
	if _, err := io.ReadFull(r, body); err != nil {
		return "", err
	}
	if string(body[n:]) != lineTerminator {
		return "", fmt.Errorf("response frame not terminated by CRLF")
	}
	return string(body[:n]), nil
}
