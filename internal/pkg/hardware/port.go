package hardware

import (
	"fmt"
	"io"
	"time"

	"github.com/goburrow/serial"
	"go.bug.st/serial/enumerator"
)

// Port is an open serial channel.
type Port interface {
	io.Writer
	io.Closer
}

// PortConfig holds the line settings used to open a device channel.
type PortConfig struct {
	Name     string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	Timeout  time.Duration
}

// DefaultPortConfig returns 9600 8N1 for the named port.
func DefaultPortConfig(name string) PortConfig {
	return PortConfig{
		Name:     name,
		BaudRate: 9600,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  time.Second,
	}
}

// Opener opens serial channels.
type Opener interface {
	Open(cfg PortConfig) (Port, error)
}

// SerialOpener opens real serial ports.
type SerialOpener struct{}

// Open implements Opener.
func (SerialOpener) Open(cfg PortConfig) (Port, error) {
	p, err := serial.Open(&serial.Config{
		Address:  cfg.Name,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Name, err)
	}
	return p, nil
}

// PortInfo describes a serial port present on the host.
type PortInfo struct {
	Name         string
	Product      string
	SerialNumber string
	IsUSB        bool
	VID          string
	PID          string
}

// Description returns the product name if known, otherwise the port name.
func (p PortInfo) Description() string {
	if p.Product != "" {
		return fmt.Sprintf("%s (%s)", p.Product, p.Name)
	}
	return p.Name
}

// PortLister enumerates host serial ports.
type PortLister func() ([]PortInfo, error)

// ListPorts enumerates the serial ports attached to this host.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, PortInfo{
			Name:         d.Name,
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
		})
	}
	return out, nil
}

// FindBySerial returns the port whose USB serial number matches.
func FindBySerial(ports []PortInfo, serialNumber string) (PortInfo, bool) {
	for _, p := range ports {
		if serialNumber != "" && p.SerialNumber == serialNumber {
			return p, true
		}
	}
	return PortInfo{}, false
}
