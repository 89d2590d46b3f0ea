// Package state tracks simulator values and turns value changes into events.
package state

import "fmt"

// Control identifies one simulator data point.
type Control struct {
	Address int // software address, unique within the running system
	Caption string
	SimType string
}

func (c Control) String() string {
	return fmt.Sprintf("%s(%d)", c.Caption, c.Address)
}
