package hardware

import (
	"fmt"
	"strings"
)

// ComponentType is the kind of physical control surface.
type ComponentType int

const (
	Toggle ComponentType = iota
	Momentary
	Rotary
	LCDCharacter
	LED
)

var componentTypeNames = map[ComponentType]string{
	Toggle:       "toggle",
	Momentary:    "momentary",
	Rotary:       "rotary",
	LCDCharacter: "lcd_character",
	LED:          "led",
}

func (t ComponentType) String() string {
	if s, ok := componentTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ComponentType(%d)", int(t))
}

// ParseComponentType maps a configuration name onto a ComponentType.
func ParseComponentType(s string) (ComponentType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range componentTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown component type %q", s)
}

// Component is one control surface on a device. SoftwareAddress binds it to a
// simulator control; HardwareAddress identifies it on the device's wire.
type Component struct {
	Type            ComponentType
	Name            string
	Description     string
	SoftwareAddress int
	HardwareAddress int
}

func (c Component) String() string {
	return fmt.Sprintf("%s(%s sw=%d hw=%d)", c.Name, c.Type, c.SoftwareAddress, c.HardwareAddress)
}
