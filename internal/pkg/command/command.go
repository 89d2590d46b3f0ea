// Package command defines the command capability used by client sessions and
// the grouped, immutable registry commands are resolved from.
package command

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownGroup   = errors.New("unknown group")
	ErrInvalidName    = errors.New("invalid command name")
)

// Outcome tells the session what to do after a command ran.
type Outcome int

const (
	// Continue keeps the session open.
	Continue Outcome = iota
	// Quit closes the session after writing any output.
	Quit
	// Shutdown stops the whole service.
	Shutdown
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Quit:
		return "quit"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Property is a behavioral flag of a command.
type Property uint8

const (
	// Multiline commands take their input from the lines that follow, up to
	// a line containing only the terminator.
	Multiline Property = 1 << iota
	// Privileged marks commands that affect the whole service.
	Privileged
)

// Properties is a set of Property flags.
type Properties uint8

// NewProperties builds a set from flags.
func NewProperties(props ...Property) Properties {
	var p Properties
	for _, f := range props {
		p |= Properties(f)
	}
	return p
}

// Has reports whether flag is set.
func (p Properties) Has(flag Property) bool { return p&Properties(flag) != 0 }

// Input is what a command executes against.
type Input struct {
	Name    string
	Payload string
	// SessionID identifies the caller, empty for non-session callers
	SessionID string
	// Available is the effective command set of the caller's group
	Available map[string]Command
}

// Result carries the text written back to the client and the outcome.
type Result struct {
	Output  string
	Outcome Outcome
}

// Text returns a Continue result with output.
func Text(output string) Result { return Result{Output: output} }

// Command is the capability every command implements.
type Command interface {
	Name() string
	Properties() Properties
	Execute(ctx context.Context, in Input) (Result, error)
}

// Describer is implemented by commands that provide help text.
type Describer interface {
	Description() string
}

// ParseLine splits a command line into its name (first whitespace delimited
// token) and the trimmed remainder.
func ParseLine(line string) (name, payload string) {
	line = strings.TrimSpace(line)
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx+1:])
}

// ValidName reports whether name is usable as a command name: non-empty,
// trimmed and without inner whitespace.
func ValidName(name string) bool {
	return name != "" && !strings.ContainsAny(name, " \t\r\n")
}
