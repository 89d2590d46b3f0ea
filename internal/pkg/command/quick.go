package command

import "context"

// Func is the body of a QuickCommand.
type Func func(ctx context.Context, in Input) (Result, error)

// QuickCommand is a command backed by a function.
type QuickCommand struct {
	name        string
	description string
	props       Properties
	fn          Func
}

// NewQuick creates a QuickCommand.
func NewQuick(name, description string, fn Func, props ...Property) *QuickCommand {
	return &QuickCommand{
		name:        name,
		description: description,
		props:       NewProperties(props...),
		fn:          fn,
	}
}

func (q *QuickCommand) Name() string           { return q.name }
func (q *QuickCommand) Description() string    { return q.description }
func (q *QuickCommand) Properties() Properties { return q.props }

// Execute runs the command function.
func (q *QuickCommand) Execute(ctx context.Context, in Input) (Result, error) {
	return q.fn(ctx, in)
}
