package command

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// DefaultGroup is the group client sessions resolve commands in.
const DefaultGroup = 0

// Registry maps group ids to command sets. It is immutable once built and
// safe for concurrent reads.
type Registry struct {
	cumulative bool
	own        map[int]map[string]Command // commands added to each group
	effective  map[int]map[string]Command // own plus inherited, when cumulative
	ids        []int
}

// Builder assembles a Registry.
type Builder struct {
	cumulative bool
	groups     map[int]map[string]Command
	errs       []error
}

// NewBuilder creates a builder holding only the empty default group.
func NewBuilder() *Builder {
	return &Builder{groups: map[int]map[string]Command{DefaultGroup: {}}}
}

// SetCumulative makes every group inherit the commands of all groups with a
// strictly lower id.
func (b *Builder) SetCumulative(cumulative bool) *Builder {
	b.cumulative = cumulative
	return b
}

// AddGroup declares a group, which may stay empty.
func (b *Builder) AddGroup(id int) *Builder {
	if _, ok := b.groups[id]; !ok {
		b.groups[id] = map[string]Command{}
	}
	return b
}

// AddCommand adds cmd to group id, creating the group if needed.
func (b *Builder) AddCommand(id int, cmd Command) *Builder {
	if cmd == nil {
		b.errs = append(b.errs, fmt.Errorf("group %d: nil command", id))
		return b
	}
	name := cmd.Name()
	if !ValidName(name) {
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrInvalidName, name))
		return b
	}
	b.AddGroup(id)
	if _, dup := b.groups[id][name]; dup {
		b.errs = append(b.errs, fmt.Errorf("group %d: duplicate command %q", id, name))
		return b
	}
	b.groups[id][name] = cmd
	return b
}

// Build validates the accumulated commands and computes each group's
// effective set.
func (b *Builder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	r := &Registry{
		cumulative: b.cumulative,
		own:        make(map[int]map[string]Command, len(b.groups)),
		effective:  make(map[int]map[string]Command, len(b.groups)),
		ids:        slices.Sorted(maps.Keys(b.groups)),
	}

	inherited := map[string]Command{}
	for _, id := range r.ids {
		own := maps.Clone(b.groups[id])
		r.own[id] = own

		if !b.cumulative {
			r.effective[id] = own
			continue
		}
		eff := maps.Clone(inherited)
		maps.Copy(eff, own)
		r.effective[id] = eff
		// ids are visited in ascending order, so inherited holds exactly the
		// groups below the next id
		maps.Copy(inherited, own)
	}
	return r, nil
}

// Cumulative reports whether groups inherit lower groups' commands.
func (r *Registry) Cumulative() bool { return r.cumulative }

// GroupIDs returns the group ids in ascending order.
func (r *Registry) GroupIDs() []int { return slices.Clone(r.ids) }

// Commands returns a copy of the effective command set of group id.
func (r *Registry) Commands(id int) (map[string]Command, error) {
	eff, ok := r.effective[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGroup, id)
	}
	return maps.Clone(eff), nil
}

// Lookup resolves name in group id.
func (r *Registry) Lookup(id int, name string) (Command, error) {
	eff, ok := r.effective[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGroup, id)
	}
	cmd, ok := eff[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return cmd, nil
}

// ToBuilder returns a builder pre-seeded with this registry's groups and
// commands, for producing a modified copy.
func (r *Registry) ToBuilder() *Builder {
	b := &Builder{
		cumulative: r.cumulative,
		groups:     make(map[int]map[string]Command, len(r.own)),
	}
	for id, own := range r.own {
		b.groups[id] = maps.Clone(own)
	}
	return b
}
