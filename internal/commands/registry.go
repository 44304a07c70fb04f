// Package commands declares the bot's commands: their names, descriptions, parameter schemas
// and handlers. The registry built here is the single source for dispatch, per-chat
// registration and help text.
package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// OptionType is the wire type of a command parameter.
type OptionType string

const (
	TypeString  OptionType = "string"
	TypeInteger OptionType = "integer"
	TypeNumber  OptionType = "number"
)

// Option is one positional parameter. Min/Max bound numeric values; MaxLength bounds strings
// in runes (0 means unbounded).
type Option struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
	MinValue    *float64
	MaxValue    *float64
	MaxLength   int
}

// Subcommand groups a set of options under a second word, as in "/add store".
type Subcommand struct {
	Name        string
	Description string
	Options     []Option
}

// HandlerFunc handles one parsed invocation.
type HandlerFunc func(ctx context.Context, inv *Invocation, r Responder) error

// Command is a registry entry. When Subcommands is non-empty and RequireSubcommand is false,
// the command may also be called bare with its own Options.
type Command struct {
	Name              string
	Description       string
	Options           []Option
	Subcommands       []Subcommand
	RequireSubcommand bool
	Handler           HandlerFunc
}

// Subcommand returns the named subcommand of c.
func (c Command) Subcommand(name string) (Subcommand, bool) {
	for _, s := range c.Subcommands {
		if s.Name == name {
			return s, true
		}
	}
	return Subcommand{}, false
}

// Bound returns a pointer to v for use as Option.MinValue or Option.MaxValue.
func Bound(v float64) *float64 {
	return &v
}

// Registry is an ordered, immutable set of commands with unique names.
type Registry struct {
	cmds   []Command
	byName map[string]int
}

var namePattern = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// NewRegistry validates cmds and builds a registry preserving their order.
func NewRegistry(cmds ...Command) (*Registry, error) {
	r := &Registry{
		cmds:   make([]Command, 0, len(cmds)),
		byName: make(map[string]int, len(cmds)),
	}

	for _, c := range cmds {
		if err := validateCommand(c); err != nil {
			return nil, err
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("duplicate command name %q", c.Name)
		}
		r.byName[c.Name] = len(r.cmds)
		r.cmds = append(r.cmds, c)
	}
	return r, nil
}

// List returns the commands in declaration order.
func (r *Registry) List() []Command {
	out := make([]Command, len(r.cmds))
	copy(out, r.cmds)
	return out
}

// Names returns the command names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.cmds))
	for i, c := range r.cmds {
		names[i] = c.Name
	}
	return names
}

// Lookup finds a command by its wire name.
func (r *Registry) Lookup(name string) (Command, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Command{}, false
	}
	return r.cmds[i], true
}

func validateCommand(c Command) error {
	if !namePattern.MatchString(c.Name) {
		return fmt.Errorf("invalid command name %q", c.Name)
	}
	if c.Description == "" {
		return fmt.Errorf("command %q: description is required", c.Name)
	}
	if c.Handler == nil {
		return fmt.Errorf("command %q: handler is required", c.Name)
	}
	if c.RequireSubcommand && len(c.Subcommands) == 0 {
		return fmt.Errorf("command %q: requires a subcommand but declares none", c.Name)
	}
	if err := validateOptions(c.Options); err != nil {
		return fmt.Errorf("command %q: %w", c.Name, err)
	}

	seen := make(map[string]struct{}, len(c.Subcommands))
	for _, s := range c.Subcommands {
		if !namePattern.MatchString(s.Name) {
			return fmt.Errorf("command %q: invalid subcommand name %q", c.Name, s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("command %q: duplicate subcommand %q", c.Name, s.Name)
		}
		seen[s.Name] = struct{}{}
		if err := validateOptions(s.Options); err != nil {
			return fmt.Errorf("command %q subcommand %q: %w", c.Name, s.Name, err)
		}
	}
	return nil
}

func validateOptions(opts []Option) error {
	optional := false
	seen := make(map[string]struct{}, len(opts))
	for _, o := range opts {
		if !namePattern.MatchString(o.Name) {
			return fmt.Errorf("invalid option name %q", o.Name)
		}
		if _, dup := seen[o.Name]; dup {
			return fmt.Errorf("duplicate option %q", o.Name)
		}
		seen[o.Name] = struct{}{}

		switch o.Type {
		case TypeString, TypeInteger, TypeNumber:
		default:
			return fmt.Errorf("option %q: unknown type %q", o.Name, o.Type)
		}
		if o.MinValue != nil && o.MaxValue != nil && *o.MinValue > *o.MaxValue {
			return fmt.Errorf("option %q: min exceeds max", o.Name)
		}
		if o.Required && optional {
			return errors.New("required options must precede optional ones")
		}
		if !o.Required {
			optional = true
		}
	}
	return nil
}
