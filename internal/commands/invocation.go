package commands

import "context"

// Value is one parsed argument. Exactly one of Str, Int or Num is meaningful, per Type.
type Value struct {
	Name string
	Type OptionType
	Str  string
	Int  int64
	Num  float64
}

// Invocation is an inbound command call after argument parsing.
type Invocation struct {
	// ID identifies the inbound event (for Telegram, the update id).
	ID string
	// GuildID is the chat the command was sent in.
	GuildID int64
	// UserID is the invoking user's platform id, as text.
	UserID     string
	Username   string
	Name       string
	Subcommand string
	Values     []Value
}

func (inv *Invocation) value(name string) (Value, bool) {
	for _, v := range inv.Values {
		if v.Name == name {
			return v, true
		}
	}
	return Value{}, false
}

// String returns the string argument called name.
func (inv *Invocation) String(name string) (string, bool) {
	v, ok := inv.value(name)
	if !ok || v.Type != TypeString {
		return "", false
	}
	return v.Str, true
}

// Int returns the integer argument called name.
func (inv *Invocation) Int(name string) (int64, bool) {
	v, ok := inv.value(name)
	if !ok || v.Type != TypeInteger {
		return 0, false
	}
	return v.Int, true
}

// Number returns the numeric argument called name. Integer arguments are widened.
func (inv *Invocation) Number(name string) (float64, bool) {
	v, ok := inv.value(name)
	if !ok {
		return 0, false
	}
	switch v.Type {
	case TypeNumber:
		return v.Num, true
	case TypeInteger:
		return float64(v.Int), true
	default:
		return 0, false
	}
}

// Responder answers an invocation on the platform it came from.
type Responder interface {
	// Acknowledge signals that the invocation was received and a response will follow.
	Acknowledge(ctx context.Context) error
	// Respond sends content. private asks for a reply only the invoking user can see.
	Respond(ctx context.Context, content string, private bool) error
}
