package commands

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/shlex"
)

// ArgumentError is a rejected command argument list. Message is user-facing; Usage is the
// command's usage line.
type ArgumentError struct {
	Command    string
	Subcommand string
	Option     string
	Message    string
	Usage      string
}

func (e *ArgumentError) Error() string {
	return e.Message
}

// hashStandIn replaces '#' while splitting: shlex treats it as the start of a comment and
// would drop the rest of the line.
const hashStandIn = '\uE000'

// Tokenize splits the argument text of a command, honouring single and double quotes so
// names with spaces can be passed as one argument. '#' is ordinary text.
func Tokenize(text string) ([]string, error) {
	args, err := shlex.Split(strings.ReplaceAll(text, "#", string(hashStandIn)))
	if err != nil {
		return nil, &ArgumentError{Message: "引用符が閉じられていません。"}
	}
	for i, a := range args {
		args[i] = strings.ReplaceAll(a, string(hashStandIn), "#")
	}
	return args, nil
}

// Parse converts positional args into typed values for cmd. It returns the chosen subcommand
// name (empty for a bare call). The last string option of a parameter list absorbs any
// remaining tokens.
func Parse(cmd Command, args []string) ([]Value, string, error) {
	fail := func(sub, opt, msg string) error {
		return &ArgumentError{Command: cmd.Name, Subcommand: sub, Option: opt, Message: msg, Usage: Usage(cmd)}
	}

	if len(cmd.Subcommands) > 0 && len(args) > 0 {
		if sub, ok := cmd.Subcommand(args[0]); ok {
			values, opt, msg := parseOptions(sub.Options, args[1:])
			if msg != "" {
				return nil, "", fail(sub.Name, opt, msg)
			}
			return values, sub.Name, nil
		}
		if cmd.RequireSubcommand || len(cmd.Options) == 0 {
			return nil, "", fail("", "", fmt.Sprintf("不明なサブコマンドです: %s", args[0]))
		}
	}
	if cmd.RequireSubcommand {
		return nil, "", fail("", "", "サブコマンドを指定してください。")
	}

	values, opt, msg := parseOptions(cmd.Options, args)
	if msg != "" {
		return nil, "", fail("", opt, msg)
	}
	return values, "", nil
}

// parseOptions returns the parsed values, or the offending option and a message.
func parseOptions(opts []Option, args []string) ([]Value, string, string) {
	values := make([]Value, 0, len(opts))

	for i, o := range opts {
		if i >= len(args) {
			if o.Required {
				return nil, o.Name, fmt.Sprintf("%sを指定してください。", label(o))
			}
			break
		}

		raw := args[i]
		if i == len(opts)-1 && o.Type == TypeString {
			raw = strings.Join(args[i:], " ")
		}

		v, msg := convert(o, raw)
		if msg != "" {
			return nil, o.Name, msg
		}
		values = append(values, v)
	}

	if len(args) > len(opts) && (len(opts) == 0 || opts[len(opts)-1].Type != TypeString) {
		return nil, "", "引数が多すぎます。"
	}
	return values, "", ""
}

func convert(o Option, raw string) (Value, string) {
	v := Value{Name: o.Name, Type: o.Type}

	switch o.Type {
	case TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return v, fmt.Sprintf("%sは整数で指定してください。", label(o))
		}
		if msg := checkBounds(o, float64(n)); msg != "" {
			return v, msg
		}
		v.Int = n

	case TypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return v, fmt.Sprintf("%sは数値で指定してください。", label(o))
		}
		if msg := checkBounds(o, n); msg != "" {
			return v, msg
		}
		v.Num = n

	default:
		s := strings.TrimSpace(raw)
		if s == "" && o.Required {
			return v, fmt.Sprintf("%sを指定してください。", label(o))
		}
		if o.MaxLength > 0 && utf8.RuneCountInString(s) > o.MaxLength {
			return v, fmt.Sprintf("%sは%d文字以内で指定してください。", label(o), o.MaxLength)
		}
		v.Str = s
	}
	return v, ""
}

func checkBounds(o Option, n float64) string {
	if o.MinValue != nil && n < *o.MinValue {
		return fmt.Sprintf("%sは%s以上で指定してください。", label(o), formatBound(*o.MinValue))
	}
	if o.MaxValue != nil && n > *o.MaxValue {
		return fmt.Sprintf("%sは%s以下で指定してください。", label(o), formatBound(*o.MaxValue))
	}
	return ""
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func label(o Option) string {
	if o.Description != "" {
		return o.Description
	}
	return o.Name
}

// Usage renders the invocation syntax of cmd on one line, e.g.
// "/link <storeid> <mealid> [price]". Subcommand forms are separated by " | ".
func Usage(cmd Command) string {
	var forms []string
	if len(cmd.Subcommands) == 0 || !cmd.RequireSubcommand {
		forms = append(forms, usageForm("/"+cmd.Name, cmd.Options))
	}
	for _, s := range cmd.Subcommands {
		forms = append(forms, usageForm("/"+cmd.Name+" "+s.Name, s.Options))
	}
	return strings.Join(forms, " | ")
}

func usageForm(prefix string, opts []Option) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, o := range opts {
		if o.Required {
			fmt.Fprintf(&b, " <%s>", o.Name)
		} else {
			fmt.Fprintf(&b, " [%s]", o.Name)
		}
	}
	return b.String()
}
