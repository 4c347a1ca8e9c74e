package dispatch

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/lumen-core/internal/device"
)

// Kind identifies a parsed command.
type Kind string

// Command kinds.
const (
	KindModeRGB       Kind = "mode_rgb"
	KindModeBind      Kind = "mode_bind"
	KindModeUnbind    Kind = "mode_unbind"
	KindModeAnimation Kind = "mode_animation"
	KindDPI           Kind = "dpi"
	KindProfileSwitch Kind = "profile_switch"
	KindProfileName   Kind = "profile_name"
	KindMacro         Kind = "macro"
	KindFWUpdate      Kind = "fwupdate"
	KindActive        Kind = "active"
	KindIdle          Kind = "idle"
)

// MacroStep is one element of a macro sequence: a key edge or a
// delay.
type MacroStep struct {
	Key   byte
	Down  bool
	Delay time.Duration

	// IsDelay distinguishes a pure delay step from a key edge.
	IsDelay bool
}

// Command is one parsed command line.
type Command struct {
	Kind Kind

	// Mode index for mode subcommands.
	Mode int

	// Buffer is a full per-LED colour buffer (mode rgb, whole-device
	// form). KeyColors is the per-key patch form; at most one of the
	// two is set.
	Buffer    []byte
	KeyColors map[byte]device.RGB

	Key       byte
	Action    string
	Animation string

	DPI device.DPIStages

	Profile int
	Name    string

	MacroKey byte
	Macro    []MacroStep

	Path, SHA256, Version string
}

// Parse tokenizes one command line.
//
// Returns:
//   - Command: The parsed command
//   - error: ErrEmptyCommand, ErrUnknownCommand, ErrBadArgument, or
//     ErrRange; errors carry the offending token
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrEmptyCommand
	}

	switch fields[0] {
	case "mode":
		return parseMode(fields[1:])
	case "dpi":
		return parseDPI(fields[1:])
	case "profile":
		return parseProfile(fields[1:])
	case "macro":
		return parseMacro(fields[1:])
	case "fwupdate":
		return parseFWUpdate(fields[1:])
	case "active":
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("%w: active takes no arguments", ErrBadArgument)
		}
		return Command{Kind: KindActive}, nil
	case "idle":
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("%w: idle takes no arguments", ErrBadArgument)
		}
		return Command{Kind: KindIdle}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
}

func parseMode(args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, fmt.Errorf("%w: mode needs an index and a subcommand", ErrBadArgument)
	}

	index, err := strconv.Atoi(args[0])
	if err != nil || index < 0 {
		return Command{}, fmt.Errorf("%w: mode index %q", ErrBadArgument, args[0])
	}

	cmd := Command{Mode: index}
	sub, rest := args[1], args[2:]

	switch sub {
	case "rgb":
		if len(rest) == 0 {
			return Command{}, fmt.Errorf("%w: rgb needs colours", ErrBadArgument)
		}
		return parseRGB(cmd, rest)

	case "bind":
		if len(rest) != 2 {
			return Command{}, fmt.Errorf("%w: bind needs a key and an action", ErrBadArgument)
		}
		key, err := parseKey(rest[0])
		if err != nil {
			return Command{}, err
		}
		if !device.ValidAction(rest[1]) {
			return Command{}, fmt.Errorf("%w: action %q (valid: %s)",
				ErrBadArgument, rest[1], strings.Join(device.ActionNames(), " "))
		}
		cmd.Kind = KindModeBind
		cmd.Key = key
		cmd.Action = rest[1]
		return cmd, nil

	case "unbind":
		if len(rest) != 1 {
			return Command{}, fmt.Errorf("%w: unbind needs a key", ErrBadArgument)
		}
		key, err := parseKey(rest[0])
		if err != nil {
			return Command{}, err
		}
		cmd.Kind = KindModeUnbind
		cmd.Key = key
		return cmd, nil

	case "animation":
		if len(rest) != 1 || rest[0] == "" {
			return Command{}, fmt.Errorf("%w: animation needs a name", ErrBadArgument)
		}
		cmd.Kind = KindModeAnimation
		cmd.Animation = rest[0]
		return cmd, nil

	default:
		return Command{}, fmt.Errorf("%w: mode %q", ErrUnknownCommand, sub)
	}
}

// parseRGB accepts either one hex blob covering every LED or a list
// of key:RRGGBB patches.
func parseRGB(cmd Command, args []string) (Command, error) {
	cmd.Kind = KindModeRGB

	if len(args) == 1 && !strings.Contains(args[0], ":") {
		buf, err := hex.DecodeString(args[0])
		if err != nil || len(buf) == 0 || len(buf)%3 != 0 {
			return Command{}, fmt.Errorf("%w: rgb buffer %q", ErrBadArgument, args[0])
		}
		cmd.Buffer = buf
		return cmd, nil
	}

	colors := make(map[byte]device.RGB, len(args))
	for _, arg := range args {
		keyStr, colStr, ok := strings.Cut(arg, ":")
		if !ok {
			return Command{}, fmt.Errorf("%w: rgb patch %q, want key:RRGGBB", ErrBadArgument, arg)
		}
		key, err := parseKey(keyStr)
		if err != nil {
			return Command{}, err
		}
		col, err := hex.DecodeString(colStr)
		if err != nil || len(col) != 3 {
			return Command{}, fmt.Errorf("%w: colour %q", ErrBadArgument, colStr)
		}
		colors[key] = device.RGB{R: col[0], G: col[1], B: col[2]}
	}
	cmd.KeyColors = colors
	return cmd, nil
}

func parseDPI(args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, fmt.Errorf("%w: dpi needs a stage list", ErrBadArgument)
	}

	parts := strings.Split(args[0], ",")
	stages := make(device.DPIStages, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return Command{}, fmt.Errorf("%w: dpi value %q", ErrBadArgument, part)
		}
		stages = append(stages, uint16(v))
	}
	if err := stages.Validate(); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrRange, err)
	}
	return Command{Kind: KindDPI, DPI: stages}, nil
}

func parseProfile(args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, fmt.Errorf("%w: profile needs a subcommand and an index", ErrBadArgument)
	}

	switch args[0] {
	case "switch":
		if len(args) != 2 {
			return Command{}, fmt.Errorf("%w: profile switch takes one index", ErrBadArgument)
		}
		index, err := strconv.Atoi(args[1])
		if err != nil || index < 0 {
			return Command{}, fmt.Errorf("%w: profile index %q", ErrBadArgument, args[1])
		}
		return Command{Kind: KindProfileSwitch, Profile: index}, nil

	case "name":
		if len(args) < 3 {
			return Command{}, fmt.Errorf("%w: profile name needs an index and a name", ErrBadArgument)
		}
		index, err := strconv.Atoi(args[1])
		if err != nil || index < 0 {
			return Command{}, fmt.Errorf("%w: profile index %q", ErrBadArgument, args[1])
		}
		return Command{
			Kind:    KindProfileName,
			Profile: index,
			Name:    strings.Join(args[2:], " "),
		}, nil

	default:
		return Command{}, fmt.Errorf("%w: profile %q", ErrUnknownCommand, args[0])
	}
}

// parseMacro reads `macro <key> <seq>` where seq is comma-separated
// steps: +<key> for down, -<key> for up, a bare integer for a delay
// in milliseconds.
func parseMacro(args []string) (Command, error) {
	if len(args) != 2 {
		return Command{}, fmt.Errorf("%w: macro needs a trigger key and a sequence", ErrBadArgument)
	}

	trigger, err := parseKey(args[0])
	if err != nil {
		return Command{}, err
	}

	parts := strings.Split(args[1], ",")
	steps := make([]MacroStep, 0, len(parts))
	for _, part := range parts {
		switch {
		case strings.HasPrefix(part, "+"), strings.HasPrefix(part, "-"):
			key, err := parseKey(part[1:])
			if err != nil {
				return Command{}, err
			}
			steps = append(steps, MacroStep{Key: key, Down: part[0] == '+'})
		default:
			ms, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return Command{}, fmt.Errorf("%w: macro step %q", ErrBadArgument, part)
			}
			steps = append(steps, MacroStep{IsDelay: true, Delay: time.Duration(ms) * time.Millisecond})
		}
	}
	if len(steps) == 0 {
		return Command{}, fmt.Errorf("%w: empty macro sequence", ErrBadArgument)
	}

	return Command{Kind: KindMacro, MacroKey: trigger, Macro: steps}, nil
}

func parseFWUpdate(args []string) (Command, error) {
	if len(args) != 3 {
		return Command{}, fmt.Errorf("%w: fwupdate needs path, sha256, and version", ErrBadArgument)
	}
	if len(args[1]) != 64 {
		return Command{}, fmt.Errorf("%w: sha256 %q", ErrBadArgument, args[1])
	}
	if _, err := hex.DecodeString(args[1]); err != nil {
		return Command{}, fmt.Errorf("%w: sha256 %q", ErrBadArgument, args[1])
	}
	return Command{
		Kind:    KindFWUpdate,
		Path:    args[0],
		SHA256:  strings.ToLower(args[1]),
		Version: args[2],
	}, nil
}

// parseKey accepts a key code as hex (1e or 0x1e) or decimal.
func parseKey(s string) (byte, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty key", ErrBadArgument)
	}
	if v, err := strconv.ParseUint(s, 16, 8); err == nil {
		return byte(v), nil
	}
	if v, err := strconv.ParseUint(s, 0, 8); err == nil {
		return byte(v), nil
	}
	return 0, fmt.Errorf("%w: key %q", ErrBadArgument, s)
}
