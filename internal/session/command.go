package session

import "fmt"

// CommandKind selects what a Command does.
type CommandKind int

const (
	// CmdRedraw re-renders every key of the visible panel.
	CmdRedraw CommandKind = iota
	// CmdRedrawKey re-renders one key.
	CmdRedrawKey
	// CmdClearKey blanks one key.
	CmdClearKey
	// CmdClear blanks every key.
	CmdClear
	// CmdSetBrightness changes the backlight.
	CmdSetBrightness
)

func (k CommandKind) String() string {
	switch k {
	case CmdRedraw:
		return "redraw"
	case CmdRedrawKey:
		return "redraw_key"
	case CmdClearKey:
		return "clear_key"
	case CmdClear:
		return "clear"
	case CmdSetBrightness:
		return "set_brightness"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is one unit of work for the command loop.
type Command struct {
	Kind    CommandKind
	Key     uint8
	Percent uint8
}

// Redraw returns a full redraw command.
func Redraw() Command { return Command{Kind: CmdRedraw} }

// RedrawKey returns a command re-rendering key.
func RedrawKey(key uint8) Command { return Command{Kind: CmdRedrawKey, Key: key} }

// ClearKey returns a command blanking key.
func ClearKey(key uint8) Command { return Command{Kind: CmdClearKey, Key: key} }

// Clear returns a command blanking the whole device.
func Clear() Command { return Command{Kind: CmdClear} }

// Brightness returns a backlight command. Values above 100 are clamped.
func Brightness(percent uint8) Command {
	return Command{Kind: CmdSetBrightness, Percent: clampPercent(percent)}
}

func clampPercent(p uint8) uint8 {
	if p > 100 {
		return 100
	}
	return p
}
