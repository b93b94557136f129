package grid

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"
)

// termenvColor converts a grid Color to a termenv.Color for SGR rendering.
func termenvColor(c Color) termenv.Color {
	switch c.Kind {
	case ColorPalette:
		return termenv.ANSI256Color(int(c.Palette))
	case ColorRGB:
		return termenv.RGBColor(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
	default:
		return nil
	}
}

// SGR renders a Style as an ANSI SGR escape sequence (without the leading
// reset); used by headless's optional local-echo attach mode.
func SGR(s Style) string {
	var parts []string
	if s.Flags&FlagBold != 0 {
		parts = append(parts, "1")
	}
	if s.Flags&FlagItalic != 0 {
		parts = append(parts, "3")
	}
	if s.Flags&FlagUnderline != 0 {
		parts = append(parts, "4")
	}
	if s.Flags&FlagInverse != 0 {
		parts = append(parts, "7")
	}
	if s.Flags&FlagStrikethrough != 0 {
		parts = append(parts, "9")
	}
	if fg := termenvColor(s.Fg); fg != nil {
		parts = append(parts, fg.Sequence(false))
	}
	if bg := termenvColor(s.Bg); bg != nil {
		parts = append(parts, bg.Sequence(true))
	}
	if len(parts) == 0 {
		return ""
	}
	return "\x1b[" + strings.Join(parts, ";") + "m"
}

// RenderRow renders one row of cells as plain text preceded by SGR codes
// for each style run, resetting at the end of the row. Used by the
// headless runtime's optional local-echo attach mode to mirror the pane
// locally without re-deriving style transitions from scratch each frame.
func RenderRow(cells []Cell) string {
	var sb strings.Builder
	var cur Style
	open := false
	for _, c := range cells {
		if c.WideContinuation {
			continue
		}
		if !open || c.Style != cur {
			if open {
				sb.WriteString("\x1b[0m")
			}
			if seq := SGR(c.Style); seq != "" {
				sb.WriteString(seq)
			}
			cur = c.Style
			open = true
		}
		ch := c.Ch
		if ch == 0 {
			ch = ' '
		}
		sb.WriteRune(ch)
	}
	if open {
		sb.WriteString("\x1b[0m")
	}
	return sb.String()
}
