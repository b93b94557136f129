// Package grid implements the terminal cell buffer: the visible surface,
// scrollback, cursor and style state, scrolling regions, and the
// alternate screen, with dirty tracking for incremental publication.
package grid

// ColorKind selects which member of Color is meaningful.
type ColorKind uint8

const (
	ColorDefault ColorKind = iota
	ColorPalette
	ColorRGB
)

// Color is a tagged union over the default color, a 256-color palette
// index, or a direct RGB triple.
type Color struct {
	Kind    ColorKind
	Palette uint8
	R, G, B uint8
}

// DefaultColor is the zero value: the terminal's default fg/bg.
var DefaultColor = Color{Kind: ColorDefault}

// PaletteColor builds a 256-color palette reference.
func PaletteColor(idx uint8) Color {
	return Color{Kind: ColorPalette, Palette: idx}
}

// RGBColor builds a direct-color reference.
func RGBColor(r, g, b uint8) Color {
	return Color{Kind: ColorRGB, R: r, G: g, B: b}
}

// StyleFlags is a bitset of SGR text attributes.
type StyleFlags uint8

const (
	FlagBold StyleFlags = 1 << iota
	FlagItalic
	FlagUnderline
	FlagInverse
	FlagStrikethrough
)

// Style is the active rendering attribute set applied to newly written
// cells: foreground, background, and attribute flags.
type Style struct {
	Fg    Color
	Bg    Color
	Flags StyleFlags
}

// DefaultStyle is an unstyled cell: default colors, no attributes.
var DefaultStyle = Style{Fg: DefaultColor, Bg: DefaultColor}

// Cell is a single on-screen character position.
type Cell struct {
	Ch    rune
	Style Style
	// WideContinuation marks this cell as the trailing half of a
	// double-width glyph occupying the previous column. A continuation
	// cell is always immediately preceded by its lead cell in the same
	// row; operations that would break the pairing blank both halves.
	WideContinuation bool
}

// BlankCell returns a default, space-filled cell styled with the given
// background (foreground/attributes are reset to default, matching the
// behavior of erase operations, which style by background only).
func BlankCell(bg Color) Cell {
	return Cell{Ch: ' ', Style: Style{Fg: DefaultColor, Bg: bg}}
}

// applySGR folds one SGR parameter list into the current style. Param 0
// (or an empty list, which callers normalize to [0]) resets to the
// default style; unknown parameters are skipped.
func applySGR(s Style, params []int) Style {
	i := 0
	for i < len(params) {
		n := params[i]
		switch {
		case n == 0:
			s = DefaultStyle
		case n == 1:
			s.Flags |= FlagBold
		case n == 3:
			s.Flags |= FlagItalic
		case n == 4:
			s.Flags |= FlagUnderline
		case n == 7:
			s.Flags |= FlagInverse
		case n == 9:
			s.Flags |= FlagStrikethrough
		case n == 22:
			s.Flags &^= FlagBold
		case n == 23:
			s.Flags &^= FlagItalic
		case n == 24:
			s.Flags &^= FlagUnderline
		case n == 27:
			s.Flags &^= FlagInverse
		case n == 29:
			s.Flags &^= FlagStrikethrough
		case n >= 30 && n <= 37:
			s.Fg = PaletteColor(uint8(n - 30))
		case n == 38:
			c, consumed := extendedColor(params, i+1)
			s.Fg = c
			i += consumed
		case n == 39:
			s.Fg = DefaultColor
		case n >= 40 && n <= 47:
			s.Bg = PaletteColor(uint8(n - 40))
		case n == 48:
			c, consumed := extendedColor(params, i+1)
			s.Bg = c
			i += consumed
		case n == 49:
			s.Bg = DefaultColor
		case n >= 90 && n <= 97:
			s.Fg = PaletteColor(uint8(n - 90 + 8))
		case n >= 100 && n <= 107:
			s.Bg = PaletteColor(uint8(n - 100 + 8))
		}
		i++
	}
	return s
}

// extendedColor parses the 256-color or direct-RGB extension starting at
// params[idx] (5 or 2). Returns the color and how many additional params
// were consumed beyond the selector itself.
func extendedColor(params []int, idx int) (Color, int) {
	if idx >= len(params) {
		return DefaultColor, 0
	}
	switch params[idx] {
	case 5:
		if idx+1 < len(params) {
			return PaletteColor(uint8(params[idx+1])), 2
		}
		return DefaultColor, 1
	case 2:
		if idx+3 < len(params) {
			r := uint8(params[idx+1])
			g := uint8(params[idx+2])
			b := uint8(params[idx+3])
			return RGBColor(r, g, b), 4
		}
		return DefaultColor, len(params) - idx
	default:
		return DefaultColor, 1
	}
}
