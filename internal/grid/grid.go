package grid

import (
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
)

// EraseDisplayMode selects the region affected by erase_in_display.
type EraseDisplayMode int

const (
	EraseBelow EraseDisplayMode = iota
	EraseAbove
	EraseAll
	EraseAllAndScrollback
)

// EraseLineMode selects the region affected by erase_in_line.
type EraseLineMode int

const (
	EraseLineFromCursor EraseLineMode = iota
	EraseLineToCursor
	EraseLineAll
)

const defaultScrollbackCapacity = 10_000

// savedCursor is the one DECSC snapshot each buffer keeps.
type savedCursor struct {
	x, y  int
	style Style
}

// buffer is one screen's worth of cells plus its saved-cursor snapshot.
// Cells are stored row-major in a single flat slice of length cols*rows.
type buffer struct {
	cells []Cell
	saved savedCursor
}

func newBuffer(cols, rows int) *buffer {
	b := &buffer{cells: make([]Cell, cols*rows)}
	for i := range b.cells {
		b.cells[i] = BlankCell(DefaultColor)
	}
	return b
}

// Grid is the visible terminal surface plus scrollback, cursor, and style
// state for one pane. All mutating operations and query methods take an
// internal lock so a renderer on another goroutine can safely call them
// concurrently with whatever goroutine is feeding parsed PTY output in.
type Grid struct {
	mu sync.Mutex

	cols, rows int

	primary   *buffer
	alternate *buffer
	active    *buffer
	onAlt     bool

	// cursorX may transiently equal cols after printing into the last
	// column; the next printable wraps.
	cursorX, cursorY int
	style            Style
	preAlt           savedCursor // cursor+style snapshot across an alt-screen switch

	scrollTop, scrollBottom int // half-open [top, bottom)

	scrollback     [][]Cell
	scrollbackCap  int
	scrollbackHead int // index of oldest row within the ring
	scrollbackLen  int

	dirty    map[[2]int]bool
	allDirty bool

	bellCount int
}

// New creates a grid of the given dimensions with the default scrollback
// capacity (10,000 rows).
func New(cols, rows int) *Grid {
	return NewWithScrollback(cols, rows, defaultScrollbackCapacity)
}

// NewWithScrollback creates a grid with an explicit scrollback capacity.
func NewWithScrollback(cols, rows, scrollbackCap int) *Grid {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	if scrollbackCap < 0 {
		scrollbackCap = 0
	}
	g := &Grid{
		cols:          cols,
		rows:          rows,
		primary:       newBuffer(cols, rows),
		alternate:     newBuffer(cols, rows),
		style:         DefaultStyle,
		scrollTop:     0,
		scrollBottom:  rows,
		scrollbackCap: scrollbackCap,
		dirty:         make(map[[2]int]bool),
	}
	g.active = g.primary
	if scrollbackCap > 0 {
		g.scrollback = make([][]Cell, 0, scrollbackCap)
	}
	return g
}

// Cols returns the current column count.
func (g *Grid) Cols() int { g.mu.Lock(); defer g.mu.Unlock(); return g.cols }

// Rows returns the current row count.
func (g *Grid) Rows() int { g.mu.Lock(); defer g.mu.Unlock(); return g.rows }

// Cursor returns the current 0-based cursor position. X may equal Cols
// transiently after printing into the last column.
func (g *Grid) Cursor() (x, y int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cursorX, g.cursorY
}

// ActiveStyle returns the style applied to newly printed characters.
func (g *Grid) ActiveStyle() Style {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.style
}

// ScrollRegion returns the current scrolling region [top, bottom).
func (g *Grid) ScrollRegion() (top, bottom int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scrollTop, g.scrollBottom
}

// OnAlternate reports whether the alternate screen is active.
func (g *Grid) OnAlternate() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.onAlt
}

func (g *Grid) cellAt(x, y int) *Cell {
	return &g.active.cells[y*g.cols+x]
}

// clobberWideLocked blanks the partner of a wide pair when (x, y) is
// about to be overwritten, so a continuation cell never survives without
// its lead (and vice versa).
func (g *Grid) clobberWideLocked(x, y int) {
	c := g.cellAt(x, y)
	if c.WideContinuation && x > 0 {
		lead := g.cellAt(x-1, y)
		*lead = BlankCell(lead.Style.Bg)
		g.markDirtyLocked(x-1, y)
	}
	if x+1 < g.cols {
		next := g.cellAt(x+1, y)
		if next.WideContinuation && !c.WideContinuation {
			*next = BlankCell(next.Style.Bg)
			g.markDirtyLocked(x+1, y)
		}
	}
}

// putCharLocked places one printable rune at the cursor, wrapping first
// if the glyph (1 or 2 columns wide) would not fit on the current row.
func (g *Grid) putCharLocked(c rune) {
	w := runewidth.RuneWidth(c)
	if w < 1 {
		w = 1
	}
	if w > 2 {
		w = 2
	}
	if g.cursorX+w > g.cols {
		g.wrapLocked()
	}
	x, y := g.cursorX, g.cursorY
	g.clobberWideLocked(x, y)
	*g.cellAt(x, y) = Cell{Ch: c, Style: g.style}
	g.markDirtyLocked(x, y)
	if w == 2 {
		g.clobberWideLocked(x+1, y)
		*g.cellAt(x+1, y) = Cell{Style: g.style, WideContinuation: true}
		g.markDirtyLocked(x+1, y)
	}
	g.cursorX += w
}

// wrapLocked moves the cursor to column 0 of the next row, scrolling the
// region if the cursor was on its last row.
func (g *Grid) wrapLocked() {
	g.cursorX = 0
	g.advanceRowLocked()
}

func (g *Grid) advanceRowLocked() {
	if g.cursorY == g.scrollBottom-1 {
		g.scrollUpLocked(1)
		return
	}
	if g.cursorY+1 < g.rows {
		g.cursorY++
	}
}

// PutChar writes c at the cursor with the active style, advancing the
// cursor by the glyph's display width.
func (g *Grid) PutChar(c rune) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.putCharLocked(c)
}

// PutText is a batch form of PutChar for a run of plain printable text.
func (g *Grid) PutText(s string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range s {
		g.putCharLocked(r)
	}
}

// LineFeed advances the cursor one row, scrolling the region if the
// cursor would cross its bottom.
func (g *Grid) LineFeed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advanceRowLocked()
}

// CarriageReturn resets the cursor to column 0.
func (g *Grid) CarriageReturn() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cursorX = 0
}

// Backspace moves the cursor left one column without erasing.
func (g *Grid) Backspace() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cursorX > 0 {
		g.cursorX--
	}
}

// HorizontalTab advances the cursor to the next multiple of 8, clamped
// to the last column.
func (g *Grid) HorizontalTab() {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := (g.cursorX/8 + 1) * 8
	if next > g.cols-1 {
		next = g.cols - 1
	}
	g.cursorX = next
}

// CursorMove sets the cursor to an absolute 0-based position, clamped to
// the grid bounds.
func (g *Grid) CursorMove(x, y int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cursorX = clamp(x, 0, g.cols-1)
	g.cursorY = clamp(y, 0, g.rows-1)
}

// CursorMoveRel moves the cursor by a relative offset, clamped.
func (g *Grid) CursorMoveRel(dx, dy int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cursorX = clamp(g.cursorX+dx, 0, g.cols-1)
	g.cursorY = clamp(g.cursorY+dy, 0, g.rows-1)
}

// SaveCursor snapshots position and active style into the active
// buffer's slot (DECSC).
func (g *Grid) SaveCursor() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active.saved = savedCursor{x: g.cursorX, y: g.cursorY, style: g.style}
}

// RestoreCursor restores the active buffer's last saved position and
// style (DECRC). With no prior save, restores to (0,0) and the default
// style.
func (g *Grid) RestoreCursor() {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.active.saved
	g.cursorX = clamp(s.x, 0, g.cols-1)
	g.cursorY = clamp(s.y, 0, g.rows-1)
	g.style = s.style
}

// SetStyle replaces the active style applied to newly written cells.
func (g *Grid) SetStyle(s Style) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.style = s
}

// ApplyStyle folds an SGR parameter list into the active style.
func (g *Grid) ApplyStyle(params []int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(params) == 0 {
		params = []int{0}
	}
	g.style = applySGR(g.style, params)
}

// SetScrollRegion validates and assigns the scrolling region and resets
// the cursor to the origin. bottom <= 0 selects the last row. An
// inverted region is ignored, leaving the previous one in place.
func (g *Grid) SetScrollRegion(top, bottom int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if top < 0 {
		top = 0
	}
	if bottom <= 0 || bottom > g.rows {
		bottom = g.rows
	}
	if top >= bottom {
		return
	}
	g.scrollTop = top
	g.scrollBottom = bottom
	g.cursorX, g.cursorY = 0, 0
}

// ScrollUp scrolls the active region up by n lines. Rows displaced off
// the top of the primary screen feed the scrollback.
func (g *Grid) ScrollUp(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scrollUpLocked(n)
}

func (g *Grid) scrollUpLocked(n int) {
	height := g.scrollBottom - g.scrollTop
	if n <= 0 || height <= 0 {
		return
	}
	if n > height {
		n = height
	}
	if g.scrollTop == 0 && !g.onAlt {
		for y := 0; y < n; y++ {
			row := make([]Cell, g.cols)
			copy(row, g.active.cells[y*g.cols:(y+1)*g.cols])
			g.pushScrollbackLocked(row)
		}
	}
	region := g.active.cells[g.scrollTop*g.cols : g.scrollBottom*g.cols]
	copy(region, region[n*g.cols:])
	blank := BlankCell(g.style.Bg)
	for i := (height - n) * g.cols; i < len(region); i++ {
		region[i] = blank
	}
	g.markRowsDirtyLocked(g.scrollTop, g.scrollBottom)
}

// ScrollDown scrolls the active region down by n lines; does not feed
// scrollback.
func (g *Grid) ScrollDown(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	height := g.scrollBottom - g.scrollTop
	if n <= 0 || height <= 0 {
		return
	}
	if n > height {
		n = height
	}
	region := g.active.cells[g.scrollTop*g.cols : g.scrollBottom*g.cols]
	copy(region[n*g.cols:], region[:(height-n)*g.cols])
	blank := BlankCell(g.style.Bg)
	for i := 0; i < n*g.cols; i++ {
		region[i] = blank
	}
	g.markRowsDirtyLocked(g.scrollTop, g.scrollBottom)
}

func (g *Grid) pushScrollbackLocked(row []Cell) {
	if g.scrollbackCap == 0 {
		return
	}
	if g.scrollbackLen < g.scrollbackCap {
		g.scrollback = append(g.scrollback, row)
		g.scrollbackLen++
		return
	}
	// Ring buffer: overwrite the oldest slot, O(1) eviction.
	g.scrollback[g.scrollbackHead] = row
	g.scrollbackHead = (g.scrollbackHead + 1) % g.scrollbackCap
}

// Scrollback returns the retained rows, oldest first. It is unavailable
// (returns nil) while the alternate screen is active.
func (g *Grid) Scrollback() [][]Cell {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.onAlt || g.scrollbackCap == 0 {
		return nil
	}
	out := make([][]Cell, g.scrollbackLen)
	for i := 0; i < g.scrollbackLen; i++ {
		out[i] = g.scrollback[(g.scrollbackHead+i)%g.scrollbackCap]
	}
	return out
}

func (g *Grid) fillLocked(from, to int) {
	blank := BlankCell(DefaultColor)
	cells := g.active.cells
	for i := from; i < to && i < len(cells); i++ {
		cells[i] = blank
	}
}

// EraseInDisplay clears the selected region (ED) with default-styled
// cells. EraseAllAndScrollback additionally discards retained scrollback,
// matching xterm's CSI 3J extension.
func (g *Grid) EraseInDisplay(mode EraseDisplayMode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	x := clamp(g.cursorX, 0, g.cols-1)
	cur := g.cursorY*g.cols + x
	switch mode {
	case EraseBelow:
		g.fillLocked(cur, g.cols*g.rows)
		g.markRowsDirtyLocked(g.cursorY, g.rows)
	case EraseAbove:
		g.fillLocked(0, cur+1)
		g.markRowsDirtyLocked(0, g.cursorY+1)
	case EraseAll, EraseAllAndScrollback:
		g.fillLocked(0, g.cols*g.rows)
		g.markAllDirtyLocked()
		if mode == EraseAllAndScrollback && !g.onAlt {
			g.scrollback = g.scrollback[:0]
			g.scrollbackLen = 0
			g.scrollbackHead = 0
		}
	}
}

// EraseInLine clears the selected portion of the cursor's row (EL).
func (g *Grid) EraseInLine(mode EraseLineMode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	x := clamp(g.cursorX, 0, g.cols-1)
	rowStart := g.cursorY * g.cols
	switch mode {
	case EraseLineFromCursor:
		g.fillLocked(rowStart+x, rowStart+g.cols)
	case EraseLineToCursor:
		g.fillLocked(rowStart, rowStart+x+1)
	case EraseLineAll:
		g.fillLocked(rowStart, rowStart+g.cols)
	}
	for i := 0; i < g.cols; i++ {
		g.markDirtyLocked(i, g.cursorY)
	}
}

// resizeBuffer builds a cols*rows copy of b, preserving cell contents in
// the intersection anchored top-left. A wide pair split by the new right
// edge is replaced with a blank.
func resizeBuffer(b *buffer, oldCols, oldRows, cols, rows int) *buffer {
	nb := newBuffer(cols, rows)
	minRows := min(oldRows, rows)
	minCols := min(oldCols, cols)
	for y := 0; y < minRows; y++ {
		copy(nb.cells[y*cols:y*cols+minCols], b.cells[y*oldCols:y*oldCols+minCols])
		if cols < oldCols && b.cells[y*oldCols+cols].WideContinuation {
			nb.cells[y*cols+cols-1] = BlankCell(DefaultColor)
		}
	}
	nb.saved = savedCursor{
		x:     clamp(b.saved.x, 0, cols-1),
		y:     clamp(b.saved.y, 0, rows-1),
		style: b.saved.style,
	}
	return nb
}

// Resize changes the grid dimensions, preserving content in the
// intersection of the old and new sizes. The cursor is clamped, the
// scroll region resets to full height, scrollback is retained, and the
// whole grid is marked dirty so callers repaint.
func (g *Grid) Resize(cols, rows int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	onAlt := g.active == g.alternate
	g.primary = resizeBuffer(g.primary, g.cols, g.rows, cols, rows)
	g.alternate = resizeBuffer(g.alternate, g.cols, g.rows, cols, rows)
	g.active = g.primary
	if onAlt {
		g.active = g.alternate
	}
	g.cols = cols
	g.rows = rows
	g.cursorX = clamp(g.cursorX, 0, cols)
	g.cursorY = clamp(g.cursorY, 0, rows-1)
	g.preAlt.x = clamp(g.preAlt.x, 0, cols-1)
	g.preAlt.y = clamp(g.preAlt.y, 0, rows-1)
	g.scrollTop = 0
	g.scrollBottom = rows
	g.markAllDirtyLocked()
}

// SwitchAlternate switches between the primary and alternate screens.
// Entering the alternate saves the cursor and style and presents a
// cleared buffer; leaving restores both, and the primary's content is
// back as it was. Scrollback neither grows nor is visible while the
// alternate is active.
func (g *Grid) SwitchAlternate(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if on == g.onAlt {
		return
	}
	if on {
		g.preAlt = savedCursor{x: g.cursorX, y: g.cursorY, style: g.style}
		blank := BlankCell(DefaultColor)
		for i := range g.alternate.cells {
			g.alternate.cells[i] = blank
		}
		g.active = g.alternate
	} else {
		g.active = g.primary
		g.cursorX = clamp(g.preAlt.x, 0, g.cols)
		g.cursorY = clamp(g.preAlt.y, 0, g.rows-1)
		g.style = g.preAlt.style
	}
	g.onAlt = on
	g.markAllDirtyLocked()
}

func (g *Grid) markDirtyLocked(x, y int) {
	if g.allDirty {
		return
	}
	g.dirty[[2]int{x, y}] = true
	if len(g.dirty) > (g.cols*g.rows)/4 {
		g.markAllDirtyLocked()
	}
}

func (g *Grid) markRowsDirtyLocked(top, bottom int) {
	if g.allDirty {
		return
	}
	if (bottom-top)*g.cols > (g.cols*g.rows)/4 {
		g.markAllDirtyLocked()
		return
	}
	for y := top; y < bottom; y++ {
		for x := 0; x < g.cols; x++ {
			g.markDirtyLocked(x, y)
		}
	}
}

func (g *Grid) markAllDirtyLocked() {
	g.allDirty = true
	g.dirty = make(map[[2]int]bool)
}

// DirtySnapshot returns the set of dirty cell coordinates (or nil with
// all=true) and clears the dirty state.
func (g *Grid) DirtySnapshot() (coords [][2]int, all bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.allDirty {
		g.allDirty = false
		g.dirty = make(map[[2]int]bool)
		return nil, true
	}
	coords = make([][2]int, 0, len(g.dirty))
	for c := range g.dirty {
		coords = append(coords, c)
	}
	g.dirty = make(map[[2]int]bool)
	return coords, false
}

// VisibleText returns the current visible buffer as rows of
// trailing-whitespace-trimmed strings.
func (g *Grid) VisibleText() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, g.rows)
	var sb strings.Builder
	for y := 0; y < g.rows; y++ {
		sb.Reset()
		for x := 0; x < g.cols; x++ {
			c := g.cellAt(x, y)
			if c.WideContinuation {
				continue
			}
			ch := c.Ch
			if ch == 0 {
				ch = ' '
			}
			sb.WriteRune(ch)
		}
		out[y] = strings.TrimRight(sb.String(), " ")
	}
	return out
}

// RowCells returns a copy of one visible row's styled cells.
func (g *Grid) RowCells(y int) []Cell {
	g.mu.Lock()
	defer g.mu.Unlock()
	if y < 0 || y >= g.rows {
		return nil
	}
	out := make([]Cell, g.cols)
	copy(out, g.active.cells[y*g.cols:(y+1)*g.cols])
	return out
}

// Bell records a bell event.
func (g *Grid) Bell() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bellCount++
}

// BellCount returns how many BEL bytes have been observed since New.
func (g *Grid) BellCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bellCount
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
