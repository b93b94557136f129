// Package vtparser implements a byte-driven VT100/ANSI state machine for
// the common ECMA-48/xterm subset. The parser owns no screen state: it
// translates the byte stream into a fixed set of verbs on a Screen,
// which internal/grid implements. Malformed input is consumed and
// discarded silently; the parser never errors.
package vtparser

import (
	"unicode/utf8"

	"ptybroker/internal/grid"
)

// Screen is the verb set the parser drives. *grid.Grid satisfies it; a
// recording fake can stand in for tests that only care about which verbs
// a byte sequence produces.
type Screen interface {
	PutChar(c rune)
	PutText(s string)
	LineFeed()
	CarriageReturn()
	Backspace()
	HorizontalTab()
	Bell()
	CursorMove(x, y int)
	CursorMoveRel(dx, dy int)
	SaveCursor()
	RestoreCursor()
	ApplyStyle(params []int)
	SetScrollRegion(top, bottom int)
	ScrollUp(n int)
	ScrollDown(n int)
	EraseInDisplay(mode grid.EraseDisplayMode)
	EraseInLine(mode grid.EraseLineMode)
	SwitchAlternate(on bool)
}

type state int

const (
	stGround state = iota
	stEscape
	stCSIEntry
	stCSIParam
	stCSIIntermediate
	stCSIIgnore
	stOSC
	stOSCEsc
	stDCS
	stDCSEsc
	stUTF8
)

const (
	// maxParams caps the CSI parameter list; a 17th parameter sends the
	// whole sequence to the Ignore state.
	maxParams = 16
	// maxParamValue clamps each numeric parameter.
	maxParamValue = 65535
	// maxIntermediates caps the CSI/ESC intermediate-byte buffer.
	maxIntermediates = 4
)

// Parser recognizes VT sequences in a raw PTY byte stream and drives a
// Screen. It is not safe for concurrent use; one Parser drives one
// Screen from one goroutine, matching the headless runtime's
// single-threaded event loop. UTF-8 sequences split across Feed calls
// are buffered and completed on the next call.
type Parser struct {
	screen Screen

	state state

	params     []int
	curParam   int
	hasParam   bool
	paramCount int
	private    byte
	inters     [maxIntermediates]byte
	interLen   int
	interOver  bool

	utf8Buf  [utf8.UTFMax]byte
	utf8Len  int
	utf8Need int
}

// New creates a parser that drives s.
func New(s Screen) *Parser {
	return &Parser{screen: s, params: make([]int, 0, maxParams)}
}

// Feed consumes a byte range. It never panics or aborts: malformed
// sequences, truncated UTF-8, and unknown final bytes are discarded.
func (p *Parser) Feed(data []byte) {
	i := 0
	for i < len(data) {
		// Fast path: in Ground, a maximal run of printable ASCII is
		// emitted as one batched put_text verb.
		if p.state == stGround {
			j := i
			for j < len(data) && data[j] >= 0x20 && data[j] < 0x7F {
				j++
			}
			if j > i {
				p.screen.PutText(string(data[i:j]))
				i = j
				continue
			}
		}
		p.step(data[i])
		i++
	}
}

func (p *Parser) step(b byte) {
	switch p.state {
	case stGround:
		p.ground(b)
	case stUTF8:
		p.utf8Byte(b)
	case stEscape:
		p.escape(b)
	case stCSIEntry, stCSIParam, stCSIIntermediate:
		p.csi(b)
	case stCSIIgnore:
		if b == 0x1B {
			p.enterEscape()
		} else if b >= 0x40 && b <= 0x7E {
			p.state = stGround
		}
	case stOSC:
		switch b {
		case 0x07:
			p.state = stGround
		case 0x1B:
			p.state = stOSCEsc
		}
	case stOSCEsc:
		if b == '\\' {
			p.state = stGround
		} else {
			p.state = stOSC
		}
	case stDCS:
		if b == 0x1B {
			p.state = stDCSEsc
		}
	case stDCSEsc:
		if b == '\\' {
			p.state = stGround
		} else {
			p.state = stDCS
		}
	}
}

func (p *Parser) ground(b byte) {
	switch {
	case b == 0x1B:
		p.enterEscape()
	case b == 0x0A, b == 0x0B, b == 0x0C:
		p.screen.LineFeed()
	case b == 0x0D:
		p.screen.CarriageReturn()
	case b == 0x08:
		p.screen.Backspace()
	case b == 0x09:
		p.screen.HorizontalTab()
	case b == 0x07:
		p.screen.Bell()
	case b < 0x20 || b == 0x7F:
		// Remaining C0 controls and DEL are discarded.
	case b < 0x80:
		p.screen.PutChar(rune(b))
	default:
		p.utf8Start(b)
	}
}

func (p *Parser) utf8Start(b byte) {
	switch {
	case b&0xE0 == 0xC0:
		p.utf8Need = 2
	case b&0xF0 == 0xE0:
		p.utf8Need = 3
	case b&0xF8 == 0xF0:
		p.utf8Need = 4
	default:
		// Stray continuation or invalid lead byte: discard.
		return
	}
	p.utf8Buf[0] = b
	p.utf8Len = 1
	p.state = stUTF8
}

func (p *Parser) utf8Byte(b byte) {
	if b&0xC0 != 0x80 {
		// The sequence was truncated: discard it and reprocess this
		// byte from Ground.
		p.utf8Len, p.utf8Need = 0, 0
		p.state = stGround
		p.step(b)
		return
	}
	p.utf8Buf[p.utf8Len] = b
	p.utf8Len++
	if p.utf8Len < p.utf8Need {
		return
	}
	r, _ := utf8.DecodeRune(p.utf8Buf[:p.utf8Len])
	p.utf8Len, p.utf8Need = 0, 0
	p.state = stGround
	if r != utf8.RuneError {
		p.screen.PutChar(r)
	}
}

func (p *Parser) enterEscape() {
	p.state = stEscape
	p.interLen = 0
	p.interOver = false
}

func (p *Parser) escape(b byte) {
	switch {
	case b >= 0x20 && b <= 0x2F:
		if p.interLen < maxIntermediates {
			p.inters[p.interLen] = b
			p.interLen++
		}
	case b == '[':
		p.enterCSI()
	case b == ']':
		p.state = stOSC
	case b == 'P':
		p.state = stDCS
	default:
		p.state = stGround
		if p.interLen > 0 {
			// ESC with intermediates (charset designators and friends)
			// carries nothing the grid models.
			return
		}
		switch b {
		case '7':
			p.screen.SaveCursor()
		case '8':
			p.screen.RestoreCursor()
		case 'D':
			p.screen.LineFeed()
		case 'E':
			p.screen.CarriageReturn()
			p.screen.LineFeed()
		case 'M':
			p.screen.ScrollDown(1)
		case 'c':
			p.screen.ApplyStyle([]int{0})
			p.screen.EraseInDisplay(grid.EraseAll)
			p.screen.CursorMove(0, 0)
		}
	}
}

func (p *Parser) enterCSI() {
	p.state = stCSIEntry
	p.params = p.params[:0]
	p.curParam = 0
	p.hasParam = false
	p.paramCount = 0
	p.private = 0
	p.interLen = 0
	p.interOver = false
}

func (p *Parser) csi(b byte) {
	switch {
	case b >= '0' && b <= '9':
		if p.state == stCSIIntermediate {
			// Digits after an intermediate byte are malformed.
			p.state = stCSIIgnore
			return
		}
		p.state = stCSIParam
		p.hasParam = true
		p.curParam = p.curParam*10 + int(b-'0')
		if p.curParam > maxParamValue {
			p.curParam = maxParamValue
		}
	case b == ';':
		if p.state == stCSIIntermediate {
			p.state = stCSIIgnore
			return
		}
		p.state = stCSIParam
		p.pushParam()
		if p.paramCount >= maxParams {
			// The separator opens a 17th parameter slot: the whole
			// sequence is discarded, Ground resumes at the final byte.
			p.state = stCSIIgnore
		}
	case b >= 0x3C && b <= 0x3F:
		// Private markers are only valid before any parameter.
		if p.state != stCSIEntry {
			p.state = stCSIIgnore
			return
		}
		p.private = b
	case b == ':':
		p.state = stCSIIgnore
	case b >= 0x20 && b <= 0x2F:
		p.state = stCSIIntermediate
		if p.interLen < maxIntermediates {
			p.inters[p.interLen] = b
			p.interLen++
		} else {
			p.interOver = true
		}
	case b >= 0x40 && b <= 0x7E:
		if p.hasParam || p.paramCount > 0 {
			p.pushParam()
		}
		p.state = stGround
		if p.paramCount <= maxParams && !p.interOver {
			p.dispatchCSI(b)
		}
	case b == 0x1B:
		p.enterEscape()
	default:
		// C0 controls and other bytes inside a CSI sequence: discard.
	}
}

// pushParam closes the parameter being accumulated, appending it (an
// empty slot appends 0, which dispatchers read back as "defaulted").
func (p *Parser) pushParam() {
	p.paramCount++
	if len(p.params) < maxParams {
		p.params = append(p.params, p.curParam)
	}
	p.curParam = 0
	p.hasParam = false
}

// param returns the idx-th parameter, substituting def when it is absent
// or zero.
func (p *Parser) param(idx, def int) int {
	if idx >= len(p.params) || p.params[idx] == 0 {
		return def
	}
	return p.params[idx]
}

func (p *Parser) dispatchCSI(final byte) {
	if p.interLen > 0 {
		return
	}
	if p.private != 0 {
		if p.private == '?' && (final == 'h' || final == 'l') {
			for _, n := range p.params {
				if n == 1049 {
					p.screen.SwitchAlternate(final == 'h')
				}
			}
		}
		return
	}
	switch final {
	case 'A':
		p.screen.CursorMoveRel(0, -p.param(0, 1))
	case 'B':
		p.screen.CursorMoveRel(0, p.param(0, 1))
	case 'C':
		p.screen.CursorMoveRel(p.param(0, 1), 0)
	case 'D':
		p.screen.CursorMoveRel(-p.param(0, 1), 0)
	case 'H', 'f':
		p.screen.CursorMove(p.param(1, 1)-1, p.param(0, 1)-1)
	case 'J':
		if n := p.paramOrZero(0); n >= 0 && n <= 3 {
			p.screen.EraseInDisplay(grid.EraseDisplayMode(n))
		}
	case 'K':
		if n := p.paramOrZero(0); n >= 0 && n <= 2 {
			p.screen.EraseInLine(grid.EraseLineMode(n))
		}
	case 'S':
		p.screen.ScrollUp(p.param(0, 1))
	case 'T':
		p.screen.ScrollDown(p.param(0, 1))
	case 'm':
		params := p.params
		if len(params) == 0 {
			params = []int{0}
		}
		p.screen.ApplyStyle(params)
	case 'r':
		// DECSTBM parameters are 1-based and bottom-inclusive; the
		// screen's region is 0-based and bottom-exclusive, so the
		// bottom parameter carries over unchanged (0 means last row).
		p.screen.SetScrollRegion(p.param(0, 1)-1, p.paramOrZero(1))
	}
}

// paramOrZero returns the idx-th parameter with 0 (not 1) as the absent
// default, for selectors where 0 is a meaningful mode.
func (p *Parser) paramOrZero(idx int) int {
	if idx >= len(p.params) {
		return 0
	}
	return p.params[idx]
}
