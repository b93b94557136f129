package vtparser

import (
	"strings"
	"testing"

	"ptybroker/internal/grid"
)

func TestPlainTextFastPath(t *testing.T) {
	g := grid.New(20, 5)
	p := New(g)
	p.Feed([]byte("hello"))
	rows := g.VisibleText()
	if rows[0] != "hello" {
		t.Fatalf("row0 = %q, want hello", rows[0])
	}
}

func TestCursorMovementCSI(t *testing.T) {
	g := grid.New(20, 10)
	p := New(g)
	p.Feed([]byte("\x1b[10;5H"))
	x, y := g.Cursor()
	if x != 4 || y != 9 {
		t.Fatalf("cursor = (%d,%d), want (4,9) from 1-based CSI H", x, y)
	}
}

func TestEraseInDisplay(t *testing.T) {
	g := grid.New(5, 2)
	p := New(g)
	p.Feed([]byte("abcde\x1b[2J"))
	rows := g.VisibleText()
	if rows[0] != "" || rows[1] != "" {
		t.Fatalf("rows after CSI 2J = %q, want blank", rows)
	}
}

func TestSGRColorAndBold(t *testing.T) {
	g := grid.New(10, 2)
	p := New(g)
	p.Feed([]byte("\x1b[1;31mx"))
	if g.ActiveStyle().Flags&grid.FlagBold == 0 {
		t.Fatal("expected bold flag set")
	}
	if g.ActiveStyle().Fg.Kind != grid.ColorPalette || g.ActiveStyle().Fg.Palette != 1 {
		t.Fatalf("fg = %+v, want palette 1 (red)", g.ActiveStyle().Fg)
	}
}

func TestSGRTrueColor(t *testing.T) {
	g := grid.New(10, 2)
	p := New(g)
	p.Feed([]byte("\x1b[38;2;10;20;30mx"))
	fg := g.ActiveStyle().Fg
	if fg.Kind != grid.ColorRGB || fg.R != 10 || fg.G != 20 || fg.B != 30 {
		t.Fatalf("fg = %+v, want rgb(10,20,30)", fg)
	}
}

func TestTooManyParamsIgnoresEntireSequence(t *testing.T) {
	g := grid.New(10, 2)
	p := New(g)
	var params []string
	for i := 0; i < 20; i++ {
		params = append(params, "1")
	}
	seq := "\x1b[" + strings.Join(params, ";") + "m"
	p.Feed([]byte(seq + "y"))
	// The sequence itself must have no effect, but Ground resumes at 'y'.
	if g.ActiveStyle().Flags&grid.FlagBold != 0 {
		t.Fatal("overflowed CSI sequence should have no effect")
	}
	rows := g.VisibleText()
	if rows[0] != "y" {
		t.Fatalf("row0 = %q, want the sequence's final byte to resume Ground and print y", rows[0])
	}
}

func TestAlternateScreenSwitch(t *testing.T) {
	g := grid.New(10, 2)
	p := New(g)
	p.Feed([]byte("A\x1b[?1049hB\x1b[?1049l"))
	rows := g.VisibleText()
	if rows[0] != "A" {
		t.Fatalf("row0 = %q, want A (alternate screen discarded)", rows[0])
	}
}

func TestScrollRegionCSI(t *testing.T) {
	g := grid.New(10, 10)
	p := New(g)
	p.Feed([]byte("\x1b[3;7r"))
	top, bottom := g.ScrollRegion()
	if top != 2 || bottom != 7 {
		t.Fatalf("region = [%d,%d), want [2,7)", top, bottom)
	}
}

func TestMalformedSequenceNeverPanics(t *testing.T) {
	g := grid.New(10, 2)
	p := New(g)
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("parser panicked on malformed input: %v", r)
		}
	}()
	p.Feed([]byte("\x1b[9999999999999999999999mZ\x1b]garbage\x07\x1bP\x1b\\\xff\xfe"))
}

func TestUTF8SplitAcrossFeedCalls(t *testing.T) {
	g := grid.New(10, 2)
	p := New(g)
	euro := "€" // 3-byte UTF-8 sequence
	b := []byte(euro)
	p.Feed(b[:1])
	p.Feed(b[1:])
	rows := g.VisibleText()
	if rows[0] != euro {
		t.Fatalf("row0 = %q, want %q", rows[0], euro)
	}
}

// recordingScreen captures verb names so sequence→verb translation can
// be asserted without a real grid.
type recordingScreen struct {
	verbs []string
}

func (r *recordingScreen) record(v string)                   { r.verbs = append(r.verbs, v) }
func (r *recordingScreen) PutChar(c rune)                    { r.record("put:" + string(c)) }
func (r *recordingScreen) PutText(s string)                  { r.record("text:" + s) }
func (r *recordingScreen) LineFeed()                         { r.record("lf") }
func (r *recordingScreen) CarriageReturn()                   { r.record("cr") }
func (r *recordingScreen) Backspace()                        { r.record("bs") }
func (r *recordingScreen) HorizontalTab()                    { r.record("tab") }
func (r *recordingScreen) Bell()                             { r.record("bell") }
func (r *recordingScreen) CursorMove(x, y int)               { r.record("move") }
func (r *recordingScreen) CursorMoveRel(dx, dy int)          { r.record("moverel") }
func (r *recordingScreen) SaveCursor()                       { r.record("save") }
func (r *recordingScreen) RestoreCursor()                    { r.record("restore") }
func (r *recordingScreen) ApplyStyle(params []int)           { r.record("style") }
func (r *recordingScreen) SetScrollRegion(top, bottom int)   { r.record("region") }
func (r *recordingScreen) ScrollUp(n int)                    { r.record("scrollup") }
func (r *recordingScreen) ScrollDown(n int)                  { r.record("scrolldown") }
func (r *recordingScreen) EraseInDisplay(grid.EraseDisplayMode) { r.record("ed") }
func (r *recordingScreen) EraseInLine(grid.EraseLineMode)       { r.record("el") }
func (r *recordingScreen) SwitchAlternate(on bool)           { r.record("alt") }

func TestVerbSequenceForMixedStream(t *testing.T) {
	rec := &recordingScreen{}
	p := New(rec)
	p.Feed([]byte("hi\r\n\x1b7\x1b[2K\x1b8\x07"))
	want := []string{"text:hi", "cr", "lf", "save", "el", "restore", "bell"}
	if len(rec.verbs) != len(want) {
		t.Fatalf("verbs = %v, want %v", rec.verbs, want)
	}
	for i := range want {
		if rec.verbs[i] != want[i] {
			t.Fatalf("verb[%d] = %q, want %q (full: %v)", i, rec.verbs[i], want[i], rec.verbs)
		}
	}
}

func TestControlBytesInsideCSIAreDiscarded(t *testing.T) {
	rec := &recordingScreen{}
	p := New(rec)
	p.Feed([]byte("\x1b[2\x00\x01J"))
	if len(rec.verbs) != 1 || rec.verbs[0] != "ed" {
		t.Fatalf("verbs = %v, want just the erase", rec.verbs)
	}
}

func TestScrolledOutputLandsInScrollback(t *testing.T) {
	g := grid.NewWithScrollback(80, 24, 10_000)
	p := New(g)
	for i := 0; i < 50; i++ {
		p.Feed([]byte("line-" + itoa(i) + "\r\n"))
	}
	sb := g.Scrollback()
	if len(sb) == 0 {
		t.Fatal("expected scrollback after 50 lines on a 24-row grid")
	}
	// Oldest rows scroll out first, in emission order.
	for i, row := range sb {
		want := "line-" + itoa(i)
		if got := trimRow(row); got != want {
			t.Fatalf("scrollback[%d] = %q, want %q", i, got, want)
		}
	}
	visible := strings.Join(g.VisibleText(), "\n")
	if !strings.Contains(visible, "line-49") {
		t.Fatal("most recent line missing from the visible buffer")
	}
	if strings.Contains(visible, "line-"+itoa(len(sb)-1)+"\n") {
		t.Fatal("a scrolled-out line is still visible")
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

func trimRow(cells []grid.Cell) string {
	var sb strings.Builder
	for _, c := range cells {
		if c.WideContinuation {
			continue
		}
		ch := c.Ch
		if ch == 0 {
			ch = ' '
		}
		sb.WriteRune(ch)
	}
	return strings.TrimRight(sb.String(), " ")
}

func TestOSCIgnoredWithoutDisturbingGround(t *testing.T) {
	g := grid.New(10, 2)
	p := New(g)
	p.Feed([]byte("\x1b]0;title\x07after"))
	rows := g.VisibleText()
	if rows[0] != "after" {
		t.Fatalf("row0 = %q, want after", rows[0])
	}
}
