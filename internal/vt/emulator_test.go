package vt

import (
	"strings"
	"testing"

	"github.com/openmux/openmux/internal/scrollback"
)

func newTestEmulator(t *testing.T, rows, cols int) *Emulator {
	t.Helper()
	dir := t.TempDir()
	mgr := scrollback.NewManager(dir, 200, 200, 50, 500, nil)
	store := mgr.Store("test-pty")
	return NewEmulator(rows, cols, store)
}

// TestDirtyUpdateDeltaOnlyTouchesChangedRows covers S1: writing a single
// line only marks that row dirty; fetching again with no new write yields
// no further dirty rows (besides cursor/mode metadata, always present).
func TestDirtyUpdateDeltaOnlyTouchesChangedRows(t *testing.T) {
	e := newTestEmulator(t, 5, 20)

	first := e.GetDirtyUpdate()
	if !first.IsFull {
		t.Fatal("expected first GetDirtyUpdate to be a full snapshot")
	}

	e.Write([]byte("hello"))
	u := e.GetDirtyUpdate()
	if u.IsFull {
		t.Fatal("expected an incremental update after a plain write")
	}
	if len(u.DirtyRows) != 1 {
		t.Fatalf("expected exactly 1 dirty row, got %d: %+v", len(u.DirtyRows), u.DirtyRows)
	}
	row, ok := u.DirtyRows[0]
	if !ok {
		t.Fatal("expected row 0 to be dirty")
	}
	var got strings.Builder
	for _, c := range row.Cells {
		if c.Char != 0 {
			got.WriteRune(c.Char)
		}
	}
	if !strings.HasPrefix(got.String(), "hello") {
		t.Fatalf("row content = %q, want prefix %q", got.String(), "hello")
	}

	// Re-fetching without any new write yields no dirty rows.
	empty := e.GetDirtyUpdate()
	if empty.IsFull || len(empty.DirtyRows) != 0 {
		t.Fatalf("expected no dirty rows on repeat fetch, got %+v", empty)
	}
}

func TestResizeForcesFullSnapshot(t *testing.T) {
	e := newTestEmulator(t, 5, 20)
	e.Write([]byte("x"))
	e.GetDirtyUpdate()

	if err := e.Resize(10, 30); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	u := e.GetDirtyUpdate()
	if !u.IsFull {
		t.Fatal("expected a full snapshot immediately after Resize")
	}
	if u.FullState.Rows != 10 || u.FullState.Cols != 30 {
		t.Fatalf("FullState dims = %dx%d, want 10x30", u.FullState.Rows, u.FullState.Cols)
	}
}

func TestAlternateScreenModeTracking(t *testing.T) {
	e := newTestEmulator(t, 5, 20)
	if e.IsAlternateScreen() {
		t.Fatal("expected alternate screen off initially")
	}
	e.Write([]byte("\x1b[?1049h"))
	if !e.IsAlternateScreen() {
		t.Fatal("expected alternate screen on after DECSET 1049")
	}
	e.Write([]byte("\x1b[?1049l"))
	if e.IsAlternateScreen() {
		t.Fatal("expected alternate screen off after DECRST 1049")
	}
}

func TestTitleChangeCallback(t *testing.T) {
	e := newTestEmulator(t, 5, 20)
	var got string
	e.OnTitleChange(func(title string) { got = title })
	e.Write([]byte("\x1b]0;my session\x07"))
	if got != "my session" {
		t.Fatalf("title callback got %q, want %q", got, "my session")
	}
}

func TestKittyKeyboardFlagStack(t *testing.T) {
	e := newTestEmulator(t, 5, 20)
	if e.GetKittyKeyboardFlags() != 0 {
		t.Fatal("expected no kitty flags initially")
	}
	e.Write([]byte("\x1b[>1u"))
	if e.GetKittyKeyboardFlags() != KittyDisambiguateEscape {
		t.Fatalf("flags = %v, want KittyDisambiguateEscape", e.GetKittyKeyboardFlags())
	}
	e.Write([]byte("\x1b[>3u"))
	if e.GetKittyKeyboardFlags() != (KittyDisambiguateEscape | KittyReportEventTypes) {
		t.Fatalf("flags after second push = %v", e.GetKittyKeyboardFlags())
	}
	e.Write([]byte("\x1b[<u"))
	if e.GetKittyKeyboardFlags() != KittyDisambiguateEscape {
		t.Fatalf("flags after pop = %v, want KittyDisambiguateEscape", e.GetKittyKeyboardFlags())
	}
}

// TestSearchCoversLiveAndScrollback exercises Search over both tiers: a
// pattern written to the live grid is found, and nothing beyond the
// viewport spuriously matches.
func TestSearchCoversLiveAndScrollback(t *testing.T) {
	e := newTestEmulator(t, 3, 20)
	e.Write([]byte("needle-in-row0"))
	res := e.Search("needle", -1)
	if len(res.Matches) == 0 {
		t.Fatal("expected at least one match for 'needle'")
	}
	none := e.Search("absent-pattern-xyz", -1)
	if len(none.Matches) != 0 {
		t.Fatalf("expected zero matches, got %d", len(none.Matches))
	}
}

// TestScrollStateTracksRingFullAndViewportOffset covers spec §3's
// "a full hot ring implies isAtScrollbackLimit" invariant and the
// viewport-offset path SetViewportOffset opens up (previously hardcoded
// to 0/IsAtBottom=true with no way to express a scrolled-back viewport).
func TestScrollStateTracksRingFullAndViewportOffset(t *testing.T) {
	dir := t.TempDir()
	mgr := scrollback.NewManager(dir, 4, 4, 50, 500, nil)
	store := mgr.Store("small-ring-pty")
	e := NewEmulator(3, 20, store)

	before := e.GetDirtyUpdate().Scroll
	if before.IsAtScrollbackLimit {
		t.Fatal("expected IsAtScrollbackLimit false before the hot ring ever overflows")
	}

	store.Append(make([]Row, 10))

	after := e.GetDirtyUpdate().Scroll
	if !after.IsAtScrollbackLimit {
		t.Fatal("expected IsAtScrollbackLimit true once the hot ring has spilled")
	}

	e.SetViewportOffset(3)
	scroll := e.GetDirtyUpdate().Scroll
	if scroll.ViewportOffset != 3 || scroll.IsAtBottom {
		t.Fatalf("expected ViewportOffset=3, IsAtBottom=false, got %+v", scroll)
	}

	e.SetViewportOffset(0)
	scroll = e.GetDirtyUpdate().Scroll
	if scroll.ViewportOffset != 0 || !scroll.IsAtBottom {
		t.Fatalf("expected ViewportOffset=0, IsAtBottom=true, got %+v", scroll)
	}
}

// TestCursorVisibilityAndStyleTracking covers DECTCEM (mode 25) and
// DECSCUSR, both listed in spec §3's Cursor fields but previously
// hardcoded/dropped.
func TestCursorVisibilityAndStyleTracking(t *testing.T) {
	e := newTestEmulator(t, 5, 20)
	if !e.GetCursor().Visible {
		t.Fatal("expected cursor visible by default")
	}

	e.Write([]byte("\x1b[?25l"))
	if e.GetCursor().Visible {
		t.Fatal("expected DECTCEM hide (CSI ?25l) to clear Visible")
	}
	e.Write([]byte("\x1b[?25h"))
	if !e.GetCursor().Visible {
		t.Fatal("expected DECTCEM show (CSI ?25h) to set Visible")
	}

	e.Write([]byte("\x1b[4 q"))
	if got := e.GetCursor().Style; got != CursorUnderline {
		t.Fatalf("expected DECSCUSR Ps=4 to select CursorUnderline, got %v", got)
	}
	e.Write([]byte("\x1b[6 q"))
	if got := e.GetCursor().Style; got != CursorBar {
		t.Fatalf("expected DECSCUSR Ps=6 to select CursorBar, got %v", got)
	}
}

// TestSearchIsCaseInsensitive covers spec §4.C's case-insensitive
// substring search and property 9's toLower-based equivalence.
func TestSearchIsCaseInsensitive(t *testing.T) {
	e := newTestEmulator(t, 3, 20)
	e.Write([]byte("NEEDLE-in-row0"))
	res := e.Search("needle", -1)
	if len(res.Matches) != 1 {
		t.Fatalf("expected 1 case-insensitive match, got %d", len(res.Matches))
	}
}

// TestSearchReturnsOverlappingMatches covers spec §4.C's "overlapping
// matches are returned (advance by 1)" rule.
func TestSearchReturnsOverlappingMatches(t *testing.T) {
	e := newTestEmulator(t, 3, 20)
	e.Write([]byte("aaa"))
	res := e.Search("aa", -1)
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 overlapping matches in \"aaa\", got %d: %+v", len(res.Matches), res.Matches)
	}
	if res.Matches[0].StartCol != 0 || res.Matches[1].StartCol != 1 {
		t.Fatalf("expected matches at col 0 and 1, got %+v", res.Matches)
	}
}

func TestDisposeRejectsFurtherWrites(t *testing.T) {
	e := newTestEmulator(t, 3, 10)
	e.Dispose()
	if err := e.Write([]byte("x")); err != ErrDisposed {
		t.Fatalf("Write after Dispose: got %v, want ErrDisposed", err)
	}
}
