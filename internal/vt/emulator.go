package vt

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vito/midterm"

	"github.com/openmux/openmux/internal/scrollback"
)

// State is the Emulator's lifecycle state (spec §4.C: Fresh -> Running <->
// Resizing -> Running -> Disposed).
type State int

const (
	StateFresh State = iota
	StateRunning
	StateResizing
	StateDisposed
)

// ErrDisposed is returned by any Emulator operation after Dispose has run.
var ErrDisposed = errors.New("vt: emulator disposed")

// Emulator owns one PTY's terminal grid: a midterm.Terminal for CSI/SGR
// parsing and line wrapping, a raw-byte mode scanner for state midterm does
// not surface (DEC private modes, kitty keyboard flags, OSC title/
// hyperlinks, kitty graphics), and a scrollback.Store for lines that scroll
// off the top (spec §4.B, §4.C).
type Emulator struct {
	mu sync.Mutex

	state State
	term  *midterm.Terminal

	scroll *scrollback.Store

	rows, cols int

	modes Modes
	title string

	scan modeTracker

	kittyStack      []KittyFlags
	hyperlinkNext   uint32
	hyperlinkIDs    map[string]uint32
	activeHyperlink uint32

	lastRows []Row
	dirty    map[int]bool
	needFull bool

	cursorVisible  bool
	cursorStyle    CursorStyle
	viewportOffset int

	updateEnabled bool

	onTitle  func(string)
	onUpdate func()
	onMode   func(Modes)
}

// NewEmulator creates a Fresh->Running Emulator backed by midterm and, if
// store is non-nil, wired to that PTY's scrollback.Store: lines midterm
// scrolls off the top are captured via OnScrollback and archived there.
func NewEmulator(rows, cols int, store *scrollback.Store) *Emulator {
	term := midterm.NewTerminal(rows, cols)
	e := &Emulator{
		state:         StateRunning,
		term:          term,
		scroll:        store,
		rows:          rows,
		cols:          cols,
		lastRows:      make([]Row, rows),
		dirty:         make(map[int]bool),
		needFull:      true,
		cursorVisible: true,
		updateEnabled: true,
		hyperlinkIDs:  make(map[string]uint32),
	}
	term.OnScrollback(func(line midterm.Line) {
		e.captureScrolledLine(line)
	})
	return e
}

func (e *Emulator) captureScrolledLine(line midterm.Line) {
	if e.scroll == nil {
		return
	}
	cells := cellsFromDisplayLine(line.Display())
	e.scroll.Append([]Row{{Cells: cells}})
}

// Write feeds child-process output through the emulator: the mode scanner
// observes it first, then midterm.Terminal parses it into the grid, then
// the live rows are re-diffed against the last snapshot.
func (e *Emulator) Write(data []byte) error {
	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	e.scanModes(data)
	e.term.Write(data)
	e.recomputeDirtyLocked()
	cb := e.onUpdate
	enabled := e.updateEnabled
	e.mu.Unlock()
	if enabled && cb != nil {
		cb()
	}
	return nil
}

func (e *Emulator) recomputeDirtyLocked() {
	for row := 0; row < e.rows; row++ {
		fresh := buildLiveRow(e.term, row)
		if row < len(e.lastRows) && rowsEqual(fresh, e.lastRows[row]) {
			continue
		}
		fresh.Version = e.lastRows[row].Version + 1
		e.lastRows[row] = fresh
		e.dirty[row] = true
	}
}

// Resize changes the grid dimensions (spec §4.C: Running -> Resizing ->
// Running). The next GetDirtyUpdate returns a full snapshot.
func (e *Emulator) Resize(rows, cols int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateDisposed {
		return ErrDisposed
	}
	e.state = StateResizing
	e.term.Resize(rows, cols)
	e.rows, e.cols = rows, cols
	e.lastRows = make([]Row, rows)
	e.dirty = make(map[int]bool)
	e.needFull = true
	e.state = StateRunning
	return nil
}

// Reset clears the grid back to a blank screen at the current size,
// preserving mode/title/kitty state the child has not reset itself.
func (e *Emulator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.term = midterm.NewTerminal(e.rows, e.cols)
	e.term.OnScrollback(func(line midterm.Line) {
		e.captureScrolledLine(line)
	})
	e.lastRows = make([]Row, e.rows)
	e.dirty = make(map[int]bool)
	e.needFull = true
}

// Dispose releases the emulator; all further operations return ErrDisposed.
func (e *Emulator) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateDisposed
}

// GetDirtyUpdate returns the incremental (or, after a resize/reset/mode
// change, full) update since the last call, and clears the pending dirty
// set (spec §3 DirtyUpdate, §4.C).
func (e *Emulator) GetDirtyUpdate() DirtyUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()

	scrollState := e.scrollStateLocked()
	if e.needFull {
		e.needFull = false
		e.dirty = make(map[int]bool)
		grid := make([]Row, len(e.lastRows))
		copy(grid, e.lastRows)
		return DirtyUpdate{
			IsFull: true,
			FullState: &TerminalState{
				Rows: e.rows, Cols: e.cols,
				Grid:   grid,
				Cursor: e.cursorLocked(),
				Modes:  e.modes,
				Title:  e.title,
			},
			Cursor: e.cursorLocked(),
			Modes:  e.modes,
			Title:  e.title,
			Scroll: scrollState,
		}
	}
	rows := make(map[int]Row, len(e.dirty))
	for idx := range e.dirty {
		rows[idx] = e.lastRows[idx]
	}
	e.dirty = make(map[int]bool)
	return DirtyUpdate{
		DirtyRows: rows,
		Cursor:    e.cursorLocked(),
		Modes:     e.modes,
		Title:     e.title,
		Scroll:    scrollState,
	}
}

func (e *Emulator) cursorLocked() Cursor {
	return Cursor{
		X: e.term.Cursor.X, Y: e.term.Cursor.Y,
		Visible: e.cursorVisible,
		Style:   e.cursorStyle,
	}
}

// scrollStateLocked reports the viewport's position within scrollback
// (spec §3 ScrollState). IsAtScrollbackLimit tracks whether the hot ring
// has ever overflowed into the archive, per spec §3's "a full hot ring
// implies isAtScrollbackLimit" invariant, not whether the archive itself
// has been disabled by a disk failure (a ScrollState is about pruning
// pressure on the live ring, not storage health).
func (e *Emulator) scrollStateLocked() ScrollState {
	length := 0
	ringFull := false
	if e.scroll != nil {
		length = e.scroll.GetLength()
		ringFull = e.scroll.HotRingFull()
	}
	offset := e.viewportOffset
	if offset > length {
		offset = length
	}
	if offset < 0 {
		offset = 0
	}
	return ScrollState{
		ViewportOffset:      offset,
		ScrollbackLength:    length,
		IsAtBottom:          offset == 0,
		IsAtScrollbackLimit: ringFull,
	}
}

// SetViewportOffset moves the viewport within scrollback (0 = live
// bottom, following new output); the next scroll-state read clamps it to
// [0, scrollback length]. Used by the PTY service's scroll-offset control
// (spec §4.E).
func (e *Emulator) SetViewportOffset(offset int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	e.viewportOffset = offset
}

// GetScrollbackLine returns one archived line by absolute index.
func (e *Emulator) GetScrollbackLine(index int) (Row, bool) {
	if e.scroll == nil {
		return Row{}, false
	}
	return e.scroll.GetLine(index)
}

// GetScrollbackLength returns the count of archived lines.
func (e *Emulator) GetScrollbackLength() int {
	if e.scroll == nil {
		return 0
	}
	return e.scroll.GetLength()
}

// GetCursor returns the current cursor position and visibility.
func (e *Emulator) GetCursor() Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursorLocked()
}

// GetCursorKeyMode reports whether arrow keys should be encoded in normal
// or application mode (DECCKM).
func (e *Emulator) GetCursorKeyMode() CursorKeyMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modes.CursorKeyMode
}

// IsMouseTrackingEnabled reports whether the child has requested mouse
// reporting (any of SGR/UTF-8/normal tracking modes).
func (e *Emulator) IsMouseTrackingEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modes.MouseTracking
}

// IsAlternateScreen reports whether the child is currently using the
// alternate screen buffer (DECSET 47/1047/1049).
func (e *Emulator) IsAlternateScreen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modes.AlternateScreen
}

// GetMode returns a snapshot of all tracked modes.
func (e *Emulator) GetMode() Modes {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modes
}

// GetKittyKeyboardFlags returns the top of the kitty keyboard protocol's
// flag stack, or 0 if the child never opted in.
func (e *Emulator) GetKittyKeyboardFlags() KittyFlags {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.kittyStack) == 0 {
		return 0
	}
	return e.kittyStack[len(e.kittyStack)-1]
}

// OnTitleChange registers a callback fired whenever OSC 0/1/2 sets a title.
func (e *Emulator) OnTitleChange(f func(string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTitle = f
}

// OnUpdate registers a callback fired after every Write (whether or not it
// changed any row), for callers that want push notification rather than
// polling GetDirtyUpdate.
func (e *Emulator) OnUpdate(f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = f
}

// OnModeChange registers a callback fired whenever a tracked DEC private
// mode changes.
func (e *Emulator) OnModeChange(f func(Modes)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMode = f
}

// SetUpdateEnabled toggles whether OnUpdate fires, so a caller can
// suppress notifications while repainting is paused, e.g. for a pane that
// is not currently visible. The worker pool does not call it.
func (e *Emulator) SetUpdateEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateEnabled = enabled
}

// Search scans the live grid and archived scrollback for pattern,
// returning up to maxMatches hits ordered oldest-to-newest (spec §4.C
// search). A negative maxMatches means unbounded.
func (e *Emulator) Search(pattern string, maxMatches int) SearchResult {
	e.mu.Lock()
	scrollbackLen := 0
	if e.scroll != nil {
		scrollbackLen = e.scroll.GetLength()
	}
	liveRows := make([]Row, len(e.lastRows))
	copy(liveRows, e.lastRows)
	e.mu.Unlock()

	if pattern == "" {
		return SearchResult{}
	}

	needle := strings.ToLower(pattern)
	var matches []Match
	hasMore := false
	addMatch := func(lineIndex int, text string) bool {
		lower := strings.ToLower(text)
		for start := 0; ; {
			idx := strings.Index(lower[start:], needle)
			if idx < 0 {
				break
			}
			col := start + idx
			if maxMatches >= 0 && len(matches) >= maxMatches {
				hasMore = true
				return false
			}
			matches = append(matches, Match{LineIndex: lineIndex, StartCol: col, EndCol: col + len(pattern)})
			start = col + 1
		}
		return true
	}

	if e.scroll != nil {
		for i := 0; i < scrollbackLen; i++ {
			row, ok := e.scroll.GetLine(i)
			if !ok {
				continue
			}
			if !addMatch(i, rowText(row)) {
				return SearchResult{Matches: matches, HasMore: true}
			}
		}
	}
	for i, row := range liveRows {
		if !addMatch(scrollbackLen+i, rowText(row)) {
			return SearchResult{Matches: matches, HasMore: true}
		}
	}
	return SearchResult{Matches: matches, HasMore: hasMore}
}

// ExtractText renders the plain-text content of a rectangular selection
// spanning archived scrollback (LineIndex < scrollbackLength) and the live
// viewport.
func (e *Emulator) ExtractText(sel Selection) string {
	e.mu.Lock()
	scrollbackLen := 0
	if e.scroll != nil {
		scrollbackLen = e.scroll.GetLength()
	}
	liveRows := make([]Row, len(e.lastRows))
	copy(liveRows, e.lastRows)
	e.mu.Unlock()

	var b strings.Builder
	for y := sel.StartY; y <= sel.EndY; y++ {
		var row Row
		if y < scrollbackLen {
			if r, ok := e.scroll.GetLine(y); ok {
				row = r
			}
		} else if idx := y - scrollbackLen; idx >= 0 && idx < len(liveRows) {
			row = liveRows[idx]
		}
		startX, endX := 0, len(row.Cells)
		if y == sel.StartY {
			startX = sel.StartX
		}
		if y == sel.EndY {
			endX = sel.EndX
		}
		if startX < 0 {
			startX = 0
		}
		if endX > len(row.Cells) {
			endX = len(row.Cells)
		}
		for x := startX; x < endX; x++ {
			c := row.Cells[x]
			if c.Width == WidthPlaceholder {
				continue
			}
			if c.Char == 0 {
				b.WriteByte(' ')
			} else {
				b.WriteRune(c.Char)
			}
		}
		if y != sel.EndY {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func rowText(row Row) string {
	var b strings.Builder
	for _, c := range row.Cells {
		if c.Width == WidthPlaceholder {
			continue
		}
		if c.Char == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteRune(c.Char)
		}
	}
	return b.String()
}

// String implements fmt.Stringer for debugging/log output.
func (e *Emulator) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("vt.Emulator{rows=%d cols=%d alt=%v title=%q}", e.rows, e.cols, e.modes.AlternateScreen, e.title)
}
