// Package term holds the terminal data model shared by the emulator, the
// cell codec and the scrollback store: cells, rows, cursor/mode state and
// the dirty-update envelope (spec §3, §4.A-C).
package term

// CellFlags is a bitmask of per-cell rendering attributes.
type CellFlags uint8

const (
	FlagBold CellFlags = 1 << iota
	FlagItalic
	FlagUnderline
	FlagStrikethrough
	FlagInverse
	FlagBlink
	FlagDim
)

// CellWidth classifies how many viewport columns a cell occupies.
type CellWidth uint8

const (
	// WidthNormal cells occupy exactly one column.
	WidthNormal CellWidth = iota
	// WidthWide cells occupy this column and the following placeholder column.
	WidthWide
	// WidthPlaceholder cells are the implicit second column of a WidthWide cell;
	// their Char is never rendered independently.
	WidthPlaceholder
)

// Cell is a single terminal grid position (spec §3 Cell).
type Cell struct {
	Char       rune
	FG         RGB
	BG         RGB
	Flags      CellFlags
	Width      CellWidth
	HyperlinkID uint32 // 0 means "no link"
}

// RGB is a packed 24-bit color.
type RGB struct {
	R, G, B uint8
}

// Blank returns the default cell: a space on the terminal's default colors.
func Blank() Cell {
	return Cell{Char: ' '}
}

// Row is an ordered sequence of Cells plus a monotone version counter
// (spec §3 Row). Consumers may skip re-diffing a row whose Version is
// unchanged from the last observation.
type Row struct {
	Cells   []Cell
	Version uint64
}

// CloneRow returns a new Row with a copied Cells slice (same Version).
func CloneRow(r Row) Row {
	cells := make([]Cell, len(r.Cells))
	copy(cells, r.Cells)
	return Row{Cells: cells, Version: r.Version}
}

// CursorStyle selects how the cursor is rendered by the (out of scope) TUI.
type CursorStyle int

const (
	CursorBlock CursorStyle = iota
	CursorUnderline
	CursorBar
)

// CursorKeyMode selects the encoding of arrow-key sequences sent to the child.
type CursorKeyMode int

const (
	CursorKeysNormal CursorKeyMode = iota
	CursorKeysApplication
)

// Cursor is the emulator's cursor state (spec §3 TerminalState.cursor).
type Cursor struct {
	X, Y    int
	Visible bool
	Style   CursorStyle
}

// KittyFlags is the kitty keyboard protocol's progressive-enhancement bitset.
type KittyFlags uint8

const (
	KittyDisambiguateEscape KittyFlags = 1 << iota
	KittyReportEventTypes
	KittyReportAlternateKeys
	KittyReportAllAsEscape
	KittyReportText
)

// Modes bundles the boolean/enum mode flags carried on every TerminalState
// and DirtyUpdate (spec §3).
type Modes struct {
	AlternateScreen  bool
	MouseTracking    bool
	CursorKeyMode    CursorKeyMode
	InBandResize     bool
	KittyKeyboard    KittyFlags
	FocusReporting   bool
	BracketedPaste   bool
}

// TerminalState is a full snapshot of one PTY's emulator at an instant
// (spec §3 TerminalState).
type TerminalState struct {
	Rows, Cols int
	Grid       []Row
	Cursor     Cursor
	Modes      Modes
	Title      string
}

// ScrollState describes the viewport's position within scrollback
// (spec §3 ScrollState). Invariants: ViewportOffset in [0, ScrollbackLength];
// ViewportOffset==0 implies IsAtBottom; a full hot ring implies
// IsAtScrollbackLimit.
type ScrollState struct {
	ViewportOffset     int
	ScrollbackLength    int
	IsAtBottom          bool
	IsAtScrollbackLimit bool
}

// DirtyUpdate is an incremental (or full) delta against a previous
// TerminalState (spec §3 DirtyUpdate).
type DirtyUpdate struct {
	IsFull     bool
	FullState  *TerminalState // set iff IsFull
	DirtyRows  map[int]Row    // row index -> new Row, set iff !IsFull
	Cursor     Cursor
	Modes      Modes
	Title      string
	Scroll     ScrollState
}

// Match describes one hit from Emulator.Search (spec §4.C search).
type Match struct {
	LineIndex      int // < scrollbackLength denotes scrollback, else live = LineIndex-scrollbackLength
	StartCol       int
	EndCol         int
}

// SearchResult is the return value of Emulator.Search.
type SearchResult struct {
	Matches []Match
	HasMore bool
}

// Selection is a rectangular text span used by ExtractText, over absolute
// coordinates spanning archived scrollback and the live viewport.
type Selection struct {
	StartX, StartY int
	EndX, EndY     int
}
