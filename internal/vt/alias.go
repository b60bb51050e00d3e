// Package vt implements the per-PTY terminal emulator: grid, cursor, modes,
// scrollback, OSC title and kitty-graphics state (spec §4.C). Its data
// model lives in internal/term so that internal/scrollback and
// internal/cellcodec can depend on the types without importing the
// emulator itself; the aliases below let the rest of this package refer to
// them unqualified.
package vt

import "github.com/openmux/openmux/internal/term"

type (
	Cell          = term.Cell
	CellFlags     = term.CellFlags
	CellWidth     = term.CellWidth
	RGB           = term.RGB
	Row           = term.Row
	CursorStyle   = term.CursorStyle
	CursorKeyMode = term.CursorKeyMode
	Cursor        = term.Cursor
	KittyFlags    = term.KittyFlags
	Modes         = term.Modes
	TerminalState = term.TerminalState
	ScrollState   = term.ScrollState
	DirtyUpdate   = term.DirtyUpdate
	Match         = term.Match
	SearchResult  = term.SearchResult
	Selection     = term.Selection
)

const (
	FlagBold          = term.FlagBold
	FlagItalic        = term.FlagItalic
	FlagUnderline     = term.FlagUnderline
	FlagStrikethrough = term.FlagStrikethrough
	FlagInverse       = term.FlagInverse
	FlagBlink         = term.FlagBlink
	FlagDim           = term.FlagDim

	WidthNormal      = term.WidthNormal
	WidthWide        = term.WidthWide
	WidthPlaceholder = term.WidthPlaceholder

	CursorBlock     = term.CursorBlock
	CursorUnderline = term.CursorUnderline
	CursorBar       = term.CursorBar

	CursorKeysNormal      = term.CursorKeysNormal
	CursorKeysApplication = term.CursorKeysApplication

	KittyDisambiguateEscape  = term.KittyDisambiguateEscape
	KittyReportEventTypes    = term.KittyReportEventTypes
	KittyReportAlternateKeys = term.KittyReportAlternateKeys
	KittyReportAllAsEscape   = term.KittyReportAllAsEscape
	KittyReportText          = term.KittyReportText
)

// Blank returns the default cell: a space on the terminal's default colors.
func Blank() Cell { return term.Blank() }

// CloneRow returns a new Row with a copied Cells slice (same Version).
func CloneRow(r Row) Row { return term.CloneRow(r) }
