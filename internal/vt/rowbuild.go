package vt

import (
	"github.com/mattn/go-runewidth"
	"github.com/vito/midterm"
)

// buildLiveRow renders one row of a midterm.Terminal's current screen into
// our Cell representation, walking the row's format regions (as
// internal/session/client/render.go's RenderLineFrom does) rather than a
// single rendered string, so SGR attributes never bleed across regions.
func buildLiveRow(term *midterm.Terminal, row int) Row {
	if row < 0 || row >= len(term.Content) {
		return Row{}
	}
	line := term.Content[row]
	cells := make([]Cell, 0, len(line))
	pos := 0
	skipNext := false
	for region := range term.Format.Regions(row) {
		var st attrState
		applySGR(parseSGRParams(region.F.Render()), &st)
		for col := pos; col < pos+region.Size; col++ {
			if skipNext {
				cells = append(cells, Cell{Width: WidthPlaceholder})
				skipNext = false
				continue
			}
			r := ' '
			if col < len(line) {
				r = line[col]
			}
			c := Cell{Char: r, FG: st.fg, BG: st.bg, Flags: st.flags}
			if runewidth.RuneWidth(r) >= 2 {
				c.Width = WidthWide
				skipNext = true
			}
			cells = append(cells, c)
		}
		pos += region.Size
	}
	return Row{Cells: cells}
}

// rowsEqual compares two rows by content only (ignoring Version), used to
// decide whether a row needs its version bumped and to be marked dirty.
func rowsEqual(a, b Row) bool {
	if len(a.Cells) != len(b.Cells) {
		return false
	}
	for i := range a.Cells {
		if a.Cells[i] != b.Cells[i] {
			return false
		}
	}
	return true
}
