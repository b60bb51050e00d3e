// Package cellcodec packs Cell rows and DirtyUpdates into compact binary
// buffers suitable for transfer across the emulator worker pool's
// worker→main boundary (spec §4.A).
package cellcodec

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/openmux/openmux/internal/term"
)

// cellStride is the fixed per-cell encoding size in bytes: a 4-byte rune
// scalar, a 3-byte foreground RGB triple, a 3-byte background RGB triple,
// a 1-byte attribute bitfield, a 1-byte width/metadata byte, and a 4-byte
// hyperlink id (0 meaning "no link").
const cellStride = 4 + 3 + 3 + 1 + 1 + 4

// BadLength is returned by UnpackRow when the input is not a whole multiple
// of the per-cell stride, or decodes to a different cell count than cols.
// Got/Want are byte lengths in the first case and cell counts in the second.
type BadLength struct {
	Got, Want int
}

func (e *BadLength) Error() string {
	return fmt.Sprintf("cellcodec: bad length: got %d, want %d", e.Got, e.Want)
}

// widthSentinel marks a placeholder cell (the implicit second column of a
// wide glyph) in the width byte.
const widthSentinel = 0xFF

// PackRow encodes a row's cells into a fixed-stride byte buffer.
// Zero-length input (permitted for empty scrollback queries) yields a
// zero-length buffer.
func PackRow(cells []term.Cell) []byte {
	buf := make([]byte, len(cells)*cellStride)
	for i, c := range cells {
		off := i * cellStride
		binary.BigEndian.PutUint32(buf[off:], uint32(c.Char))
		buf[off+4] = c.FG.R
		buf[off+5] = c.FG.G
		buf[off+6] = c.FG.B
		buf[off+7] = c.BG.R
		buf[off+8] = c.BG.G
		buf[off+9] = c.BG.B
		buf[off+10] = byte(c.Flags)
		if c.Width == term.WidthPlaceholder {
			buf[off+11] = widthSentinel
		} else {
			buf[off+11] = byte(c.Width)
		}
		binary.BigEndian.PutUint32(buf[off+12:], c.HyperlinkID)
	}
	return buf
}

// UnpackRow decodes a fixed-stride buffer back into cells. It fails with
// *BadLength if the buffer length is not a multiple of the cell stride, or
// if the decoded cell count does not equal cols.
func UnpackRow(data []byte, cols int) ([]term.Cell, error) {
	if len(data)%cellStride != 0 {
		return nil, &BadLength{Got: len(data), Want: cols * cellStride}
	}
	n := len(data) / cellStride
	if n != cols {
		return nil, &BadLength{Got: n, Want: cols}
	}
	cells := make([]term.Cell, n)
	for i := range cells {
		off := i * cellStride
		widthByte := data[off+11]
		width := term.WidthNormal
		switch {
		case widthByte == widthSentinel:
			width = term.WidthPlaceholder
		case widthByte == byte(term.WidthWide):
			width = term.WidthWide
		}
		cells[i] = term.Cell{
			Char: rune(binary.BigEndian.Uint32(data[off:])),
			FG:   term.RGB{R: data[off+4], G: data[off+5], B: data[off+6]},
			BG:   term.RGB{R: data[off+7], G: data[off+8], B: data[off+9]},
			Flags: term.CellFlags(data[off+10]),
			Width: width,
			HyperlinkID: binary.BigEndian.Uint32(data[off+12:]),
		}
	}
	return cells, nil
}

// PackedDirtyUpdate is the wire form of a term.DirtyUpdate: row indices and
// their packed blobs concatenated, plus cursor/mode/title metadata and an
// optional full-state blob.
type PackedDirtyUpdate struct {
	IsFull        bool
	Indices       []uint16
	RowBlob       []byte // len(Indices) rows of cellStride*cols bytes, back to back
	Cols          int
	Cursor        term.Cursor
	Modes         term.Modes
	Title         string
	Scroll        term.ScrollState
	FullRows      [][]byte // set iff IsFull: one packed row per grid row
	FullRowsCount int
}

// PackDirtyUpdate converts an in-memory DirtyUpdate into its wire form.
func PackDirtyUpdate(u term.DirtyUpdate) PackedDirtyUpdate {
	p := PackedDirtyUpdate{
		IsFull: u.IsFull,
		Cursor: u.Cursor,
		Modes:  u.Modes,
		Title:  u.Title,
		Scroll: u.Scroll,
	}
	if u.IsFull {
		p.Cols = u.FullState.Cols
		p.FullRows = make([][]byte, len(u.FullState.Grid))
		for i, row := range u.FullState.Grid {
			p.FullRows[i] = PackRow(row.Cells)
		}
		p.FullRowsCount = len(u.FullState.Grid)
		return p
	}
	indices := make([]int, 0, len(u.DirtyRows))
	for idx := range u.DirtyRows {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	var blob []byte
	p.Indices = make([]uint16, len(indices))
	for i, idx := range indices {
		p.Indices[i] = uint16(idx)
		row := u.DirtyRows[idx]
		if p.Cols == 0 {
			p.Cols = len(row.Cells)
		}
		blob = append(blob, PackRow(row.Cells)...)
	}
	p.RowBlob = blob
	return p
}

// UnpackDirtyUpdate reverses PackDirtyUpdate.
func UnpackDirtyUpdate(p PackedDirtyUpdate) (term.DirtyUpdate, error) {
	u := term.DirtyUpdate{
		IsFull: p.IsFull,
		Cursor: p.Cursor,
		Modes:  p.Modes,
		Title:  p.Title,
		Scroll: p.Scroll,
	}
	if p.IsFull {
		grid := make([]term.Row, len(p.FullRows))
		for i, blob := range p.FullRows {
			cells, err := UnpackRow(blob, p.Cols)
			if err != nil {
				return term.DirtyUpdate{}, err
			}
			grid[i] = term.Row{Cells: cells}
		}
		u.FullState = &term.TerminalState{
			Rows:   len(grid),
			Cols:   p.Cols,
			Grid:   grid,
			Cursor: p.Cursor,
			Modes:  p.Modes,
			Title:  p.Title,
		}
		return u, nil
	}
	u.DirtyRows = make(map[int]term.Row, len(p.Indices))
	stride := p.Cols * cellStride
	for i, idx := range p.Indices {
		if stride == 0 {
			u.DirtyRows[int(idx)] = term.Row{}
			continue
		}
		start := i * stride
		end := start + stride
		if end > len(p.RowBlob) {
			return term.DirtyUpdate{}, fmt.Errorf("cellcodec: row blob truncated at index %d", idx)
		}
		cells, err := UnpackRow(p.RowBlob[start:end], p.Cols)
		if err != nil {
			return term.DirtyUpdate{}, err
		}
		u.DirtyRows[int(idx)] = term.Row{Cells: cells}
	}
	return u, nil
}
