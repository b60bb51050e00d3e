package cellcodec

import (
	"testing"

	"github.com/openmux/openmux/internal/term"
)

func sampleRow(cols int) []term.Cell {
	cells := make([]term.Cell, cols)
	for i := range cells {
		cells[i] = term.Cell{
			Char:  rune('a' + i%26),
			FG:    term.RGB{R: uint8(i), G: 10, B: 200},
			BG:    term.RGB{R: 1, G: 2, B: 3},
			Flags: term.FlagBold | term.FlagUnderline,
		}
	}
	if cols > 1 {
		cells[0].Width = term.WidthWide
		cells[1] = term.Cell{Width: term.WidthPlaceholder}
	}
	return cells
}

func TestPackUnpackRowRoundTrip(t *testing.T) {
	for _, cols := range []int{0, 1, 5, 80} {
		cells := sampleRow(cols)
		packed := PackRow(cells)
		got, err := UnpackRow(packed, cols)
		if err != nil {
			t.Fatalf("cols=%d: unexpected error: %v", cols, err)
		}
		if len(got) != len(cells) {
			t.Fatalf("cols=%d: got %d cells, want %d", cols, len(got), len(cells))
		}
		for i := range cells {
			if got[i] != cells[i] {
				t.Fatalf("cols=%d cell %d: got %+v, want %+v", cols, i, got[i], cells[i])
			}
		}
	}
}

func TestUnpackRowBadLength(t *testing.T) {
	_, err := UnpackRow([]byte{1, 2, 3}, 1)
	if err == nil {
		t.Fatal("expected BadLength error")
	}
	var bl *BadLength
	if !asBadLength(err, &bl) {
		t.Fatalf("expected *BadLength, got %T", err)
	}

	packed := PackRow(sampleRow(3))
	if _, err := UnpackRow(packed, 4); err == nil {
		t.Fatal("expected BadLength error for mismatched cols")
	}
}

func asBadLength(err error, out **BadLength) bool {
	bl, ok := err.(*BadLength)
	if ok {
		*out = bl
	}
	return ok
}

func TestHyperlinkZeroMeansNoLink(t *testing.T) {
	cells := []term.Cell{{Char: 'x', HyperlinkID: 0}, {Char: 'y', HyperlinkID: 42}}
	got, err := UnpackRow(PackRow(cells), 2)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].HyperlinkID != 0 || got[1].HyperlinkID != 42 {
		t.Fatalf("hyperlink ids not preserved: %+v", got)
	}
}

func TestPackDirtyUpdateRoundTripDelta(t *testing.T) {
	u := term.DirtyUpdate{
		IsFull: false,
		DirtyRows: map[int]term.Row{
			0: {Cells: sampleRow(4), Version: 3},
			2: {Cells: sampleRow(4), Version: 9},
		},
		Cursor: term.Cursor{X: 1, Y: 2, Visible: true},
		Modes:  term.Modes{AlternateScreen: true},
		Title:  "hi",
		Scroll: term.ScrollState{IsAtBottom: true},
	}
	packed := PackDirtyUpdate(u)
	got, err := UnpackDirtyUpdate(packed)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsFull || got.Title != "hi" || got.Cursor != u.Cursor {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if len(got.DirtyRows) != 2 {
		t.Fatalf("expected 2 dirty rows, got %d", len(got.DirtyRows))
	}
	for idx, row := range u.DirtyRows {
		gotRow, ok := got.DirtyRows[idx]
		if !ok {
			t.Fatalf("missing row %d", idx)
		}
		for i := range row.Cells {
			if gotRow.Cells[i] != row.Cells[i] {
				t.Fatalf("row %d cell %d mismatch", idx, i)
			}
		}
	}
}

func TestPackDirtyUpdateRoundTripFull(t *testing.T) {
	u := term.DirtyUpdate{
		IsFull: true,
		FullState: &term.TerminalState{
			Rows: 2, Cols: 3,
			Grid: []term.Row{
				{Cells: sampleRow(3)},
				{Cells: sampleRow(3)},
			},
		},
	}
	packed := PackDirtyUpdate(u)
	got, err := UnpackDirtyUpdate(packed)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsFull || got.FullState == nil {
		t.Fatal("expected full state")
	}
	if len(got.FullState.Grid) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got.FullState.Grid))
	}
}

func TestEmptyRowProducesEmptyBlob(t *testing.T) {
	if b := PackRow(nil); len(b) != 0 {
		t.Fatalf("expected zero-length blob, got %d bytes", len(b))
	}
	cells, err := UnpackRow(nil, 0)
	if err != nil || len(cells) != 0 {
		t.Fatalf("expected empty cells, got %v, %v", cells, err)
	}
}
