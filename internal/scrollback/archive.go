package scrollback

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openmux/openmux/internal/cellcodec"
	"github.com/openmux/openmux/internal/term"
)

// chunkMeta describes one on-disk chunk file: the absolute index of its
// first line and how many lines it holds.
type chunkMeta struct {
	seq        int
	startIndex int
	count      int
	path       string
	bytes      int64
}

// writeChunk serializes rows to a new chunk file under dir, returning its
// metadata. Each entry is a uint16 column count followed by a uint32 byte
// length and the packed row bytes, so that rows retaining a width that
// differs from the current grid (spec §4.B: "hot ring row widths are NOT
// re-wrapped on resize") still round-trip.
func writeChunk(dir string, seq, startIndex int, rows []term.Row) (chunkMeta, error) {
	path := filepath.Join(dir, fmt.Sprintf("%d.chunk", seq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return chunkMeta{}, err
	}
	defer f.Close()

	var written int64
	hdr := make([]byte, 6)
	for _, row := range rows {
		packed := cellcodec.PackRow(row.Cells)
		binary.BigEndian.PutUint16(hdr[0:2], uint16(len(row.Cells)))
		binary.BigEndian.PutUint32(hdr[2:6], uint32(len(packed)))
		n, err := f.Write(hdr)
		if err != nil {
			return chunkMeta{}, err
		}
		written += int64(n)
		n, err = f.Write(packed)
		if err != nil {
			return chunkMeta{}, err
		}
		written += int64(n)
	}
	if err := f.Sync(); err != nil {
		return chunkMeta{}, err
	}
	return chunkMeta{seq: seq, startIndex: startIndex, count: len(rows), path: path, bytes: written}, nil
}

// readChunk reads every row out of a chunk file in order.
func readChunk(path string) ([]term.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []term.Row
	for off := 0; off < len(data); {
		if off+6 > len(data) {
			return nil, fmt.Errorf("scrollback: truncated chunk header in %s", path)
		}
		cols := int(binary.BigEndian.Uint16(data[off : off+2]))
		blen := int(binary.BigEndian.Uint32(data[off+2 : off+6]))
		off += 6
		if off+blen > len(data) {
			return nil, fmt.Errorf("scrollback: truncated chunk body in %s", path)
		}
		cells, err := cellcodec.UnpackRow(data[off:off+blen], cols)
		if err != nil {
			return nil, err
		}
		rows = append(rows, term.Row{Cells: cells})
		off += blen
	}
	return rows, nil
}

// readChunkLine reads a single row (by its position within the chunk)
// without materializing the whole chunk into memory twice; simple chunks
// are small (<= CHUNK_LINES) so a full decode is cheap enough in practice,
// but we still only return the one row the caller asked for.
func readChunkLine(path string, posInChunk int) (term.Row, error) {
	rows, err := readChunk(path)
	if err != nil {
		return term.Row{}, err
	}
	if posInChunk < 0 || posInChunk >= len(rows) {
		return term.Row{}, fmt.Errorf("scrollback: position %d out of range in %s", posInChunk, path)
	}
	return rows[posInChunk], nil
}
