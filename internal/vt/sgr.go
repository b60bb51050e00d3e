package vt

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
)

// attrState is the SGR (Select Graphic Rendition) state accumulated while
// walking a row's format regions or a rendered display line.
type attrState struct {
	fg, bg RGB
	flags  CellFlags
}

// applySGR mutates st according to a sequence of SGR parameters, following
// the same semantics a real terminal applies to CSI ... m.
func applySGR(params []int, st *attrState) {
	if len(params) == 0 {
		params = []int{0}
	}
	for i := 0; i < len(params); i++ {
		p := params[i]
		switch {
		case p == 0:
			*st = attrState{}
		case p == 1:
			st.flags |= FlagBold
		case p == 2:
			st.flags |= FlagDim
		case p == 3:
			st.flags |= FlagItalic
		case p == 4:
			st.flags |= FlagUnderline
		case p == 5:
			st.flags |= FlagBlink
		case p == 7:
			st.flags |= FlagInverse
		case p == 9:
			st.flags |= FlagStrikethrough
		case p == 22:
			st.flags &^= FlagBold | FlagDim
		case p == 23:
			st.flags &^= FlagItalic
		case p == 24:
			st.flags &^= FlagUnderline
		case p == 25:
			st.flags &^= FlagBlink
		case p == 27:
			st.flags &^= FlagInverse
		case p == 29:
			st.flags &^= FlagStrikethrough
		case p >= 30 && p <= 37:
			st.fg = ansi16RGB(p - 30)
		case p == 38:
			adv := applyExtendedColor(params[i+1:], &st.fg)
			i += adv
		case p == 39:
			st.fg = RGB{}
		case p >= 40 && p <= 47:
			st.bg = ansi16RGB(p - 40)
		case p == 48:
			adv := applyExtendedColor(params[i+1:], &st.bg)
			i += adv
		case p == 49:
			st.bg = RGB{}
		case p >= 90 && p <= 97:
			st.fg = ansi16RGB(p - 90 + 8)
		case p >= 100 && p <= 107:
			st.bg = ansi16RGB(p - 100 + 8)
		}
	}
}

// applyExtendedColor parses the "5;N" (256-color) or "2;R;G;B" (direct RGB)
// forms that follow an SGR 38/48 parameter, writing the result into out and
// returning how many extra parameters were consumed.
func applyExtendedColor(rest []int, out *RGB) int {
	if len(rest) == 0 {
		return 0
	}
	switch rest[0] {
	case 5:
		if len(rest) >= 2 {
			*out = ansi256RGB(rest[1])
			return 2
		}
	case 2:
		if len(rest) >= 4 {
			*out = RGB{R: clampByte(rest[1]), G: clampByte(rest[2]), B: clampByte(rest[3])}
			return 4
		}
	}
	return 0
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// ansi16RGB and ansi256RGB resolve terminal palette indices to 24-bit color
// via termenv's color conversion (in turn backed by go-colorful).
func ansi16RGB(idx int) RGB {
	return rgbFromTermenv(termenv.ANSIColor(idx))
}

func ansi256RGB(idx int) RGB {
	return rgbFromTermenv(termenv.ANSI256Color(idx))
}

func rgbFromTermenv(c termenv.Color) RGB {
	col := termenv.ConvertToRGB(c)
	r, g, b := col.RGB255()
	return RGB{R: r, G: g, B: b}
}

// splitParams parses a semicolon-separated CSI parameter string, treating
// empty fields as 0 (matching how real terminals treat omitted params).
func splitParams(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			n = 0
		}
		out[i] = n
	}
	return out
}

// parseSGRParams extracts the numeric parameters from a rendered SGR escape
// such as "\x1b[1;31m", as returned by midterm's Format.Render().
func parseSGRParams(ansi string) []int {
	s := strings.TrimPrefix(ansi, "\x1b[")
	s = strings.TrimSuffix(s, "m")
	return splitParams(s)
}

func isCSIFinal(b byte) bool {
	return b >= 0x40 && b <= 0x7e
}

// cellsFromDisplayLine decodes a fully rendered line (interleaved SGR
// escapes and literal text, as returned by midterm's Line.Display()) into
// our Cell representation. Used only for scrolled-off lines, where exact
// per-region fidelity matters less than for the live viewport.
func cellsFromDisplayLine(s string) []Cell {
	var st attrState
	var cells []Cell
	data := []byte(s)
	for i := 0; i < len(data); {
		if data[i] == 0x1b && i+1 < len(data) && data[i+1] == '[' {
			j := i + 2
			for j < len(data) && !isCSIFinal(data[j]) {
				j++
			}
			if j >= len(data) {
				break
			}
			if data[j] == 'm' {
				applySGR(splitParams(string(data[i+2:j])), &st)
			}
			i = j + 1
			continue
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		i += size
		c := Cell{Char: r, FG: st.fg, BG: st.bg, Flags: st.flags}
		if runewidth.RuneWidth(r) >= 2 {
			c.Width = WidthWide
			cells = append(cells, c, Cell{Width: WidthPlaceholder})
			continue
		}
		cells = append(cells, c)
	}
	return cells
}
