package vt

import "strings"

// scan states for modeTracker, mirroring the plain-history state machine in
// internal/session/virtualterminal/vt.go's CapturePlainHistory, extended to
// recognize DECSET/DECRST mode changes, the kitty keyboard protocol, OSC
// title/hyperlink sequences, and kitty graphics APC commands.
const (
	scanNormal = iota
	scanEsc
	scanCSI
	scanOSC
	scanOSCEsc
	scanAPC
	scanAPCEsc
)

// modeTracker holds the raw-byte scanner's state across Write calls.
type modeTracker struct {
	state     int
	csiBuf    []byte
	oscBuf    []byte
	graphicsN int
}

// scanModes walks data looking for mode-affecting escape sequences and
// updates the Emulator's modes/title/kitty flags/hyperlink table in place.
// It never mutates data and never blocks; the grid semantics themselves are
// left to midterm.Terminal.Write, called separately by the caller.
func (e *Emulator) scanModes(data []byte) {
	for _, b := range data {
		switch e.scan.state {
		case scanNormal:
			switch b {
			case 0x1b:
				e.scan.state = scanEsc
			}
		case scanEsc:
			switch b {
			case '[':
				e.scan.csiBuf = e.scan.csiBuf[:0]
				e.scan.state = scanCSI
			case ']':
				e.scan.oscBuf = e.scan.oscBuf[:0]
				e.scan.state = scanOSC
			case '_':
				e.scan.graphicsN++
				e.scan.state = scanAPC
			default:
				e.scan.state = scanNormal
			}
		case scanCSI:
			if isCSIFinal(b) {
				e.handleCSI(e.scan.csiBuf, b)
				e.scan.state = scanNormal
			} else {
				e.scan.csiBuf = append(e.scan.csiBuf, b)
			}
		case scanOSC:
			switch b {
			case 0x07:
				e.handleOSC(string(e.scan.oscBuf))
				e.scan.state = scanNormal
			case 0x1b:
				e.scan.state = scanOSCEsc
			default:
				e.scan.oscBuf = append(e.scan.oscBuf, b)
			}
		case scanOSCEsc:
			if b == '\\' {
				e.handleOSC(string(e.scan.oscBuf))
				e.scan.state = scanNormal
			} else if b == 0x1b {
				e.scan.state = scanOSCEsc
			} else {
				e.scan.oscBuf = append(e.scan.oscBuf, 0x1b, b)
				e.scan.state = scanOSC
			}
		case scanAPC:
			if b == 0x1b {
				e.scan.state = scanAPCEsc
			}
		case scanAPCEsc:
			if b == '\\' {
				e.scan.state = scanNormal
			} else if b != 0x1b {
				e.scan.state = scanAPC
			}
		}
	}
}

// handleCSI interprets one complete CSI sequence (the bytes between '[' and
// the final byte, which is passed separately).
func (e *Emulator) handleCSI(body []byte, final byte) {
	s := string(body)
	switch {
	case final == 'h' || final == 'l':
		set := final == 'h'
		if strings.HasPrefix(s, "?") {
			e.applyDECMode(splitParams(s[1:]), set)
		}
	case final == 'u':
		e.applyKittyKeyboard(s)
	case final == 'q' && strings.HasSuffix(s, " "):
		e.applyCursorStyle(strings.TrimSuffix(s, " "))
	case final == 'r' && s == "":
		// DECSTBM with no params resets the scroll region; no mode impact.
	}
}

// applyDECMode updates Modes for each recognized private-mode parameter.
func (e *Emulator) applyDECMode(params []int, set bool) {
	changed := false
	for _, p := range params {
		switch p {
		case 1:
			if set {
				e.modes.CursorKeyMode = CursorKeysApplication
			} else {
				e.modes.CursorKeyMode = CursorKeysNormal
			}
			changed = true
		case 1000, 1002, 1003:
			e.modes.MouseTracking = set
			changed = true
		case 1004:
			e.modes.FocusReporting = set
			changed = true
		case 2004:
			e.modes.BracketedPaste = set
			changed = true
		case 47, 1047, 1049:
			e.modes.AlternateScreen = set
			changed = true
		case 25:
			e.cursorVisible = set
			e.needFull = true
		}
	}
	if changed {
		e.needFull = true
		if e.onMode != nil {
			e.onMode(e.modes)
		}
	}
}

// applyCursorStyle interprets a DECSCUSR ("CSI Ps SP q") body: Ps selects
// block/underline/bar, blink-vs-steady variants collapse onto the same
// CursorStyle since blink timing is a TUI rendering concern out of scope
// here (spec §1).
func (e *Emulator) applyCursorStyle(s string) {
	params := splitParams(s)
	p := 1
	if len(params) > 0 {
		p = params[0]
	}
	var style CursorStyle
	switch p {
	case 0, 1, 2:
		style = CursorBlock
	case 3, 4:
		style = CursorUnderline
	case 5, 6:
		style = CursorBar
	default:
		return
	}
	if style != e.cursorStyle {
		e.cursorStyle = style
		e.needFull = true
	}
}

// applyKittyKeyboard implements the kitty keyboard protocol's flag stack:
// "CSI > flags u" pushes, "CSI < u" pops, "CSI = flags u" sets the current
// entry. "CSI ? u" is a query; it leaves the stack unchanged, and neither
// this scanner nor the PTY service's query passthrough answers it.
func (e *Emulator) applyKittyKeyboard(s string) {
	if s == "" {
		return
	}
	switch s[0] {
	case '>':
		flags := parseKittyFlags(s[1:])
		e.kittyStack = append(e.kittyStack, flags)
	case '<':
		if len(e.kittyStack) > 0 {
			e.kittyStack = e.kittyStack[:len(e.kittyStack)-1]
		}
	case '=':
		flags := parseKittyFlags(s[1:])
		if len(e.kittyStack) == 0 {
			e.kittyStack = append(e.kittyStack, flags)
		} else {
			e.kittyStack[len(e.kittyStack)-1] = flags
		}
	}
}

func parseKittyFlags(s string) KittyFlags {
	params := splitParams(s)
	if len(params) == 0 {
		return 0
	}
	return KittyFlags(params[0])
}

// handleOSC interprets one complete OSC sequence body ("Ps;Pt...").
func (e *Emulator) handleOSC(body string) {
	idx := strings.IndexByte(body, ';')
	if idx < 0 {
		return
	}
	ps, pt := body[:idx], body[idx+1:]
	switch ps {
	case "0", "1", "2":
		e.title = pt
		if e.onTitle != nil {
			e.onTitle(pt)
		}
	case "8":
		e.recordHyperlink(pt)
	}
}

// recordHyperlink assigns a stable id to the URI in an OSC 8 payload
// ("params;uri"), allocating a new id the first time a URI is seen.
func (e *Emulator) recordHyperlink(payload string) {
	idx := strings.IndexByte(payload, ';')
	uri := payload
	if idx >= 0 {
		uri = payload[idx+1:]
	}
	if uri == "" {
		e.activeHyperlink = 0
		return
	}
	if id, ok := e.hyperlinkIDs[uri]; ok {
		e.activeHyperlink = id
		return
	}
	e.hyperlinkNext++
	e.hyperlinkIDs[uri] = e.hyperlinkNext
	e.activeHyperlink = e.hyperlinkNext
}
