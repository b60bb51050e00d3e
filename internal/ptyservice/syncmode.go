package ptyservice

import (
	"bytes"
	"sync"
	"time"
)

// syncModeParser detects a child's "synchronized output" region (DECSET
// 2026 begin/end) and buffers bytes written inside it, so the emulator
// never sees a partially-drawn frame (spec §4.E step 1). The scanning
// states mirror internal/vt/modescan.go's raw-byte CSI/APC scanner,
// applied here against the pre-emulator byte stream instead of after it.
type syncModeParser struct {
	mu sync.Mutex

	state   int
	scratch []byte

	inSync    bool
	pending   []byte
	graphicsN int

	timer     *time.Timer
	onTimeout func()
}

// syncTimeout is SYNC_TIMEOUT_MS (spec §4.E step 1 default): how long a
// sync region may stay open with no end marker before it's forwarded
// anyway.
const syncTimeout = 50 * time.Millisecond

const (
	syncScanNormal = iota
	syncScanEsc
	syncScanCSI
	syncScanAPC
	syncScanAPCEsc
)

// Feed scans data for DECSET/DECRST 2026 and kitty-graphics APC
// sequences, returning the subset of data (sync markers themselves
// stripped) that should be forwarded right now. Bytes that fall inside an
// open sync region are buffered internally instead, released by a later
// Feed call (once the end marker arrives), by a kitty-graphics query
// observed mid-sync, or by TakePending once the timeout fires.
func (p *syncModeParser) Feed(data []byte) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	var forward []byte
	appendOut := func(bs ...byte) {
		if p.inSync {
			p.pending = append(p.pending, bs...)
		} else {
			forward = append(forward, bs...)
		}
	}

	for _, b := range data {
		switch p.state {
		case syncScanNormal:
			if b == 0x1b {
				p.scratch = append(p.scratch[:0], b)
				p.state = syncScanEsc
			} else {
				appendOut(b)
			}
		case syncScanEsc:
			p.scratch = append(p.scratch, b)
			switch b {
			case '[':
				p.state = syncScanCSI
			case '_':
				p.graphicsN++
				p.state = syncScanAPC
			default:
				appendOut(p.scratch...)
				p.state = syncScanNormal
			}
		case syncScanCSI:
			p.scratch = append(p.scratch, b)
			if b >= 0x40 && b <= 0x7e {
				body := string(p.scratch[2 : len(p.scratch)-1])
				if isSync2026(body, b) {
					wasSync := p.inSync
					p.inSync = b == 'h'
					if wasSync && !p.inSync {
						forward = append(forward, p.pending...)
						p.pending = nil
					}
				} else {
					appendOut(p.scratch...)
				}
				p.state = syncScanNormal
			}
		case syncScanAPC:
			p.scratch = append(p.scratch, b)
			if b == 0x1b {
				p.state = syncScanAPCEsc
			}
		case syncScanAPCEsc:
			p.scratch = append(p.scratch, b)
			if b == '\\' {
				appendOut(p.scratch...)
				p.state = syncScanNormal
				if p.inSync && bytes.HasPrefix(p.scratch, []byte("\x1b_G")) && bytes.Contains(p.scratch, []byte("a=q")) {
					// A kitty-graphics query (APC G with a=q) observed
					// mid-sync forces an immediate flush (spec §4.E step 1);
					// any other APC stays buffered with the frame.
					forward = append(forward, p.pending...)
					p.pending = nil
				}
			} else if b != 0x1b {
				p.state = syncScanAPC
			}
		}
	}

	p.armTimer()
	return forward
}

// isSync2026 reports whether a complete CSI sequence (body between '['
// and the final byte, final passed separately) is DECSET/DECRST 2026.
func isSync2026(body string, final byte) bool {
	if final != 'h' && final != 'l' {
		return false
	}
	return len(body) > 0 && body[0] == '?' && body[1:] == "2026"
}

// armTimer (re)starts the SYNC_TIMEOUT_MS watchdog whenever a sync region
// is open, so a child that announces begin-sync and then hangs doesn't
// starve the emulator forever.
func (p *syncModeParser) armTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if !p.inSync || p.onTimeout == nil {
		return
	}
	p.timer = time.AfterFunc(syncTimeout, p.onTimeout)
}

// TakePending returns and clears whatever is currently buffered inside an
// open sync region, and closes the region out (a stalled frame is
// forwarded as-is rather than held forever).
func (p *syncModeParser) TakePending() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	data := p.pending
	p.pending = nil
	p.inSync = false
	return data
}
