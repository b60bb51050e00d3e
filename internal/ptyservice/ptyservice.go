// Package ptyservice owns the PTY registry: spawning child processes on a
// pseudoterminal, bridging their output to an emulator in the worker pool,
// and answering terminal queries the core must intercept (spec §4.E).
// Grounded on dcosson-h2/internal/session/virtualterminal.VT: the same
// pty.StartWithSize/pty.Setsize calls, the same WritePTY-with-timeout
// pattern to avoid blocking on a hung child, and the same OSC 10/11
// fallback-palette response (FallbackOSCPalette).
package ptyservice

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/openmux/openmux/internal/scrollback"
	"github.com/openmux/openmux/internal/term"
	"github.com/openmux/openmux/internal/workerpool"
)

// ErrPtyNotFound is the soft "PtyNotFound" error kind (spec §7): callers
// are expected to treat it as a no-op, not a fatal condition.
var ErrPtyNotFound = errors.New("ptyservice: pty not found")

// ErrPTYWriteTimeout mirrors virtualterminal.ErrPTYWriteTimeout: WritePTY
// gives up if the child isn't draining its PTY buffer.
var ErrPTYWriteTimeout = fmt.Errorf("ptyservice: pty write timed out")

// writeTimeout bounds how long a write to a child's PTY may block before
// giving up, the same guard virtualterminal.VT.WritePTY uses against a
// hung child filling the kernel PTY buffer.
const writeTimeout = 2 * time.Second

// CreateOptions describes a new child process to spawn on a PTY.
type CreateOptions struct {
	Command string
	Args    []string
	Cols    int
	Rows    int
	Cwd     string
	Env     map[string]string
}

// ExitInfo is delivered to exit subscribers exactly once per PTY.
type ExitInfo struct {
	Code   int
	Signal string
}

// Subscribers is the set of callbacks a caller registers at create time
// (or later via Rebind). The engine layer binds them to the PTY's
// Subscription Bus topic (spec §4.I), which fans a single PTY's events
// out to many listeners with add/remove semantics. None of the fields
// need to be set.
type Subscribers struct {
	OnUnifiedUpdate func(term.DirtyUpdate)
	OnScrollState   func(term.ScrollState)
	OnTitle         func(string)
	OnExit          func(ExitInfo)
}

// record is the PTY registry entry.
type record struct {
	id  string
	ptm *os.File
	cmd *exec.Cmd

	rows, cols int

	subs Subscribers

	sync  syncModeParser
	query queryPassthrough

	mu           sync.Mutex
	focused      bool
	focusTrackOn bool
	panePosX     int
	panePosY     int

	exitOnce sync.Once
	lastOut  time.Time
}

// subscribers returns a snapshot of rec's current Subscribers under
// rec.mu, so callback invocation never races Suspend/Rebind's swap of
// rec.subs (both sides of that race previously took no lock at all).
func (rec *record) subscribers() Subscribers {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.subs
}

// Service owns the PTY registry and bridges child PTY bytes to the
// emulator worker pool (spec §4.E).
type Service struct {
	pool *workerpool.Pool
	scb  *scrollback.Manager

	mu      sync.Mutex
	records map[string]*record
}

// NewService wires a PTY Service to an emulator worker pool and a
// scrollback manager (one Store per PTY, created lazily on Create).
func NewService(pool *workerpool.Pool, scb *scrollback.Manager) *Service {
	return &Service{
		pool:    pool,
		scb:     scb,
		records: make(map[string]*record),
	}
}

// Create spawns a child process on a new PTY, registers an emulator for it
// in the worker pool, and starts the output-bridging goroutine.
func (s *Service) Create(opts CreateOptions, subs Subscribers) (string, error) {
	id := uuid.NewString()

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Cwd
	if len(opts.Env) > 0 {
		env := make([]string, 0, len(os.Environ())+len(opts.Env))
		for _, e := range os.Environ() {
			key := e
			if idx := strings.Index(e, "="); idx >= 0 {
				key = e[:idx]
			}
			if _, override := opts.Env[key]; !override {
				env = append(env, e)
			}
		}
		for k, v := range opts.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(opts.Rows), Cols: uint16(opts.Cols)})
	if err != nil {
		return "", fmt.Errorf("ptyservice: start command: %w", err)
	}

	store := s.scb.Store(id)
	s.pool.AssignSession(id, opts.Rows, opts.Cols, store)

	rec := &record{
		id:   id,
		ptm:  ptm,
		cmd:  cmd,
		rows: opts.Rows,
		cols: opts.Cols,
		subs: subs,
	}

	rec.sync.onTimeout = func() { s.flushSyncTimeout(rec) }

	s.pool.OnTitleChange(id, func(title string) {
		if cb := rec.subscribers().OnTitle; cb != nil {
			cb(title)
		}
	})
	s.pool.OnModeChange(id, func(m term.Modes) {
		s.onModeChange(rec, m)
	})
	s.pool.OnUpdate(id, func() {
		s.notify(rec)
	})

	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()

	go s.readLoop(rec)
	go s.waitLoop(rec)

	return id, nil
}

// waitLoop reaps the child process, the same separate Cmd.Wait goroutine
// dcosson-h2/internal/session/session.go's lifecycleLoop runs apart from
// the PTY read loop: Cmd.Wait populates ProcessState (needed for exit
// code/signal), which a bare EOF on the PTY read side does not give us.
func (s *Service) waitLoop(rec *record) {
	rec.cmd.Wait()
	s.handleExit(rec)
}

// onModeChange implements the focus-tracking sync step (spec §4.E step 5):
// the instant DECSET 1004 newly enables focus reporting, transmit the
// pane's current focus state immediately rather than waiting for it to
// change.
func (s *Service) onModeChange(rec *record, m term.Modes) {
	rec.mu.Lock()
	justEnabled := m.FocusReporting && !rec.focusTrackOn
	rec.focusTrackOn = m.FocusReporting
	focused := rec.focused
	rec.mu.Unlock()
	if justEnabled {
		s.writeFocusEvent(rec, focused)
	}
}

func (s *Service) writeFocusEvent(rec *record, focused bool) {
	seq := "\x1b[O"
	if focused {
		seq = "\x1b[I"
	}
	s.writePTY(rec, []byte(seq))
}

// SetFocus records whether ptyID's pane currently has input focus and, if
// focus-reporting is enabled, immediately notifies the child.
func (s *Service) SetFocus(ptyID string, focused bool) error {
	rec, ok := s.lookup(ptyID)
	if !ok {
		return ErrPtyNotFound
	}
	rec.mu.Lock()
	changed := rec.focused != focused
	rec.focused = focused
	tracking := rec.focusTrackOn
	rec.mu.Unlock()
	if changed && tracking {
		s.writeFocusEvent(rec, focused)
	}
	return nil
}

// readLoop pipes child PTY output through the sync-mode parser and query
// passthrough into the emulator, mirroring virtualterminal.VT.PipeOutput's
// read-dispatch-notify loop.
func (s *Service) readLoop(rec *record) {
	buf := make([]byte, 4096)
	for {
		n, err := rec.ptm.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			s.handleChildData(rec, chunk)
		}
		if err != nil {
			// The child's own exit (reaped by waitLoop) delivers the exit
			// callback; a read error just ends this loop.
			return
		}
	}
}

// handleChildData implements the per-chunk pipeline from spec §4.E:
// sync-mode buffering, then query passthrough, then the emulator write.
func (s *Service) handleChildData(rec *record, data []byte) {
	forward := rec.sync.Feed(data)
	s.process(rec, forward)
}

// flushSyncTimeout is rec.sync's onTimeout callback: SYNC_TIMEOUT_MS
// elapsed without an end marker, so whatever is buffered is forwarded
// anyway rather than held forever against a frozen app.
func (s *Service) flushSyncTimeout(rec *record) {
	data := rec.sync.TakePending()
	if len(data) > 0 {
		s.process(rec, data)
	}
}

// process runs query passthrough over already-desynced bytes, writes the
// responses and remaining text, and notifies subscribers.
func (s *Service) process(rec *record, data []byte) {
	if len(data) == 0 {
		return
	}
	text, responses := rec.query.Feed(data)

	rec.mu.Lock()
	rec.lastOut = time.Now()
	rec.mu.Unlock()

	if len(text) > 0 {
		s.pool.Write(rec.id, text)
	}
	// Query-passthrough responses are written back after any response the
	// emulator itself would have produced (spec §4.E step 4: kitty
	// protocol ordering). This emulator never synthesizes device
	// responses of its own (kitty graphics is tracked presence-only, see
	// internal/vt's DESIGN.md entry), so there is nothing to drain ahead
	// of these.
	for _, resp := range responses {
		s.writePTY(rec, resp)
	}
}

// writePTY writes to the child PTY with a timeout, exactly like
// virtualterminal.VT.WritePTY: a hung child that stops reading stdin must
// not be allowed to block the caller forever.
func (s *Service) writePTY(rec *record, p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := rec.ptm.Write(p)
		ch <- result{n, err}
	}()
	timer := time.NewTimer(writeTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-timer.C:
		return 0, ErrPTYWriteTimeout
	}
}

// notify pushes a unified update (which carries the scroll state) to the
// PTY's subscribers, synchronously on every call. No per-tick coalescing
// is applied: neither this service nor the Subscription Bus these
// callbacks are bound to collapses several updates into one.
func (s *Service) notify(rec *record) {
	cb := rec.subscribers().OnUnifiedUpdate
	if cb != nil {
		if u, err := s.pool.GetDirtyUpdate(rec.id); err == nil {
			cb(u)
		}
	}
}

// Write forwards raw bytes to the child (e.g., keyboard input already
// encoded by the Keyboard Router).
func (s *Service) Write(ptyID string, data []byte) error {
	rec, ok := s.lookup(ptyID)
	if !ok {
		return ErrPtyNotFound
	}
	_, err := s.writePTY(rec, data)
	return err
}

// Resize resizes the child PTY and the emulator, then emits a synthetic
// full refresh (spec §4.E resize).
func (s *Service) Resize(ptyID string, cols, rows int) error {
	rec, ok := s.lookup(ptyID)
	if !ok {
		return ErrPtyNotFound
	}
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("ptyservice: resize rejected: dimensions must be positive, got %dx%d", cols, rows)
	}
	rec.mu.Lock()
	rec.rows, rec.cols = rows, cols
	rec.mu.Unlock()
	if err := pty.Setsize(rec.ptm, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return fmt.Errorf("ptyservice: resize pty: %w", err)
	}
	if err := s.pool.Resize(ptyID, rows, cols); err != nil {
		return err
	}
	s.notify(rec)
	return nil
}

// Destroy kills the child process, disposes its emulator, removes its
// scrollback, and invokes the exit callback exactly once.
func (s *Service) Destroy(ptyID string) error {
	rec, ok := s.lookup(ptyID)
	if !ok {
		return ErrPtyNotFound
	}
	if rec.cmd != nil && rec.cmd.Process != nil {
		rec.cmd.Process.Kill()
	}
	s.pool.RemoveSession(ptyID)
	s.scb.Remove(ptyID)

	s.mu.Lock()
	delete(s.records, ptyID)
	s.mu.Unlock()

	// waitLoop's Cmd.Wait returns once the kill above lands, and delivers
	// the exit callback itself; exitOnce makes that safe even if the
	// child had already exited on its own first.
	return nil
}

// handleExit runs rec's exit callback exactly once. Its only caller is
// waitLoop, so both a child exiting on its own and an explicit Destroy's
// kill reach it through Cmd.Wait.
func (s *Service) handleExit(rec *record) {
	rec.exitOnce.Do(func() {
		info := ExitInfo{}
		if rec.cmd != nil && rec.cmd.ProcessState != nil {
			info.Code = rec.cmd.ProcessState.ExitCode()
			if ws, ok := rec.cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				info.Signal = ws.Signal().String()
			}
		}
		if cb := rec.subscribers().OnExit; cb != nil {
			cb(info)
		}
	})
}

// Capture returns a snapshot for external tools: the current full state
// plus up to scrollbackLines archived lines.
func (s *Service) Capture(ptyID string, scrollbackLines int) (term.TerminalState, []term.Row, error) {
	rec, ok := s.lookup(ptyID)
	if !ok {
		return term.TerminalState{}, nil, ErrPtyNotFound
	}
	u, err := s.pool.GetDirtyUpdate(ptyID)
	if err != nil {
		return term.TerminalState{}, nil, err
	}
	state := term.TerminalState{}
	if u.FullState != nil {
		state = *u.FullState
	} else {
		rec.mu.Lock()
		state.Rows, state.Cols = rec.rows, rec.cols
		rec.mu.Unlock()
	}

	length, err := s.pool.GetScrollbackLength(ptyID)
	if err != nil {
		return state, nil, err
	}
	start := 0
	if scrollbackLines > 0 && length > scrollbackLines {
		start = length - scrollbackLines
	}
	lines := make([]term.Row, 0, length-start)
	for i := start; i < length; i++ {
		row, ok, err := s.pool.GetScrollbackLine(ptyID, i)
		if err != nil {
			return state, lines, err
		}
		if ok {
			lines = append(lines, row)
		}
	}
	return state, lines, nil
}

// SetPanePosition records the on-screen origin of ptyID's pane for
// graphics passthrough (e.g., kitty/sixel placement math); opaque to the
// core otherwise.
func (s *Service) SetPanePosition(ptyID string, x, y int) error {
	rec, ok := s.lookup(ptyID)
	if !ok {
		return ErrPtyNotFound
	}
	rec.mu.Lock()
	rec.panePosX, rec.panePosY = x, y
	rec.mu.Unlock()
	return nil
}

// Search delegates to the emulator.
func (s *Service) Search(ptyID, query string) (term.SearchResult, error) {
	if _, ok := s.lookup(ptyID); !ok {
		return term.SearchResult{}, ErrPtyNotFound
	}
	return s.pool.Search(ptyID, query, -1)
}

// GetScrollState returns the emulator's current scroll state.
func (s *Service) GetScrollState(ptyID string) (term.ScrollState, error) {
	if _, ok := s.lookup(ptyID); !ok {
		return term.ScrollState{}, ErrPtyNotFound
	}
	u, err := s.pool.GetDirtyUpdate(ptyID)
	if err != nil {
		return term.ScrollState{}, err
	}
	return u.Scroll, nil
}

// SetScrollOffset clamps delta into [0, scrollbackLength] and emits an
// update so the TUI re-reads (spec §4.E).
func (s *Service) SetScrollOffset(ptyID string, delta int) error {
	rec, ok := s.lookup(ptyID)
	if !ok {
		return ErrPtyNotFound
	}
	length, err := s.pool.GetScrollbackLength(ptyID)
	if err != nil {
		return err
	}
	offset := delta
	if offset < 0 {
		offset = 0
	}
	if offset > length {
		offset = length
	}
	if err := s.pool.SetViewportOffset(ptyID, offset); err != nil {
		return err
	}
	if cb := rec.subscribers().OnScrollState; cb != nil {
		cb(term.ScrollState{
			ViewportOffset:   offset,
			ScrollbackLength: length,
			IsAtBottom:       offset == 0,
		})
	}
	return nil
}

// IsAlive reports whether ptyID still has a live registry entry — it
// satisfies sessionmgr.PtyRegistry's half of spec §4.G's switchSession
// step 3 ("any paneId in the map whose PTY is no longer live is
// reported back as missing").
func (s *Service) IsAlive(ptyID string) bool {
	_, ok := s.lookup(ptyID)
	return ok
}

// Suspend detaches ptyID from its current subscribers without touching
// the child process or its emulator (spec §4.G step 2: "drop
// subscription fan-out, but DO NOT destroy the emulator or child").
// The PTY keeps running and can be rebound to a fresh Subscribers value
// the next time a session resumes it.
func (s *Service) Suspend(ptyID string) {
	rec, ok := s.lookup(ptyID)
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.subs = Subscribers{}
	rec.mu.Unlock()
}

// Rebind installs a fresh Subscribers set on an already-running PTY,
// e.g. when a session resumes and rebinds a suspended PTY to a pane.
func (s *Service) Rebind(ptyID string, subs Subscribers) error {
	rec, ok := s.lookup(ptyID)
	if !ok {
		return ErrPtyNotFound
	}
	rec.mu.Lock()
	rec.subs = subs
	rec.mu.Unlock()
	return nil
}

func (s *Service) lookup(ptyID string) (*record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[ptyID]
	return rec, ok
}
