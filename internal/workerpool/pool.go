// Package workerpool shards terminal emulators across a fixed pool of
// goroutine-backed workers, round-robin by session, and restarts a worker
// (re-initializing its emulators from cached init params) after too many
// consecutive errors (spec §4.D).
package workerpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/openmux/openmux/internal/scrollback"
	"github.com/openmux/openmux/internal/vt"
)

// ErrUnknownSession is returned by any per-session operation on a session
// the pool has never been told to assign.
var ErrUnknownSession = errors.New("workerpool: unknown session")

// maxConsecutiveErrors is how many back-to-back job errors on one worker
// trigger a restart of that worker's emulators.
const maxConsecutiveErrors = 5

// initParams is cached per session so a restarted worker can recreate the
// emulator exactly as it was first assigned.
type initParams struct {
	rows, cols int
	store      *scrollback.Store
}

// job is one unit of work dispatched to a worker's inbox; jobs for the
// same worker execute one at a time, in order, which is what gives each
// session's emulator safe single-threaded access without its own lock.
type job func(w *worker) error

// worker owns a shard of sessions' emulators and processes jobs off a
// single channel — the same "serialize access via one goroutine reading a
// channel" idiom as dcosson-h2/internal/daemon.go's acceptLoop/delivery
// goroutines, generalized here to a fixed pool instead of one-per-daemon.
type worker struct {
	id    int
	inbox chan job
	stop  chan struct{}

	mu                sync.Mutex
	emulators         map[string]*vt.Emulator
	initParams        map[string]initParams
	pendingWrites     map[string][][]byte
	consecutiveErrors int

	// titleCbs/modeCbs/updateCbs cache the callbacks installed on each
	// session's emulator, so restart can reinstall them on the freshly
	// created replacement emulators — otherwise a restarted worker's
	// emulators go silent, since a new vt.Emulator starts with nil
	// callbacks (spec §4.D scenario S4, full-refresh after recovery).
	titleCbs  map[string]func(string)
	modeCbs   map[string]func(vt.Modes)
	updateCbs map[string]func()
}

func newWorker(id int) *worker {
	w := &worker{
		id:            id,
		inbox:         make(chan job, 256),
		stop:          make(chan struct{}),
		emulators:     make(map[string]*vt.Emulator),
		initParams:    make(map[string]initParams),
		pendingWrites: make(map[string][][]byte),
		titleCbs:      make(map[string]func(string)),
		modeCbs:       make(map[string]func(vt.Modes)),
		updateCbs:     make(map[string]func()),
	}
	go w.run()
	return w
}

func (w *worker) run() {
	for {
		select {
		case j := <-w.inbox:
			w.execute(j)
		case <-w.stop:
			return
		}
	}
}

func (w *worker) execute(j job) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("workerpool: recovered panic: %v", r)
			}
		}()
		return j(w)
	}()

	w.mu.Lock()
	if err != nil {
		w.consecutiveErrors++
	} else {
		w.consecutiveErrors = 0
	}
	n := w.consecutiveErrors
	w.mu.Unlock()

	if n >= maxConsecutiveErrors {
		w.restart()
	}
}

// restart discards every emulator this worker owns and recreates them from
// their cached init params, replaying any writes that had been buffered
// for a session whose init job hadn't completed yet.
func (w *worker) restart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, p := range w.initParams {
		e := vt.NewEmulator(p.rows, p.cols, p.store)
		if cb, ok := w.titleCbs[id]; ok {
			e.OnTitleChange(cb)
		}
		if cb, ok := w.modeCbs[id]; ok {
			e.OnModeChange(cb)
		}
		if cb, ok := w.updateCbs[id]; ok {
			e.OnUpdate(cb)
		}
		for _, data := range w.pendingWrites[id] {
			e.Write(data)
		}
		w.emulators[id] = e
		delete(w.pendingWrites, id)
	}
	w.consecutiveErrors = 0
}

// Pool is a fixed-size set of workers sharding sessions round-robin.
type Pool struct {
	workers []*worker

	mu            sync.Mutex
	sessionWorker map[string]int
	next          int
}

// NewPool creates a pool of n workers (n < 1 is treated as 1).
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{sessionWorker: make(map[string]int)}
	for i := 0; i < n; i++ {
		p.workers = append(p.workers, newWorker(i))
	}
	return p
}

// Stop terminates every worker goroutine. Assigned emulators are not
// disposed; callers should call RemoveSession for each session first if
// clean teardown (scrollback flush, etc.) matters.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		close(w.stop)
	}
}

// AssignSession creates a new emulator for sessionID on the next worker in
// round-robin order and blocks until it's ready to accept writes.
func (p *Pool) AssignSession(sessionID string, rows, cols int, store *scrollback.Store) {
	p.mu.Lock()
	idx := p.next % len(p.workers)
	p.next++
	p.sessionWorker[sessionID] = idx
	p.mu.Unlock()

	w := p.workers[idx]
	done := make(chan struct{})
	w.inbox <- func(w *worker) error {
		w.mu.Lock()
		w.initParams[sessionID] = initParams{rows: rows, cols: cols, store: store}
		w.emulators[sessionID] = vt.NewEmulator(rows, cols, store)
		w.mu.Unlock()
		close(done)
		return nil
	}
	<-done
}

// RemoveSession disposes sessionID's emulator and drops it from the pool's
// bookkeeping.
func (p *Pool) RemoveSession(sessionID string) error {
	w, ok := p.workerFor(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	done := make(chan struct{})
	w.inbox <- func(w *worker) error {
		w.mu.Lock()
		if e, ok := w.emulators[sessionID]; ok {
			e.Dispose()
		}
		delete(w.emulators, sessionID)
		delete(w.initParams, sessionID)
		delete(w.pendingWrites, sessionID)
		delete(w.titleCbs, sessionID)
		delete(w.modeCbs, sessionID)
		delete(w.updateCbs, sessionID)
		w.mu.Unlock()
		close(done)
		return nil
	}
	<-done

	p.mu.Lock()
	delete(p.sessionWorker, sessionID)
	p.mu.Unlock()
	return nil
}

func (p *Pool) workerFor(sessionID string) (*worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.sessionWorker[sessionID]
	if !ok {
		return nil, false
	}
	return p.workers[idx], true
}

// Write enqueues child-process output for sessionID. It is fire-and-forget
// from the caller's perspective: if the session's init job hasn't run yet
// the bytes are buffered and replayed once it has (spec §4.D "init-
// buffered writes").
func (p *Pool) Write(sessionID string, data []byte) error {
	w, ok := p.workerFor(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	buf := append([]byte(nil), data...)
	w.inbox <- func(w *worker) error {
		w.mu.Lock()
		e, ready := w.emulators[sessionID]
		if !ready {
			w.pendingWrites[sessionID] = append(w.pendingWrites[sessionID], buf)
			w.mu.Unlock()
			return nil
		}
		w.mu.Unlock()
		return e.Write(buf)
	}
	return nil
}

// Resize resizes sessionID's emulator and blocks until applied.
func (p *Pool) Resize(sessionID string, rows, cols int) error {
	w, ok := p.workerFor(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	errCh := make(chan error, 1)
	w.inbox <- func(w *worker) error {
		w.mu.Lock()
		e, ready := w.emulators[sessionID]
		if ready {
			w.initParams[sessionID] = initParams{rows: rows, cols: cols, store: w.initParams[sessionID].store}
		}
		w.mu.Unlock()
		if !ready {
			errCh <- ErrUnknownSession
			return ErrUnknownSession
		}
		err := e.Resize(rows, cols)
		errCh <- err
		return err
	}
	return <-errCh
}

// GetDirtyUpdate synchronously fetches sessionID's pending dirty update.
func (p *Pool) GetDirtyUpdate(sessionID string) (vt.DirtyUpdate, error) {
	w, ok := p.workerFor(sessionID)
	if !ok {
		return vt.DirtyUpdate{}, ErrUnknownSession
	}
	type result struct {
		u   vt.DirtyUpdate
		err error
	}
	ch := make(chan result, 1)
	w.inbox <- func(w *worker) error {
		w.mu.Lock()
		e, ready := w.emulators[sessionID]
		w.mu.Unlock()
		if !ready {
			ch <- result{err: ErrUnknownSession}
			return ErrUnknownSession
		}
		ch <- result{u: e.GetDirtyUpdate()}
		return nil
	}
	r := <-ch
	return r.u, r.err
}

// Search synchronously runs Emulator.Search for sessionID.
func (p *Pool) Search(sessionID, pattern string, maxMatches int) (vt.SearchResult, error) {
	w, ok := p.workerFor(sessionID)
	if !ok {
		return vt.SearchResult{}, ErrUnknownSession
	}
	type result struct {
		res vt.SearchResult
		err error
	}
	ch := make(chan result, 1)
	w.inbox <- func(w *worker) error {
		w.mu.Lock()
		e, ready := w.emulators[sessionID]
		w.mu.Unlock()
		if !ready {
			ch <- result{err: ErrUnknownSession}
			return ErrUnknownSession
		}
		ch <- result{res: e.Search(pattern, maxMatches)}
		return nil
	}
	r := <-ch
	return r.res, r.err
}

// ExtractText synchronously runs Emulator.ExtractText for sessionID.
func (p *Pool) ExtractText(sessionID string, sel vt.Selection) (string, error) {
	w, ok := p.workerFor(sessionID)
	if !ok {
		return "", ErrUnknownSession
	}
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	w.inbox <- func(w *worker) error {
		w.mu.Lock()
		e, ready := w.emulators[sessionID]
		w.mu.Unlock()
		if !ready {
			ch <- result{err: ErrUnknownSession}
			return ErrUnknownSession
		}
		ch <- result{text: e.ExtractText(sel)}
		return nil
	}
	r := <-ch
	return r.text, r.err
}

// WorkerCount returns how many workers the pool has, for diagnostics.
func (p *Pool) WorkerCount() int {
	return len(p.workers)
}

// OnTitleChange registers a callback fired whenever sessionID's emulator
// observes an OSC 0/1/2 title change. The registration itself is
// dispatched as a job so it serializes with any in-flight write, and the
// callback is cached on the owning worker so a restart can reinstall it
// on the replacement emulator.
func (p *Pool) OnTitleChange(sessionID string, f func(string)) error {
	w, ok := p.workerFor(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	done := make(chan error, 1)
	w.inbox <- func(w *worker) error {
		w.mu.Lock()
		e, ready := w.emulators[sessionID]
		if ready {
			w.titleCbs[sessionID] = f
		}
		w.mu.Unlock()
		if !ready {
			done <- ErrUnknownSession
			return ErrUnknownSession
		}
		e.OnTitleChange(f)
		done <- nil
		return nil
	}
	return <-done
}

// OnModeChange registers a callback fired whenever sessionID's emulator
// observes a tracked DEC private mode transition (alternate screen, mouse
// tracking, focus reporting, ...). Cached on the owning worker for the
// same restart-reinstall reason as OnTitleChange.
func (p *Pool) OnModeChange(sessionID string, f func(vt.Modes)) error {
	w, ok := p.workerFor(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	done := make(chan error, 1)
	w.inbox <- func(w *worker) error {
		w.mu.Lock()
		e, ready := w.emulators[sessionID]
		if ready {
			w.modeCbs[sessionID] = f
		}
		w.mu.Unlock()
		if !ready {
			done <- ErrUnknownSession
			return ErrUnknownSession
		}
		e.OnModeChange(f)
		done <- nil
		return nil
	}
	return <-done
}

// OnUpdate registers a callback fired after every write to sessionID's
// emulator, whether or not it changed any row. Cached on the owning worker for the same
// restart-reinstall reason as OnTitleChange.
func (p *Pool) OnUpdate(sessionID string, f func()) error {
	w, ok := p.workerFor(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	done := make(chan error, 1)
	w.inbox <- func(w *worker) error {
		w.mu.Lock()
		e, ready := w.emulators[sessionID]
		if ready {
			w.updateCbs[sessionID] = f
		}
		w.mu.Unlock()
		if !ready {
			done <- ErrUnknownSession
			return ErrUnknownSession
		}
		e.OnUpdate(f)
		done <- nil
		return nil
	}
	return <-done
}

// GetMode synchronously snapshots sessionID's tracked modes.
func (p *Pool) GetMode(sessionID string) (vt.Modes, error) {
	var out vt.Modes
	err := p.withEmulator(sessionID, func(e *vt.Emulator) { out = e.GetMode() })
	return out, err
}

// SetViewportOffset synchronously moves sessionID's emulator viewport
// within scrollback.
func (p *Pool) SetViewportOffset(sessionID string, offset int) error {
	return p.withEmulator(sessionID, func(e *vt.Emulator) { e.SetViewportOffset(offset) })
}

// GetScrollbackLength synchronously returns the archived line count for
// sessionID.
func (p *Pool) GetScrollbackLength(sessionID string) (int, error) {
	var out int
	err := p.withEmulator(sessionID, func(e *vt.Emulator) { out = e.GetScrollbackLength() })
	return out, err
}

// GetScrollbackLine synchronously fetches one archived line by absolute
// index.
func (p *Pool) GetScrollbackLine(sessionID string, index int) (vt.Row, bool, error) {
	var row vt.Row
	var found bool
	err := p.withEmulator(sessionID, func(e *vt.Emulator) { row, found = e.GetScrollbackLine(index) })
	return row, found, err
}

// withEmulator dispatches fn to run against sessionID's live emulator on
// its owning worker, blocking until it has run.
func (p *Pool) withEmulator(sessionID string, fn func(e *vt.Emulator)) error {
	w, ok := p.workerFor(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	done := make(chan error, 1)
	w.inbox <- func(w *worker) error {
		w.mu.Lock()
		e, ready := w.emulators[sessionID]
		w.mu.Unlock()
		if !ready {
			done <- ErrUnknownSession
			return ErrUnknownSession
		}
		fn(e)
		done <- nil
		return nil
	}
	return <-done
}
