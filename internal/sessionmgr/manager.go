package sessionmgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openmux/openmux/internal/layout"
	"github.com/openmux/openmux/internal/version"
)

// AutosaveInterval and SaveDebounce follow spec §4.G's documented
// defaults: a periodic save every 30s when the active layoutVersion has
// moved since the last save, plus an immediate debounced save 200ms
// after any change so a burst of edits coalesces into one write.
const (
	AutosaveInterval = 30 * time.Second
	SaveDebounce     = 200 * time.Millisecond
)

// PtyRegistry is the slice of the PTY Service the Session Manager needs:
// whether a previously bound PTY is still alive, and how to detach one
// from its pane/subscription fan-out without killing the child (spec
// §4.G's "suspend" step). Kept as a narrow interface here rather than an
// import of internal/ptyservice so this package doesn't need to know
// about PTY spawning, query passthrough, or any of that service's other
// concerns — only the two operations switchSession actually performs.
type PtyRegistry interface {
	IsAlive(ptyID string) bool
	Suspend(ptyID string)
}

// Manager implements spec §4.G: named sessions, active-session tracking,
// suspend/resume of PTYs across a session switch, and persistence
// through a SessionStore.
type Manager struct {
	mu sync.Mutex

	store  SessionStore
	engine *layout.Engine
	ptys   PtyRegistry

	active   *Session
	sessions map[string]*Session // id -> in-memory session record, including suspended ones

	lastSavedVersion uint64
	saveTimer        *time.Timer
	saveInFlight     bool
	saveQueued       bool

	stopCh chan struct{}
}

// NewManager wires a Manager around a store, the live layout engine it
// mirrors into persisted Session records, and the PTY registry it
// suspends/resumes PTYs through.
func NewManager(store SessionStore, engine *layout.Engine, ptys PtyRegistry) *Manager {
	return &Manager{
		store:    store,
		engine:   engine,
		ptys:     ptys,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
}

// CreateSession allocates a new session, saving the currently active one
// first if there is one (spec §4.G createSession).
func (m *Manager) CreateSession(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if err := m.saveActiveLocked(); err != nil {
			return nil, err
		}
	}

	now := timeNow()
	sess := &Session{
		ID:                uuid.NewString(),
		Name:              name,
		CreatedAt:         now,
		LastSwitchedAt:    now,
		EngineVersion:     version.DisplayVersion(),
		ActiveWorkspaceID: 1,
		CWDMap:            make(map[int]string),
		CommandMap:        make(map[int]string),
		PaneToPty:         make(map[int]string),
	}
	if err := m.store.Save(sess.ID, sess); err != nil {
		return nil, err
	}
	m.sessions[sess.ID] = sess
	return sess, nil
}

// SwitchSession performs the four-step handoff spec §4.G describes:
// save the active session, suspend its live PTYs, load the target
// session and attempt to rebind its stored paneId->ptyId map, then
// report back the paneIds whose PTY could not be resumed so the caller
// (the engine wiring layer) can prune them from the layout.
func (m *Manager) SwitchSession(id string) (missingPaneIDs []int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if err := m.saveActiveLocked(); err != nil {
			return nil, err
		}
		for _, ptyID := range m.active.PaneToPty {
			m.ptys.Suspend(ptyID)
		}
	}

	target, err := m.loadSessionLocked(id)
	if err != nil {
		return nil, err
	}

	for paneID, ptyID := range target.PaneToPty {
		if !m.ptys.IsAlive(ptyID) {
			missingPaneIDs = append(missingPaneIDs, paneID)
		}
	}

	wsList := make([]layout.SessionWorkspace, 0, len(target.Workspaces))
	for _, ws := range target.Workspaces {
		wsList = append(wsList, workspaceFromSnapshot(ws, missingPaneIDs))
	}
	m.engine.LoadSession(wsList, target.ActiveWorkspaceID)

	target.LastSwitchedAt = timeNow()
	m.active = target
	m.sessions[target.ID] = target
	m.lastSavedVersion = m.engine.Version
	if err := m.store.SetActive(target.ID); err != nil {
		return missingPaneIDs, err
	}
	return missingPaneIDs, nil
}

func (m *Manager) loadSessionLocked(id string) (*Session, error) {
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	return m.store.Load(id)
}

// workspaceFromSnapshot converts an on-disk WorkspaceSnapshot into the
// layout engine's restore shape, dropping panes whose paneId is in
// missing (their PTY did not survive the switch).
func workspaceFromSnapshot(ws WorkspaceSnapshot, missing []int) layout.SessionWorkspace {
	isMissing := func(id int) bool {
		for _, m := range missing {
			if m == id {
				return true
			}
		}
		return false
	}

	out := layout.SessionWorkspace{
		ID:               ws.ID,
		Label:            ws.Label,
		LayoutMode:       layout.LayoutMode(ws.LayoutMode),
		SplitRatio:       ws.SplitRatio,
		ActiveStackIndex: ws.ActiveStackIndex,
		Zoomed:           ws.Zoomed,
	}
	if ws.MainPane != nil && !isMissing(ws.MainPane.ID) {
		out.MainPane = &layout.Pane{ID: ws.MainPane.ID, PtyID: ws.MainPane.PtyID, Title: ws.MainPane.Title}
	}
	for _, p := range ws.Stack {
		if isMissing(p.ID) {
			continue
		}
		out.Stack = append(out.Stack, &layout.Pane{ID: p.ID, PtyID: p.PtyID, Title: p.Title})
	}
	if out.MainPane == nil && len(out.Stack) > 0 {
		out.MainPane = out.Stack[0]
		out.Stack = out.Stack[1:]
	}
	return out
}

// DeleteSession destroys every PTY owned by id, removes its on-disk
// record, and if id was active switches to the most-recently-active
// remaining session or creates a fresh default one (spec §4.G
// deleteSession). PTYs are destroyed through the registry's
// Destroy(string) error method (ptyservice.Service has one); a registry
// without that method only has them suspended.
func (m *Manager) DeleteSession(id string) error {
	m.mu.Lock()
	wasActive := m.active != nil && m.active.ID == id
	var ptyIDs []string
	if sess, ok := m.sessions[id]; ok {
		for _, ptyID := range sess.PaneToPty {
			ptyIDs = append(ptyIDs, ptyID)
		}
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	for _, ptyID := range ptyIDs {
		if d, ok := m.ptys.(interface{ Destroy(string) error }); ok {
			d.Destroy(ptyID)
		} else {
			m.ptys.Suspend(ptyID)
		}
	}
	if err := m.store.Delete(id); err != nil {
		return err
	}

	if !wasActive {
		return nil
	}

	m.mu.Lock()
	m.active = nil
	m.mu.Unlock()

	ids, err := m.store.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		_, err := m.CreateSession("")
		return err
	}
	_, err = m.SwitchSession(m.mostRecentlyActive(ids))
	return err
}

func (m *Manager) mostRecentlyActive(ids []string) string {
	best := ids[0]
	var bestTime time.Time
	for _, id := range ids {
		sess, err := m.store.Load(id)
		if err != nil {
			continue
		}
		if sess.LastSwitchedAt.After(bestTime) {
			bestTime = sess.LastSwitchedAt
			best = id
		}
	}
	return best
}

// NotifyLayoutChanged is called by the engine wiring layer whenever
// layout.Engine.Version advances; it arms (or re-arms) the debounced
// immediate save and ensures the autosave loop's periodic check will
// find a pending change. A second call while a save is already queued
// or in flight is coalesced into the same pending save (spec §4.G's
// at-most-one-save-in-flight invariant).
func (m *Manager) NotifyLayoutChanged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return
	}
	if m.saveInFlight {
		m.saveQueued = true
		return
	}
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveTimer = time.AfterFunc(SaveDebounce, m.runDebouncedSave)
}

func (m *Manager) runDebouncedSave() {
	m.mu.Lock()
	if m.active == nil || m.engine.Version == m.lastSavedVersion {
		m.mu.Unlock()
		return
	}
	m.saveInFlight = true
	sess := m.active
	m.syncActiveFromEngineLocked()
	sess.EngineVersion = version.DisplayVersion()
	m.mu.Unlock()

	err := m.store.Save(sess.ID, sess)

	m.mu.Lock()
	m.saveInFlight = false
	if err == nil {
		m.lastSavedVersion = m.engine.Version
	}
	requeue := m.saveQueued
	m.saveQueued = false
	m.mu.Unlock()

	if requeue {
		m.NotifyLayoutChanged()
	}
}

// saveActiveLocked persists the active session synchronously; callers
// must hold m.mu.
func (m *Manager) saveActiveLocked() error {
	if m.active == nil {
		return nil
	}
	m.syncActiveFromEngineLocked()
	m.active.EngineVersion = version.DisplayVersion()
	if err := m.store.Save(m.active.ID, m.active); err != nil {
		return fmt.Errorf("sessionmgr: save active session: %w", err)
	}
	m.lastSavedVersion = m.engine.Version
	return nil
}

// syncActiveFromEngineLocked mirrors the live layout engine's state into
// the active Session record; callers must hold m.mu.
func (m *Manager) syncActiveFromEngineLocked() {
	sess := m.active
	sess.ActiveWorkspaceID = m.engine.ActiveWorkspaceID
	sess.Workspaces = sess.Workspaces[:0]
	sess.PaneToPty = make(map[int]string)
	for id, ws := range m.engine.Workspaces {
		_ = id
		snap := WorkspaceSnapshot{
			ID:               ws.ID,
			Label:            ws.Label,
			LayoutMode:       int(ws.LayoutMode),
			SplitRatio:       ws.SplitRatio,
			ActiveStackIndex: ws.ActiveStackIndex,
			Zoomed:           ws.Zoomed,
		}
		if ws.MainPane != nil {
			snap.MainPane = &PaneSnapshot{ID: ws.MainPane.ID, PtyID: ws.MainPane.PtyID, Title: ws.MainPane.Title}
			if ws.MainPane.PtyID != "" {
				sess.PaneToPty[ws.MainPane.ID] = ws.MainPane.PtyID
			}
		}
		for _, p := range ws.Stack {
			snap.Stack = append(snap.Stack, &PaneSnapshot{ID: p.ID, PtyID: p.PtyID, Title: p.Title})
			if p.PtyID != "" {
				sess.PaneToPty[p.ID] = p.PtyID
			}
		}
		sess.Workspaces = append(sess.Workspaces, snap)
	}
}

// RunAutosaveLoop polls every AutosaveInterval and saves the active
// session if its layoutVersion has moved since the last save. Intended
// to run in its own goroutine for the lifetime of the process; Stop
// ends it.
func (m *Manager) RunAutosaveLoop() {
	ticker := time.NewTicker(AutosaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			dirty := m.active != nil && m.engine.Version != m.lastSavedVersion
			m.mu.Unlock()
			if dirty {
				m.runDebouncedSave()
			}
		case <-m.stopCh:
			return
		}
	}
}

// Stop ends the autosave loop.
func (m *Manager) Stop() {
	close(m.stopCh)
}

// ListIDs returns every persisted session id, for the caller to decide
// what to do when none exist yet or which to resume on startup.
func (m *Manager) ListIDs() ([]string, error) {
	return m.store.List()
}

// ActiveID returns the store's last-recorded active session id, or ""
// if none has ever been set.
func (m *Manager) ActiveID() (string, error) {
	m.mu.Lock()
	if m.active != nil {
		id := m.active.ID
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()
	return m.store.GetActive()
}

// timeNow is a seam so tests can't accidentally depend on wall-clock
// flakiness; production always uses time.Now.
var timeNow = time.Now
