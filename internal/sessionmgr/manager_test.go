package sessionmgr

import (
	"sync"
	"testing"
	"time"

	"github.com/openmux/openmux/internal/layout"
)

type fakePtyRegistry struct {
	mu        sync.Mutex
	alive     map[string]bool
	suspended []string
}

func newFakePtyRegistry() *fakePtyRegistry {
	return &fakePtyRegistry{alive: make(map[string]bool)}
}

func (f *fakePtyRegistry) IsAlive(ptyID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[ptyID]
}

func (f *fakePtyRegistry) Suspend(ptyID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspended = append(f.suspended, ptyID)
}

func newTestManager(t *testing.T) (*Manager, *fakePtyRegistry) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	engine := layout.New(layout.DefaultConfig())
	engine.SetViewport(layout.Rectangle{Width: 80, Height: 24})
	ptys := newFakePtyRegistry()
	return NewManager(store, engine, ptys), ptys
}

func TestCreateSessionSavesPreviousActiveFirst(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.CreateSession("first")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	m.active = first

	m.engine.NewPane("shell")
	m.NotifyLayoutChanged()

	if _, err := m.CreateSession("second"); err != nil {
		t.Fatalf("CreateSession second: %v", err)
	}

	reloaded, err := m.store.Load(first.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reloaded.Workspaces) == 0 || reloaded.Workspaces[0].MainPane == nil {
		t.Fatalf("expected first session's pane to be persisted before switching away, got %+v", reloaded.Workspaces)
	}
}

func TestSwitchSessionSuspendsThenReportsMissingPanes(t *testing.T) {
	m, ptys := newTestManager(t)

	a, err := m.CreateSession("a")
	if err != nil {
		t.Fatalf("CreateSession a: %v", err)
	}
	m.active = a
	p := m.engine.NewPane("shell")
	m.engine.SetPanePty(p.ID, "pty-alive")
	ptys.alive["pty-alive"] = true
	m.syncActiveFromEngineLocked()
	if err := m.store.Save(a.ID, a); err != nil {
		t.Fatalf("Save a: %v", err)
	}

	b, err := m.CreateSession("b")
	if err != nil {
		t.Fatalf("CreateSession b: %v", err)
	}
	// b has a pane bound to a pty that will not survive the switch.
	bp := &PaneSnapshot{ID: 99, PtyID: "pty-dead", Title: "dead"}
	b.Workspaces = []WorkspaceSnapshot{{ID: 1, LayoutMode: int(layout.LayoutVertical), SplitRatio: 0.5, MainPane: bp}}
	b.ActiveWorkspaceID = 1
	b.PaneToPty = map[int]string{99: "pty-dead"}
	if err := m.store.Save(b.ID, b); err != nil {
		t.Fatalf("Save b: %v", err)
	}
	m.sessions[b.ID] = b

	m.active = a
	missing, err := m.SwitchSession(b.ID)
	if err != nil {
		t.Fatalf("SwitchSession: %v", err)
	}

	if len(missing) != 1 || missing[0] != 99 {
		t.Fatalf("expected pane 99 reported missing, got %v", missing)
	}

	ptys.mu.Lock()
	suspendedAlive := false
	for _, id := range ptys.suspended {
		if id == "pty-alive" {
			suspendedAlive = true
		}
	}
	ptys.mu.Unlock()
	if !suspendedAlive {
		t.Fatal("expected the outgoing session's live pty to be suspended, not destroyed")
	}

	if m.engine.Active().MainPane != nil {
		t.Fatal("expected the pane bound to a dead pty to be pruned from the loaded layout")
	}
}

func TestNotifyLayoutChangedCoalescesWhileSaveInFlight(t *testing.T) {
	m, _ := newTestManager(t)
	sess, err := m.CreateSession("x")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	m.active = sess

	m.mu.Lock()
	m.saveInFlight = true
	m.mu.Unlock()

	m.engine.NewPane("one")
	m.NotifyLayoutChanged()

	m.mu.Lock()
	queued := m.saveQueued
	m.mu.Unlock()
	if !queued {
		t.Fatal("expected NotifyLayoutChanged to mark a save queued while one is in flight")
	}

	m.mu.Lock()
	m.saveInFlight = false
	m.mu.Unlock()
	m.runDebouncedSave() // simulate the in-flight save finishing and requeuing

	waitUntil(t, time.Second, func() bool {
		reloaded, err := m.store.Load(sess.ID)
		return err == nil && len(reloaded.Workspaces) > 0 && reloaded.Workspaces[0].MainPane != nil
	})
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDeleteSessionSwitchesToMostRecentRemaining(t *testing.T) {
	m, _ := newTestManager(t)

	a, _ := m.CreateSession("a")
	m.active = a
	time.Sleep(2 * time.Millisecond)
	b, _ := m.CreateSession("b")
	m.active = b
	if err := m.store.SetActive(b.ID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	if err := m.DeleteSession(b.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	if m.active == nil || m.active.ID != a.ID {
		t.Fatalf("expected session a to become active after deleting b, got %+v", m.active)
	}
}
