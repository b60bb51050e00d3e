// Package engine is the wiring layer: it owns one instance of every core
// component (scrollback, worker pool, PTY registry, layout, sessions,
// subscription bus, aggregate index, git collector, keyboard router) and
// implements the data-plane/control-flow loop spec §2 describes —
// `child PTY -> bytes -> VT Emulator -> Dirty Update -> Subscription Bus`
// and `Keyboard -> Keyboard Router -> Layout/Session actions -> Layout
// Engine state -> new pane rectangles -> PTY resize -> Emulator resize`.
//
// No single teacher package plays this role (dcosson-h2's Session type
// wires one VT directly to one overlay; it never coordinates a pool of
// PTYs across a layout and multiple sessions), so the shape here —one
// struct owning every subsystem, a handful of methods that are themselves
// the only place two subsystems' calls are sequenced — is original,
// built directly from spec §2's two data-flow diagrams.
package engine

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/openmux/openmux/internal/aggregate"
	"github.com/openmux/openmux/internal/bus"
	"github.com/openmux/openmux/internal/config"
	"github.com/openmux/openmux/internal/gitstatus"
	"github.com/openmux/openmux/internal/keyboard"
	"github.com/openmux/openmux/internal/layout"
	"github.com/openmux/openmux/internal/naming"
	"github.com/openmux/openmux/internal/ptyservice"
	"github.com/openmux/openmux/internal/scrollback"
	"github.com/openmux/openmux/internal/sessionmgr"
	"github.com/openmux/openmux/internal/workerpool"
)

// DefaultShell is used when a pane is created with no explicit command.
const DefaultShell = "/bin/sh"

// Engine is the process-wide core: everything spec §1 calls THE CORE,
// assembled and sequenced.
type Engine struct {
	cfg config.EngineConfig

	Pool     *workerpool.Pool
	Scroll   *scrollback.Manager
	PTYs     *ptyservice.Service
	Layout   *layout.Engine
	Sessions *sessionmgr.Manager
	Bus      *bus.Bus
	Index    *aggregate.Index
	Git      *gitstatus.Collector
	Keys     *keyboard.Router

	mu      sync.Mutex
	cwdByID map[string]string // ptyID -> cwd, for aggregate entries and lazy-recreate
}

// New assembles every core component. sessionsDir is where session and
// template files live (spec §6); workers is the emulator worker pool
// size (spec §4.D default: min(4, cores)).
func New(sessionsDir string, workers int) (*Engine, error) {
	cfg := config.LoadEngineConfig()

	scrollDir := config.ScrollbackArchiveDir()
	scrollMgr := scrollback.NewManager(
		scrollDir,
		cfg.ScrollbackHotLimit,
		cfg.ScrollbackArchiveChunkLines,
		cfg.ScrollbackArchiveMaxMB,
		cfg.ScrollbackArchiveGlobalMaxMB,
		nil, // onTruncated is installed below, once e.Bus exists
	)

	pool := workerpool.NewPool(workers)
	ptys := ptyservice.NewService(pool, scrollMgr)
	layoutEngine := layout.New(layout.DefaultConfig())

	store, err := sessionmgr.NewFileStore(sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("engine: open session store: %w", err)
	}
	sessions := sessionmgr.NewManager(store, layoutEngine, ptys)

	e := &Engine{
		cfg:      cfg,
		Pool:     pool,
		Scroll:   scrollMgr,
		PTYs:     ptys,
		Layout:   layoutEngine,
		Sessions: sessions,
		Bus:      bus.New(func(r any) { fmt.Fprintf(os.Stderr, "openmux: subscriber panic: %v\n", r) }),
		Index:    aggregate.New(),
		Git:      gitstatus.NewCollector(0),
		Keys:     keyboard.New(nil),
		cwdByID:  make(map[string]string),
	}
	return e, nil
}

// Bootstrap ensures at least one session exists and is active, creating
// a default one (spec §4.G) if the store is empty.
func (e *Engine) Bootstrap() error {
	ids, err := e.Sessions.ListIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		name, _ := naming.UniqueName(nil)
		sess, err := e.Sessions.CreateSession(name)
		if err != nil {
			return err
		}
		_, err = e.Sessions.SwitchSession(sess.ID)
		return err
	}
	active, err := e.Sessions.ActiveID()
	if err != nil || active == "" {
		active = ids[0]
	}
	_, err = e.Sessions.SwitchSession(active)
	return err
}

// NewWorkspacePane implements the "Pane created lazily acquires a PTY"
// rule (spec §3 Lifecycles): newPane followed immediately by spawning a
// shell bound to it, since the engine — unlike the pure layout.Engine —
// is the layer allowed to talk to ptyservice.
func (e *Engine) NewWorkspacePane(title, shell, cwd string, cols, rows int) (*layout.Pane, error) {
	pane := e.Layout.NewPane(title)
	e.notifyLayoutChanged()

	if shell == "" {
		shell = DefaultShell
	}
	if cwd == "" {
		cwd = e.cfg.OriginalCWD
	}
	ptyID, err := e.spawnPaneShell(pane.ID, shell, cwd, cols, rows)
	if err != nil {
		return pane, err
	}
	e.Layout.SetPanePty(pane.ID, ptyID)
	return pane, nil
}

func (e *Engine) spawnPaneShell(paneID int, shell, cwd string, cols, rows int) (string, error) {
	ptyID, err := e.PTYs.Create(ptyservice.CreateOptions{
		Command: shell,
		Cols:    cols,
		Rows:    rows,
		Cwd:     cwd,
		Env:     capabilityEnv(),
	}, ptyservice.Subscribers{})
	if err != nil {
		return "", err
	}
	e.wireSubscribers(ptyID)

	e.mu.Lock()
	e.cwdByID[ptyID] = cwd
	e.mu.Unlock()

	e.Index.Upsert(aggregate.Entry{
		PTYID:     ptyID,
		SessionID: e.activeSessionID(),
		PaneID:    paneID,
		HasPane:   true,
		Cwd:       cwd,
		Shell:     shell,
	})
	e.refreshGitStatus(ptyID, cwd)

	return ptyID, nil
}

// wireSubscribers binds a PTY's callbacks to republish every event onto
// its Bus topic (spec §4.I), closing the seam ptyservice.Subscribers'
// own doc comment anticipates. Done via Rebind just after Create rather
// than passed to Create directly, since the topic is keyed by the ptyID
// Create itself allocates.
func (e *Engine) wireSubscribers(ptyID string) {
	topic := e.Bus.Topic(ptyID)
	e.PTYs.Rebind(ptyID, ptyservice.Subscribers{
		OnUnifiedUpdate: topic.PublishUpdate,
		OnScrollState:   topic.PublishScrollState,
		OnTitle:         topic.PublishTitle,
		OnExit: func(info ptyservice.ExitInfo) {
			topic.PublishExit(bus.ExitInfo{Code: info.Code, Signal: info.Signal})
		},
	})
}

// ClosePane closes the focused pane and destroys its bound PTY, if any
// (spec §3: "PTY destroyed ... on pane close (if bound)").
func (e *Engine) ClosePane() {
	ws := e.Layout.Active()
	if ws == nil {
		return
	}
	var ptyID string
	if ws.FocusedIsMain && ws.MainPane != nil {
		ptyID = ws.MainPane.PtyID
	} else if !ws.FocusedIsMain && ws.ActiveStackIndex < len(ws.Stack) {
		ptyID = ws.Stack[ws.ActiveStackIndex].PtyID
	}
	e.Layout.ClosePane()
	e.notifyLayoutChanged()
	if ptyID != "" {
		e.destroyPty(ptyID)
	}
}

func (e *Engine) destroyPty(ptyID string) {
	e.PTYs.Destroy(ptyID)
	e.Bus.Remove(ptyID)
	e.Index.Remove(ptyID)
	e.mu.Lock()
	delete(e.cwdByID, ptyID)
	e.mu.Unlock()
}

// Resize updates the viewport, recomputes every workspace's rectangles,
// and resizes every visible pane's PTY/emulator to match (spec §2's
// control-flow diagram: layout change -> PTY resize -> emulator resize).
func (e *Engine) Resize(viewport layout.Rectangle) {
	e.Layout.SetViewport(viewport)
	e.notifyLayoutChanged()
	ws := e.Layout.Active()
	if ws == nil {
		return
	}
	for _, p := range visiblePanes(ws) {
		if p.PtyID == "" || p.Rectangle == nil {
			continue
		}
		e.PTYs.Resize(p.PtyID, p.Rectangle.Width, p.Rectangle.Height)
	}
}

func visiblePanes(ws *layout.Workspace) []*layout.Pane {
	var out []*layout.Pane
	if ws.MainPane != nil {
		out = append(out, ws.MainPane)
	}
	out = append(out, ws.Stack...)
	return out
}

// notifyLayoutChanged tells the Session Manager a save-worthy mutation
// happened, per spec §4.F's layoutVersion contract.
func (e *Engine) notifyLayoutChanged() {
	e.Sessions.NotifyLayoutChanged()
}

func (e *Engine) activeSessionID() string {
	id, _ := e.Sessions.ActiveID()
	return id
}

// refreshGitStatus kicks off an async git status + diff-stats request
// for cwd and wires the Aggregate Index's repo key so future broadcasts
// (spec §4.H) reach this entry; the handles are polled by a background
// goroutine started here, so the caller is never blocked.
func (e *Engine) refreshGitStatus(ptyID, cwd string) {
	h, err := e.Git.StatusAsync(cwd)
	if err != nil {
		return
	}
	go func() {
		for {
			state, s, _, _ := h.Poll()
			if state == gitstatus.Pending {
				time.Sleep(20 * time.Millisecond)
				continue
			}
			if state == gitstatus.Ok {
				e.Index.SetRepoKey(ptyID, s.RepoKey)
				e.Index.ApplyGitStatus(s.RepoKey, s)
				if dh, err := e.Git.DiffStatsAsync(cwd); err == nil {
					dstate, _, d, _ := dh.Poll()
					for ; dstate == gitstatus.Pending; dstate, _, d, _ = dh.Poll() {
						time.Sleep(20 * time.Millisecond)
					}
					if dstate == gitstatus.Ok {
						e.Index.ApplyDiffStats(s.RepoKey, d)
					}
				}
			}
			return
		}
	}()
}

// capabilityEnv returns the small augmented-env capability hints spec §6
// documents for new PTYs (e.g. COLORTERM=truecolor when the host
// supports it), grounded on dcosson-h2/internal/cmd/term_colors.go's
// capability-hint detection via termenv/isatty: only probe real
// capabilities when stdout is an actual terminal.
func capabilityEnv() map[string]string {
	env := map[string]string{}
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return env
	}
	if termenv.NewOutput(os.Stdout).ColorProfile() == termenv.TrueColor {
		env["COLORTERM"] = "truecolor"
	}
	return env
}

// Shutdown stops every background loop and worker; safe to call once.
func (e *Engine) Shutdown() {
	e.Sessions.Stop()
	e.Pool.Stop()
	e.Git.Stop()
}
