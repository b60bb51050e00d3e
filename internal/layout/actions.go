package layout

// SetViewport stores a new viewport and recomputes every workspace's
// rectangles (spec §4.F setViewport).
func (e *Engine) SetViewport(rect Rectangle) {
	e.Viewport = rect
	e.recomputeAll()
	e.bump()
}

// SwitchWorkspace makes id the active workspace, creating an empty one
// with the default layout mode if id is unknown.
func (e *Engine) SwitchWorkspace(id int) {
	if _, ok := e.Workspaces[id]; !ok {
		e.Workspaces[id] = newWorkspace(id, e.Config)
		recomputeWorkspace(e.Workspaces[id], e.Viewport)
	}
	e.ActiveWorkspaceID = id
	e.bump()
}

// SetLayoutMode changes the active workspace's layout mode and
// recomputes its rectangles.
func (e *Engine) SetLayoutMode(mode LayoutMode) {
	ws := e.Active()
	if ws == nil {
		return
	}
	ws.LayoutMode = mode
	recomputeWorkspace(ws, e.Viewport)
	e.bump()
}

// NewPane creates a pane in the active workspace: it becomes main if
// there is none, otherwise it's appended to the stack and focused.
func (e *Engine) NewPane(title string) *Pane {
	ws := e.Active()
	if ws == nil {
		return nil
	}
	p := &Pane{ID: e.allocPaneID(), Title: title}
	if ws.MainPane == nil {
		ws.MainPane = p
		ws.FocusedIsMain = true
	} else {
		ws.Stack = append(ws.Stack, p)
		ws.ActiveStackIndex = len(ws.Stack) - 1
		ws.FocusedIsMain = false
	}
	recomputeWorkspace(ws, e.Viewport)
	e.bump()
	return p
}

// ClosePane closes the currently focused pane in the active workspace.
func (e *Engine) ClosePane() {
	ws := e.Active()
	if ws == nil {
		return
	}
	if ws.FocusedIsMain {
		e.closeMain(ws)
	} else {
		e.closeStackIndex(ws, ws.ActiveStackIndex)
	}
	e.afterClose(ws)
}

// ClosePaneByID closes a specific pane in the active workspace by id,
// wherever it currently sits (main or stack).
func (e *Engine) ClosePaneByID(id int) {
	ws := e.Active()
	if ws == nil {
		return
	}
	if ws.MainPane != nil && ws.MainPane.ID == id {
		e.closeMain(ws)
		e.afterClose(ws)
		return
	}
	for i, p := range ws.Stack {
		if p.ID == id {
			e.closeStackIndex(ws, i)
			e.afterClose(ws)
			return
		}
	}
}

// closeMain drops the main pane, promoting stack[0] to main if present.
func (e *Engine) closeMain(ws *Workspace) {
	if len(ws.Stack) == 0 {
		ws.MainPane = nil
		return
	}
	ws.MainPane = ws.Stack[0]
	ws.Stack = ws.Stack[1:]
	if ws.ActiveStackIndex > 0 {
		ws.ActiveStackIndex--
	}
	ws.FocusedIsMain = true
}

// closeStackIndex removes stack[idx], shifting ActiveStackIndex toward
// the deletion (spec §4.F closePane).
func (e *Engine) closeStackIndex(ws *Workspace, idx int) {
	if idx < 0 || idx >= len(ws.Stack) {
		return
	}
	ws.Stack = append(ws.Stack[:idx], ws.Stack[idx+1:]...)
	if len(ws.Stack) == 0 {
		ws.ActiveStackIndex = 0
		ws.FocusedIsMain = ws.MainPane != nil
		return
	}
	if idx >= len(ws.Stack) {
		idx = len(ws.Stack) - 1
	}
	ws.ActiveStackIndex = idx
}

// afterClose deletes the workspace's record if it ended up empty (except
// when it is the active workspace and the only one left, which is kept),
// otherwise recomputes geometry; always bumps Version.
func (e *Engine) afterClose(ws *Workspace) {
	if ws.MainPane == nil && len(ws.Stack) == 0 {
		if ws.ID != e.ActiveWorkspaceID || len(e.Workspaces) > 1 {
			delete(e.Workspaces, ws.ID)
		}
	} else {
		recomputeWorkspace(ws, e.Viewport)
	}
	e.bump()
}

// FocusPane sets workspace focus to paneID: if it's in the stack,
// ActiveStackIndex follows it; if the workspace is zoomed, geometry is
// recomputed for the new focus.
func (e *Engine) FocusPane(paneID int) {
	ws := e.Active()
	if ws == nil {
		return
	}
	if ws.MainPane != nil && ws.MainPane.ID == paneID {
		ws.FocusedIsMain = true
		if ws.Zoomed {
			recomputeWorkspace(ws, e.Viewport)
		}
		e.bump()
		return
	}
	for i, p := range ws.Stack {
		if p.ID == paneID {
			ws.FocusedIsMain = false
			ws.ActiveStackIndex = i
			recomputeWorkspace(ws, e.Viewport)
			e.bump()
			return
		}
	}
}

// Navigate moves focus per spec §4.F's direction rules: vertical layout
// uses west to cross between main and stack, north/south to walk the
// stack; horizontal swaps the axis (north/south cross, west/east walk);
// stacked behaves like vertical but stack navigation advances
// ActiveStackIndex instead of changing which stack pane is visible by
// position.
func (e *Engine) Navigate(dir Direction) {
	ws := e.Active()
	if ws == nil || len(ws.Stack) == 0 {
		return
	}
	crossDir, fwdDir, backDir := DirWest, DirSouth, DirNorth
	if ws.LayoutMode == LayoutHorizontal {
		crossDir, fwdDir, backDir = DirNorth, DirEast, DirWest
	}

	if ws.FocusedIsMain {
		if dir == crossDir {
			ws.FocusedIsMain = false
			recomputeIfZoomed(ws, e.Viewport)
			e.bump()
		}
		return
	}

	switch dir {
	case crossDirOpposite(crossDir):
		ws.FocusedIsMain = true
		recomputeIfZoomed(ws, e.Viewport)
		e.bump()
	case fwdDir:
		if ws.ActiveStackIndex < len(ws.Stack)-1 {
			ws.ActiveStackIndex++
			recomputeIfZoomed(ws, e.Viewport)
			e.bump()
		}
	case backDir:
		if ws.ActiveStackIndex > 0 {
			ws.ActiveStackIndex--
			recomputeIfZoomed(ws, e.Viewport)
			e.bump()
		}
	}
}

func crossDirOpposite(d Direction) Direction {
	switch d {
	case DirWest:
		return DirEast
	case DirEast:
		return DirWest
	case DirNorth:
		return DirSouth
	default:
		return DirNorth
	}
}

func recomputeIfZoomed(ws *Workspace, vp Rectangle) {
	if ws.Zoomed || ws.LayoutMode == LayoutStacked {
		recomputeWorkspace(ws, vp)
	}
}

// SetPanePty binds ptyID to paneID without bumping Version (not
// persistence-worthy on its own, per spec §4.F).
func (e *Engine) SetPanePty(paneID int, ptyID string) {
	ws := e.Active()
	if ws == nil {
		return
	}
	if p := e.findPane(ws, paneID); p != nil {
		p.PtyID = ptyID
	}
}

// SetPaneTitle assigns a pane's title and bumps Version.
func (e *Engine) SetPaneTitle(paneID int, title string) {
	ws := e.Active()
	if ws == nil {
		return
	}
	if p := e.findPane(ws, paneID); p != nil {
		p.Title = title
		e.bump()
	}
}

// SetWorkspaceLabel assigns the active workspace's label and bumps
// Version.
func (e *Engine) SetWorkspaceLabel(label string) {
	ws := e.Active()
	if ws == nil {
		return
	}
	ws.Label = label
	e.bump()
}

func (e *Engine) findPane(ws *Workspace, paneID int) *Pane {
	if ws.MainPane != nil && ws.MainPane.ID == paneID {
		return ws.MainPane
	}
	for _, p := range ws.Stack {
		if p.ID == paneID {
			return p
		}
	}
	return nil
}

// SwapMain swaps the focused stack pane with main.
func (e *Engine) SwapMain() {
	ws := e.Active()
	if ws == nil || ws.FocusedIsMain || len(ws.Stack) == 0 {
		return
	}
	idx := ws.ActiveStackIndex
	if idx < 0 || idx >= len(ws.Stack) {
		return
	}
	ws.MainPane, ws.Stack[idx] = ws.Stack[idx], ws.MainPane
	ws.FocusedIsMain = true
	recomputeWorkspace(ws, e.Viewport)
	e.bump()
}

// ToggleZoom flips the active workspace's zoomed flag and recomputes.
func (e *Engine) ToggleZoom() {
	ws := e.Active()
	if ws == nil {
		return
	}
	ws.Zoomed = !ws.Zoomed
	recomputeWorkspace(ws, e.Viewport)
	e.bump()
}

// SessionWorkspace is the serialized shape LoadSession accepts for one
// workspace (spec §4.F loadSession / §6 session on-disk layout).
type SessionWorkspace struct {
	ID               int
	Label            string
	LayoutMode       LayoutMode
	SplitRatio       float64
	MainPane         *Pane
	Stack            []*Pane
	ActiveStackIndex int
	Zoomed           bool
}

// LoadSession replaces the engine's state wholesale, recomputes every
// workspace, and advances the pane-id counter past every incoming id so
// newly created panes never collide with restored ones (spec §4.F).
func (e *Engine) LoadSession(workspaces []SessionWorkspace, activeWorkspaceID int) {
	e.Workspaces = make(map[int]*Workspace)
	maxID := 0
	for _, sw := range workspaces {
		ws := &Workspace{
			ID:               sw.ID,
			Label:            sw.Label,
			LayoutMode:       sw.LayoutMode,
			SplitRatio:       sw.SplitRatio,
			MainPane:         sw.MainPane,
			Stack:            sw.Stack,
			ActiveStackIndex: sw.ActiveStackIndex,
			Zoomed:           sw.Zoomed,
			FocusedIsMain:    true,
		}
		if ws.SplitRatio <= 0 || ws.SplitRatio >= 1 {
			ws.SplitRatio = e.Config.DefaultSplitRatio
		}
		if ws.MainPane != nil && ws.MainPane.ID > maxID {
			maxID = ws.MainPane.ID
		}
		for _, p := range ws.Stack {
			if p.ID > maxID {
				maxID = p.ID
			}
		}
		e.Workspaces[ws.ID] = ws
	}
	if len(e.Workspaces) == 0 {
		e.Workspaces[1] = newWorkspace(1, e.Config)
		activeWorkspaceID = 1
	}
	e.ActiveWorkspaceID = activeWorkspaceID
	if e.nextPaneID <= maxID {
		e.nextPaneID = maxID + 1
	}
	e.recomputeAll()
	e.bump()
}

// ClearAll resets the engine to a single empty workspace with id 1.
func (e *Engine) ClearAll() {
	e.Workspaces = map[int]*Workspace{1: newWorkspace(1, e.Config)}
	e.ActiveWorkspaceID = 1
	e.nextPaneID = 1
	e.bump()
}
