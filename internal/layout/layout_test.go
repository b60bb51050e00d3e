package layout

import "testing"

func newTestEngine() *Engine {
	e := New(DefaultConfig())
	e.SetViewport(Rectangle{X: 0, Y: 0, Width: 100, Height: 40})
	return e
}

func sumArea(rects ...*Rectangle) int {
	total := 0
	for _, r := range rects {
		if r == nil {
			continue
		}
		total += r.Width * r.Height
	}
	return total
}

func TestNewPaneBecomesMainThenStack(t *testing.T) {
	e := newTestEngine()
	p1 := e.NewPane("a")
	if e.Active().MainPane != p1 {
		t.Fatal("first pane should become main")
	}
	p2 := e.NewPane("b")
	if len(e.Active().Stack) != 1 || e.Active().Stack[0] != p2 {
		t.Fatal("second pane should land in the stack")
	}
	if e.Active().FocusedIsMain {
		t.Fatal("newly added stack pane should be focused")
	}
}

func TestGeometryVerticalSplitExactTotal(t *testing.T) {
	e := newTestEngine()
	e.NewPane("main")
	e.NewPane("s1")
	e.NewPane("s2")
	ws := e.Active()

	total := e.Viewport.Width * e.Viewport.Height
	got := sumArea(ws.MainPane.Rectangle, ws.Stack[0].Rectangle, ws.Stack[1].Rectangle)
	if got != total {
		t.Fatalf("rectangles cover %d cells, want %d", got, total)
	}
	if ws.MainPane.Rectangle.Width != 50 {
		t.Fatalf("main width = %d, want 50 at ratio 0.5", ws.MainPane.Rectangle.Width)
	}
}

func TestSplitTwoTieBreakRule(t *testing.T) {
	// total=101, r=0.5: floor(101*0.5)=50 goes to rest; main absorbs the
	// remainder since r is not < 0.5.
	main, rest := splitTwo(101, 0.5)
	if main+rest != 101 {
		t.Fatalf("main+rest = %d, want 101", main+rest)
	}
	if main != 51 || rest != 50 {
		t.Fatalf("at r=0.5 remainder should attach to main: got main=%d rest=%d", main, rest)
	}

	// r < 0.5: remainder attaches to rest (the stack side).
	main, rest = splitTwo(101, 0.3)
	if main+rest != 101 {
		t.Fatalf("main+rest = %d, want 101", main+rest)
	}
	wantMain := 30 // floor(101*0.3)
	if main != wantMain {
		t.Fatalf("main = %d, want %d", main, wantMain)
	}
	if rest != 101-wantMain {
		t.Fatalf("rest = %d, want %d", rest, 101-wantMain)
	}
}

func TestHorizontalLayoutGeometry(t *testing.T) {
	e := newTestEngine()
	e.SetLayoutMode(LayoutHorizontal)
	e.NewPane("main")
	e.NewPane("s1")
	ws := e.Active()

	if ws.MainPane.Rectangle.Y != 0 {
		t.Fatalf("main Y = %d, want 0", ws.MainPane.Rectangle.Y)
	}
	if ws.Stack[0].Rectangle.Y != ws.MainPane.Rectangle.Height {
		t.Fatalf("stack pane should start where main ends")
	}
	got := sumArea(ws.MainPane.Rectangle, ws.Stack[0].Rectangle)
	want := e.Viewport.Width * e.Viewport.Height
	if got != want {
		t.Fatalf("rectangles cover %d cells, want %d", got, want)
	}
}

func TestStackedLayoutOnlyActivePaneVisible(t *testing.T) {
	e := newTestEngine()
	e.SetLayoutMode(LayoutStacked)
	e.NewPane("main")
	e.NewPane("s1")
	e.NewPane("s2")
	ws := e.Active()

	if ws.Stack[0].Rectangle != nil {
		t.Fatal("inactive stack pane should have no rectangle")
	}
	if ws.Stack[1].Rectangle == nil {
		t.Fatal("active stack pane (most recently added) should have a rectangle")
	}
}

func TestToggleZoomGivesFocusedPaneFullViewport(t *testing.T) {
	e := newTestEngine()
	e.NewPane("main")
	e.NewPane("s1")
	e.ToggleZoom()
	ws := e.Active()

	if ws.MainPane.Rectangle != nil {
		t.Fatal("main should have no rectangle while a stack pane is zoomed")
	}
	r := ws.Stack[0].Rectangle
	if r == nil || r.Width != e.Viewport.Width || r.Height != e.Viewport.Height {
		t.Fatalf("zoomed focused pane should fill the viewport, got %+v", r)
	}
}

func TestClosePanePromotesStackZeroToMain(t *testing.T) {
	e := newTestEngine()
	main := e.NewPane("main")
	s1 := e.NewPane("s1")
	_ = s1
	e.FocusPane(main.ID)
	e.ClosePane()

	ws := e.Active()
	if ws.MainPane != s1 {
		t.Fatalf("expected stack[0] promoted to main, got %+v", ws.MainPane)
	}
	if len(ws.Stack) != 0 {
		t.Fatal("stack should be empty after promotion")
	}
}

func TestClosePaneEmptyWorkspaceIsRemoved(t *testing.T) {
	e := newTestEngine()
	e.SwitchWorkspace(2)
	p := e.NewPane("only")
	e.ClosePaneByID(p.ID)

	if _, ok := e.Workspaces[2]; ok {
		t.Fatal("workspace emptied by close should be removed")
	}
}

func TestNavigateVerticalCrossAndStackTraversal(t *testing.T) {
	e := newTestEngine()
	main := e.NewPane("main")
	e.NewPane("s1")
	e.NewPane("s2")
	ws := e.Active()

	e.FocusPane(main.ID)
	if !ws.FocusedIsMain {
		t.Fatal("expected focus on main")
	}
	e.Navigate(DirWest)
	if ws.FocusedIsMain {
		t.Fatal("west from main should cross into the stack")
	}
	if ws.ActiveStackIndex != 1 {
		t.Fatalf("expected stack focus to stay on most recent pane (index 1), got %d", ws.ActiveStackIndex)
	}

	e.Navigate(DirNorth)
	if ws.ActiveStackIndex != 0 {
		t.Fatalf("north should move back through the stack, got index %d", ws.ActiveStackIndex)
	}
	e.Navigate(DirNorth)
	if ws.ActiveStackIndex != 0 {
		t.Fatal("north at the first stack pane should not wrap")
	}

	e.Navigate(DirEast)
	if !ws.FocusedIsMain {
		t.Fatal("east from stack should cross back to main")
	}
}

func TestNavigateHorizontalUsesNorthSouthToCross(t *testing.T) {
	e := newTestEngine()
	e.SetLayoutMode(LayoutHorizontal)
	main := e.NewPane("main")
	e.NewPane("s1")
	ws := e.Active()

	e.FocusPane(main.ID)
	e.Navigate(DirNorth)
	if ws.FocusedIsMain {
		t.Fatal("north from main should cross into the stack in horizontal mode")
	}
	e.Navigate(DirSouth)
	if !ws.FocusedIsMain {
		t.Fatal("south from stack should cross back to main in horizontal mode")
	}
}

func TestSwapMainExchangesFocusedStackPaneWithMain(t *testing.T) {
	e := newTestEngine()
	main := e.NewPane("main")
	s1 := e.NewPane("s1")
	e.SwapMain()

	ws := e.Active()
	if ws.MainPane != s1 {
		t.Fatalf("expected s1 promoted to main, got %+v", ws.MainPane)
	}
	if len(ws.Stack) != 1 || ws.Stack[0] != main {
		t.Fatalf("expected old main pushed into the stack, got %+v", ws.Stack)
	}
	if !ws.FocusedIsMain {
		t.Fatal("focus should follow the swapped pane to main")
	}
}

func TestSetPanePtyDoesNotBumpVersion(t *testing.T) {
	e := newTestEngine()
	p := e.NewPane("main")
	v := e.Version
	e.SetPanePty(p.ID, "pty-1")
	if e.Version != v {
		t.Fatalf("SetPanePty bumped Version from %d to %d", v, e.Version)
	}
	if p.PtyID != "pty-1" {
		t.Fatal("pty id not bound")
	}
}

func TestSetPaneTitleBumpsVersion(t *testing.T) {
	e := newTestEngine()
	p := e.NewPane("main")
	v := e.Version
	e.SetPaneTitle(p.ID, "new title")
	if e.Version == v {
		t.Fatal("SetPaneTitle should bump Version")
	}
}

func TestLoadSessionAdvancesPaneIDCounterPastCollisions(t *testing.T) {
	e := newTestEngine()
	e.LoadSession([]SessionWorkspace{
		{
			ID:         1,
			LayoutMode: LayoutVertical,
			SplitRatio: 0.5,
			MainPane:   &Pane{ID: 50, Title: "restored-main"},
			Stack:      []*Pane{{ID: 51, Title: "restored-stack"}},
		},
	}, 1)

	p := e.NewPane("fresh")
	if p.ID <= 51 {
		t.Fatalf("new pane id %d collides with restored ids up to 51", p.ID)
	}

	ws := e.Active()
	if ws.MainPane.Rectangle == nil {
		t.Fatal("loadSession should recompute geometry for restored workspaces")
	}
}

func TestLoadSessionEmptyFallsBackToSingleWorkspace(t *testing.T) {
	e := newTestEngine()
	e.LoadSession(nil, 7)
	if e.ActiveWorkspaceID != 1 {
		t.Fatalf("expected fallback to workspace 1, got %d", e.ActiveWorkspaceID)
	}
	if _, ok := e.Workspaces[1]; !ok {
		t.Fatal("expected a default empty workspace to exist")
	}
}

func TestClearAllResetsToSingleEmptyWorkspace(t *testing.T) {
	e := newTestEngine()
	e.SwitchWorkspace(3)
	e.NewPane("a")
	e.ClearAll()

	if len(e.Workspaces) != 1 {
		t.Fatalf("expected exactly one workspace after ClearAll, got %d", len(e.Workspaces))
	}
	if e.ActiveWorkspaceID != 1 {
		t.Fatalf("expected workspace 1 active, got %d", e.ActiveWorkspaceID)
	}
	if e.Active().MainPane != nil {
		t.Fatal("expected the reset workspace to be empty")
	}
}

func TestSwitchWorkspaceCreatesUnknownWithDefaultMode(t *testing.T) {
	e := newTestEngine()
	e.SwitchWorkspace(9)
	ws := e.Active()
	if ws.ID != 9 {
		t.Fatalf("expected workspace 9 active, got %d", ws.ID)
	}
	if ws.LayoutMode != e.Config.DefaultMode {
		t.Fatal("new workspace should use the engine's default layout mode")
	}
}
