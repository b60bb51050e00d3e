package layout

// recomputeAll recomputes rectangles for every workspace against the
// current viewport (called on setViewport, setLayoutMode, toggleZoom, and
// anything else that changes geometry without changing membership).
func (e *Engine) recomputeAll() {
	for _, ws := range e.Workspaces {
		recomputeWorkspace(ws, e.Viewport)
	}
}

// recomputeWorkspace applies the master-stack rectangle algorithm (spec
// §4.F) to one workspace in place.
func recomputeWorkspace(ws *Workspace, vp Rectangle) {
	if ws.MainPane == nil {
		return
	}
	if ws.Zoomed {
		recomputeZoomed(ws, vp)
		return
	}
	if len(ws.Stack) == 0 {
		ws.MainPane.Rectangle = &vp
		return
	}
	switch ws.LayoutMode {
	case LayoutHorizontal:
		recomputeHorizontal(ws, vp)
	case LayoutStacked:
		recomputeStacked(ws, vp)
	default:
		recomputeVertical(ws, vp)
	}
}

// recomputeZoomed gives the focused pane the full viewport; every other
// pane (main included, if it isn't focused) gets no rectangle.
func recomputeZoomed(ws *Workspace, vp Rectangle) {
	ws.MainPane.Rectangle = nil
	for _, p := range ws.Stack {
		p.Rectangle = nil
	}
	if ws.FocusedIsMain {
		ws.MainPane.Rectangle = &vp
		return
	}
	if ws.ActiveStackIndex >= 0 && ws.ActiveStackIndex < len(ws.Stack) {
		ws.Stack[ws.ActiveStackIndex].Rectangle = &vp
	}
}

// splitTwo divides total into (main, rest) along one axis at ratio r,
// attaching any fractional remainder to the larger side: the stack when
// r < 0.5, main otherwise (spec §4.F tie-break rule). Whichever side is
// NOT the remainder-receiver is computed with floor and the other is
// total minus that, so main+rest always equals total exactly.
func splitTwo(total int, r float64) (main, rest int) {
	if r < 0.5 {
		main = int(float64(total) * r)
		rest = total - main
		return main, rest
	}
	rest = int(float64(total) * (1 - r))
	main = total - rest
	return main, rest
}

func recomputeVertical(ws *Workspace, vp Rectangle) {
	mainW, stackW := splitTwo(vp.Width, ws.SplitRatio)
	ws.MainPane.Rectangle = &Rectangle{X: vp.X, Y: vp.Y, Width: mainW, Height: vp.Height}
	stackX := vp.X + mainW
	distributeRows(ws.Stack, Rectangle{X: stackX, Y: vp.Y, Width: stackW, Height: vp.Height})
}

func recomputeHorizontal(ws *Workspace, vp Rectangle) {
	mainH, stackH := splitTwo(vp.Height, ws.SplitRatio)
	ws.MainPane.Rectangle = &Rectangle{X: vp.X, Y: vp.Y, Width: vp.Width, Height: mainH}
	stackY := vp.Y + mainH
	distributeCols(ws.Stack, Rectangle{X: vp.X, Y: stackY, Width: vp.Width, Height: stackH})
}

// recomputeStacked gives main the same geometry as Vertical, but only the
// active stack pane gets a rectangle (others are hidden behind a tab
// bar), offset by one row to leave room for that bar.
func recomputeStacked(ws *Workspace, vp Rectangle) {
	mainW, stackW := splitTwo(vp.Width, ws.SplitRatio)
	ws.MainPane.Rectangle = &Rectangle{X: vp.X, Y: vp.Y, Width: mainW, Height: vp.Height}
	stackX := vp.X + mainW
	for _, p := range ws.Stack {
		p.Rectangle = nil
	}
	if len(ws.Stack) == 0 {
		return
	}
	idx := ws.ActiveStackIndex
	if idx < 0 || idx >= len(ws.Stack) {
		idx = 0
	}
	const tabBarRows = 1
	h := vp.Height - tabBarRows
	if h < 0 {
		h = 0
	}
	ws.Stack[idx].Rectangle = &Rectangle{X: stackX, Y: vp.Y + tabBarRows, Width: stackW, Height: h}
}

// distributeRows splits vp's height into len(panes) equal rows (stacked
// vertically), remainder going to the last row.
func distributeRows(panes []*Pane, vp Rectangle) {
	n := len(panes)
	if n == 0 {
		return
	}
	each := vp.Height / n
	rem := vp.Height - each*n
	y := vp.Y
	for i, p := range panes {
		h := each
		if i == n-1 {
			h += rem
		}
		p.Rectangle = &Rectangle{X: vp.X, Y: y, Width: vp.Width, Height: h}
		y += h
	}
}

// distributeCols splits vp's width into len(panes) equal columns,
// remainder going to the last column.
func distributeCols(panes []*Pane, vp Rectangle) {
	n := len(panes)
	if n == 0 {
		return
	}
	each := vp.Width / n
	rem := vp.Width - each*n
	x := vp.X
	for i, p := range panes {
		w := each
		if i == n-1 {
			w += rem
		}
		p.Rectangle = &Rectangle{X: x, Y: vp.Y, Width: w, Height: vp.Height}
		x += w
	}
}
