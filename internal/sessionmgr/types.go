// Package sessionmgr implements named sessions (bundles of workspaces),
// active-session tracking, suspend/resume of PTYs across a session
// switch, and on-disk persistence (spec §4.G).
package sessionmgr

import (
	"time"

	"github.com/openmux/openmux/internal/version"
)

// Session is one persisted bundle of workspaces plus the bookkeeping the
// Layout Engine's loadSession action needs to restore it, and the
// per-pane cwd/last-command hints used when a resumed pane's PTY turns
// out to be dead and must be recreated lazily.
type Session struct {
	ID             string
	Name           string
	CreatedAt      time.Time
	LastSwitchedAt time.Time

	// EngineVersion is the build that last wrote this file, stamped on
	// every save so a future engine version can detect and migrate an
	// older on-disk shape before trusting it.
	EngineVersion string

	Workspaces        []WorkspaceSnapshot
	ActiveWorkspaceID int

	// CWDMap/CommandMap are keyed by paneId, carried across switchSession
	// so a pane whose PTY could not be resumed can still be recreated in
	// roughly the place the user left it (spec §4.G step 4).
	CWDMap     map[int]string
	CommandMap map[int]string

	// PaneToPty is the paneId -> ptyId binding at the moment this session
	// was last saved; switchSession's resume step tries to rebind these.
	PaneToPty map[int]string
}

// WorkspaceSnapshot is the on-disk shape of one layout.Workspace (spec
// §6): a plain data mirror of layout.SessionWorkspace, kept separate so
// this package's file format doesn't force an import of internal/layout
// into every consumer of the store.
type WorkspaceSnapshot struct {
	ID               int
	Label            string
	LayoutMode       int
	SplitRatio       float64
	MainPane         *PaneSnapshot
	Stack            []*PaneSnapshot
	ActiveStackIndex int
	Zoomed           bool
}

// PaneSnapshot is the on-disk shape of one layout.Pane.
type PaneSnapshot struct {
	ID    int
	PtyID string
	Title string
}

// TemplateNode is a recursive workspace-tree shape used by session
// templates (spec §6): either a binary split of two subtrees, or a leaf
// describing one pane to materialize.
type TemplateNode struct {
	Type        string // "split" or "leaf"
	Orientation string // "vertical" | "horizontal", meaningful only when Type == "split"
	Ratio       float64
	First       *TemplateNode
	Second      *TemplateNode

	// Leaf fields, meaningful only when Type == "leaf".
	Title string
	CWD   string
}

// Template is the on-disk shape of a named workspace-tree preset (spec
// §6: templates/<templateId>.template).
type Template struct {
	ID         string
	Name       string
	Defaults   map[string]string
	Workspaces []TemplateNode
}

// PaneSpec is one pane to create when materializing a template, paired
// with the rectangle-free layout position it should take (split vs
// stack membership is implied by materialization order: the first leaf
// reached becomes main, every subsequent leaf is appended to the stack).
type PaneSpec struct {
	Title string
	CWD   string
}

// Materialize flattens a template's recursive split tree into an
// ordered list of panes, depth-first, first-before-second. The Session
// Manager uses this ordering directly: the first PaneSpec becomes a
// workspace's main pane, the rest populate its stack in order.
func Materialize(node *TemplateNode) []PaneSpec {
	if node == nil {
		return nil
	}
	if node.Type == "leaf" {
		return []PaneSpec{{Title: node.Title, CWD: node.CWD}}
	}
	specs := Materialize(node.First)
	specs = append(specs, Materialize(node.Second)...)
	return specs
}
