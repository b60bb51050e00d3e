package cmd

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/openmux/openmux/internal/aggregate"
	"github.com/openmux/openmux/internal/ctl"
	"github.com/openmux/openmux/internal/engine"
	"github.com/openmux/openmux/internal/layout"
)

// daemonServer dispatches one ctl.Request per connection against a live
// engine.Engine. Handlers are deliberately thin: all real behavior lives
// in the engine/layout/sessionmgr packages, this just decodes args and
// calls through.
type daemonServer struct {
	engine *engine.Engine
}

func (s *daemonServer) handle(conn net.Conn) {
	defer conn.Close()

	var req ctl.Request
	dec := json.NewDecoder(conn)
	if err := dec.Decode(&req); err != nil {
		writeResponse(conn, ctl.Err(fmt.Errorf("decode request: %w", err)))
		return
	}

	resp := s.dispatch(req)
	writeResponse(conn, resp)
}

func writeResponse(conn net.Conn, resp ctl.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	conn.Write(append(data, '\n'))
}

func (s *daemonServer) dispatch(req ctl.Request) ctl.Response {
	switch req.Op {
	case "new-session":
		return s.newSession(req)
	case "switch-session":
		return s.switchSession(req)
	case "list-sessions":
		return s.listSessions()
	case "new-pane":
		return s.newPane(req)
	case "close-pane":
		s.engine.ClosePane()
		return ctl.Ok(struct{}{})
	case "resize":
		return s.resize(req)
	case "navigate":
		return s.navigate(req)
	case "focus":
		return s.focus(req)
	case "layout":
		return s.layoutState()
	case "ps":
		return s.ps(req)
	default:
		return ctl.Err(fmt.Errorf("unknown op %q", req.Op))
	}
}

type newSessionArgs struct {
	Name string `json:"name"`
}

func (s *daemonServer) newSession(req ctl.Request) ctl.Response {
	var args newSessionArgs
	if err := ctl.Decode(req, &args); err != nil {
		return ctl.Err(err)
	}
	sess, err := s.engine.Sessions.CreateSession(args.Name)
	if err != nil {
		return ctl.Err(err)
	}
	return ctl.Ok(sess)
}

type switchSessionArgs struct {
	ID string `json:"id"`
}

func (s *daemonServer) switchSession(req ctl.Request) ctl.Response {
	var args switchSessionArgs
	if err := ctl.Decode(req, &args); err != nil {
		return ctl.Err(err)
	}
	missing, err := s.engine.Sessions.SwitchSession(args.ID)
	if err != nil {
		return ctl.Err(err)
	}
	return ctl.Ok(struct {
		MissingPaneIDs []int `json:"missingPaneIds"`
	}{MissingPaneIDs: missing})
}

func (s *daemonServer) listSessions() ctl.Response {
	ids, err := s.engine.Sessions.ListIDs()
	if err != nil {
		return ctl.Err(err)
	}
	return ctl.Ok(ids)
}

type newPaneArgs struct {
	Title string `json:"title"`
	Shell string `json:"shell"`
	Cwd   string `json:"cwd"`
	Cols  int    `json:"cols"`
	Rows  int    `json:"rows"`
}

func (s *daemonServer) newPane(req ctl.Request) ctl.Response {
	var args newPaneArgs
	if err := ctl.Decode(req, &args); err != nil {
		return ctl.Err(err)
	}
	if args.Cols <= 0 {
		args.Cols = 80
	}
	if args.Rows <= 0 {
		args.Rows = 24
	}
	pane, err := s.engine.NewWorkspacePane(args.Title, args.Shell, args.Cwd, args.Cols, args.Rows)
	if err != nil {
		return ctl.Err(err)
	}
	return ctl.Ok(pane)
}

type resizeArgs struct {
	X, Y, Width, Height int
}

func (s *daemonServer) resize(req ctl.Request) ctl.Response {
	var args resizeArgs
	if err := ctl.Decode(req, &args); err != nil {
		return ctl.Err(err)
	}
	s.engine.Resize(layout.Rectangle{X: args.X, Y: args.Y, Width: args.Width, Height: args.Height})
	return ctl.Ok(struct{}{})
}

type navigateArgs struct {
	Direction string `json:"direction"`
}

func (s *daemonServer) navigate(req ctl.Request) ctl.Response {
	var args navigateArgs
	if err := ctl.Decode(req, &args); err != nil {
		return ctl.Err(err)
	}
	dir, ok := parseDirection(args.Direction)
	if !ok {
		return ctl.Err(fmt.Errorf("unknown direction %q", args.Direction))
	}
	s.engine.Layout.Navigate(dir)
	s.engine.Sessions.NotifyLayoutChanged()
	return ctl.Ok(struct{}{})
}

func parseDirection(s string) (layout.Direction, bool) {
	switch s {
	case "north":
		return layout.DirNorth, true
	case "south":
		return layout.DirSouth, true
	case "east":
		return layout.DirEast, true
	case "west":
		return layout.DirWest, true
	default:
		return 0, false
	}
}

type focusArgs struct {
	PaneID int `json:"paneId"`
}

func (s *daemonServer) focus(req ctl.Request) ctl.Response {
	var args focusArgs
	if err := ctl.Decode(req, &args); err != nil {
		return ctl.Err(err)
	}
	s.engine.Layout.FocusPane(args.PaneID)
	s.engine.Sessions.NotifyLayoutChanged()
	return ctl.Ok(struct{}{})
}

func (s *daemonServer) layoutState() ctl.Response {
	ws := s.engine.Layout.Active()
	if ws == nil {
		return ctl.Ok(nil)
	}
	return ctl.Ok(ws)
}

type psArgs struct {
	Query string `json:"query"`
}

func (s *daemonServer) ps(req ctl.Request) ctl.Response {
	var args psArgs
	if err := ctl.Decode(req, &args); err != nil {
		return ctl.Err(err)
	}
	var entries []aggregate.Entry
	if args.Query == "" {
		entries = s.engine.Index.List()
	} else {
		entries = s.engine.Index.Filter(args.Query)
	}
	return ctl.Ok(entries)
}
