// Package aggregate is the Aggregate Index (spec §4.H): a cross-session,
// continuously-updated view of every live PTY, with filter/active queries
// and git metadata merged in asynchronously by repo key.
//
// No teacher package tracks multiple sessions' PTYs at once (dcosson-h2's
// Session is a single long-lived wrapped process), so the entry map and
// its locking follow the same "map guarded by one mutex, read via a
// snapshot copy" shape used throughout this repo (bus.Bus.topics,
// workerpool.Pool.sessions) rather than a new concurrency idiom.
package aggregate

import (
	"strings"
	"sync"

	"github.com/openmux/openmux/internal/gitstatus"
)

// Entry describes one live PTY for cross-session enumeration (spec §4.H).
type Entry struct {
	PTYID             string
	SessionID         string
	PaneID            int
	HasPane           bool
	Cwd               string
	Shell             string
	ForegroundProcess string

	GitRepoKey    string
	GitBranch     string
	GitDirty      bool
	GitAhead      int
	GitBehind     int
	GitStashCount int
	GitDiffStats  *gitstatus.DiffStats
}

// Index holds the current Entry for every live PTY, keyed by PTY id.
type Index struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// New creates an empty Index.
func New() *Index {
	return &Index{entries: make(map[string]Entry)}
}

// Upsert inserts or replaces a PTY's entry, e.g. on PTY creation or pane
// binding change.
func (idx *Index) Upsert(e Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[e.PTYID] = e
}

// Remove drops a PTY's entry, e.g. on destroy.
func (idx *Index) Remove(ptyID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, ptyID)
}

// List returns the full set of tracked PTYs.
func (idx *Index) List() []Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]Entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	return out
}

// Filter splits query by whitespace and returns every entry where ANY
// term appears (case-insensitively) in cwd, git branch, or foreground
// process — OR across terms, OR across fields (spec §4.H).
func (idx *Index) Filter(query string) []Entry {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return idx.List()
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	var out []Entry
	for _, e := range idx.entries {
		if matchesAny(terms, e) {
			out = append(out, e)
		}
	}
	return out
}

func matchesAny(terms []string, e Entry) bool {
	fields := []string{
		strings.ToLower(e.Cwd),
		strings.ToLower(e.GitBranch),
		strings.ToLower(e.ForegroundProcess),
	}
	for _, term := range terms {
		for _, f := range fields {
			if strings.Contains(f, term) {
				return true
			}
		}
	}
	return false
}

// Active filters to PTYs whose foreground process is not just the shell,
// compared by basename case-insensitively (spec §4.H).
func (idx *Index) Active() []Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var out []Entry
	for _, e := range idx.entries {
		if !isJustShell(e) {
			out = append(out, e)
		}
	}
	return out
}

func isJustShell(e Entry) bool {
	if e.ForegroundProcess == "" {
		return true
	}
	return strings.EqualFold(basename(e.ForegroundProcess), basename(e.Shell))
}

func basename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ApplyGitStatus broadcasts a resolved git status to every entry sharing
// its repo key (spec §4.H: "an update tagged with a repoKey is broadcast
// to every PTY sharing that key").
func (idx *Index) ApplyGitStatus(repoKey string, s gitstatus.Status) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for id, e := range idx.entries {
		if e.GitRepoKey != repoKey {
			continue
		}
		e.GitBranch = s.Branch
		e.GitDirty = s.Dirty
		e.GitAhead = s.Ahead
		e.GitBehind = s.Behind
		e.GitStashCount = s.StashCount
		idx.entries[id] = e
	}
}

// ApplyDiffStats broadcasts resolved diff stats to every entry sharing
// repoKey.
func (idx *Index) ApplyDiffStats(repoKey string, d gitstatus.DiffStats) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for id, e := range idx.entries {
		if e.GitRepoKey != repoKey {
			continue
		}
		cp := d
		e.GitDiffStats = &cp
		idx.entries[id] = e
	}
}

// SetRepoKey tags an existing entry with the git repo key its cwd
// resolved to, so future ApplyGitStatus/ApplyDiffStats calls reach it.
func (idx *Index) SetRepoKey(ptyID, repoKey string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[ptyID]
	if !ok {
		return
	}
	e.GitRepoKey = repoKey
	idx.entries[ptyID] = e
}
