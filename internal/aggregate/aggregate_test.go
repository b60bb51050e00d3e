package aggregate

import (
	"testing"

	"github.com/openmux/openmux/internal/gitstatus"
)

func TestFilterMatchesAnyFieldAnyTerm(t *testing.T) {
	idx := New()
	idx.Upsert(Entry{PTYID: "a", Cwd: "/home/user/openmux", GitBranch: "main", ForegroundProcess: "vim"})
	idx.Upsert(Entry{PTYID: "b", Cwd: "/tmp/scratch", GitBranch: "feature-x", ForegroundProcess: "bash"})

	got := idx.Filter("openmux")
	if len(got) != 1 || got[0].PTYID != "a" {
		t.Fatalf("got %+v", got)
	}

	got = idx.Filter("VIM scratch")
	if len(got) != 2 {
		t.Fatalf("expected both entries to match (OR across terms/fields), got %+v", got)
	}
}

func TestFilterEmptyQueryReturnsAll(t *testing.T) {
	idx := New()
	idx.Upsert(Entry{PTYID: "a"})
	idx.Upsert(Entry{PTYID: "b"})
	if len(idx.Filter("  ")) != 2 {
		t.Errorf("expected all entries for blank query")
	}
}

func TestActiveExcludesBareShell(t *testing.T) {
	idx := New()
	idx.Upsert(Entry{PTYID: "a", Shell: "/bin/zsh", ForegroundProcess: "/bin/zsh"})
	idx.Upsert(Entry{PTYID: "b", Shell: "/bin/zsh", ForegroundProcess: "vim"})
	idx.Upsert(Entry{PTYID: "c", Shell: "/bin/zsh", ForegroundProcess: ""})

	active := idx.Active()
	if len(active) != 1 || active[0].PTYID != "b" {
		t.Fatalf("got %+v", active)
	}
}

func TestApplyGitStatusBroadcastsByRepoKey(t *testing.T) {
	idx := New()
	idx.Upsert(Entry{PTYID: "a", GitRepoKey: "/repo"})
	idx.Upsert(Entry{PTYID: "b", GitRepoKey: "/repo"})
	idx.Upsert(Entry{PTYID: "c", GitRepoKey: "/other"})

	idx.ApplyGitStatus("/repo", gitstatus.Status{Branch: "main", Dirty: true})

	for _, e := range idx.List() {
		if e.GitRepoKey == "/repo" {
			if e.GitBranch != "main" || !e.GitDirty {
				t.Errorf("entry %s not updated: %+v", e.PTYID, e)
			}
		} else if e.GitBranch != "" {
			t.Errorf("entry %s unexpectedly updated", e.PTYID)
		}
	}
}

func TestSetRepoKeyThenApply(t *testing.T) {
	idx := New()
	idx.Upsert(Entry{PTYID: "a"})
	idx.SetRepoKey("a", "/repo")
	idx.ApplyDiffStats("/repo", gitstatus.DiffStats{FilesChanged: 3})

	list := idx.List()
	if len(list) != 1 || list[0].GitDiffStats == nil || list[0].GitDiffStats.FilesChanged != 3 {
		t.Fatalf("got %+v", list)
	}
}
