package socketdir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		socketType, name string
		want             string
	}{
		{TypeDaemon, "main", "daemon.main.sock"},
		{TypeCtl, "attach-1", "ctl.attach-1.sock"},
	}
	for _, tt := range tests {
		got := Format(tt.socketType, tt.name)
		if got != tt.want {
			t.Errorf("Format(%q, %q) = %q, want %q", tt.socketType, tt.name, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		filename string
		wantType string
		wantName string
		wantOK   bool
	}{
		{"daemon.main.sock", TypeDaemon, "main", true},
		{"ctl.attach-1.sock", TypeCtl, "attach-1", true},
		{"notasocket.txt", "", "", false},
		{"noperiod.sock", "", "", false},
		{".sock", "", "", false},
		{"onlyone.sock", "", "", false},
		{"daemon..sock", TypeDaemon, "", true},
	}
	for _, tt := range tests {
		entry, ok := Parse(tt.filename)
		if ok != tt.wantOK {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.filename, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if entry.Type != tt.wantType || entry.Name != tt.wantName {
			t.Errorf("Parse(%q) = %+v", tt.filename, entry)
		}
	}
}

func TestPath(t *testing.T) {
	got := Path(TypeDaemon, "main")
	want := filepath.Join(Dir(), "daemon.main.sock")
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "daemon.main.sock"), nil, 0o600)
	os.WriteFile(filepath.Join(dir, "ctl.helper.sock"), nil, 0o600)

	t.Run("single match", func(t *testing.T) {
		path, err := FindIn(dir, "main")
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(dir, "daemon.main.sock"); path != want {
			t.Errorf("got %q, want %q", path, want)
		}
	})

	t.Run("no match", func(t *testing.T) {
		if _, err := FindIn(dir, "nonexistent"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("ambiguous match", func(t *testing.T) {
		os.WriteFile(filepath.Join(dir, "ctl.main.sock"), nil, 0o600)
		if _, err := FindIn(dir, "main"); err == nil {
			t.Fatal("expected ambiguity error")
		}
	})
}

func TestListAndListByType(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "daemon.main.sock"), nil, 0o600)
	os.WriteFile(filepath.Join(dir, "daemon.second.sock"), nil, 0o600)
	os.WriteFile(filepath.Join(dir, "ctl.one.sock"), nil, 0o600)
	os.WriteFile(filepath.Join(dir, "random.txt"), nil, 0o600)
	os.WriteFile(filepath.Join(dir, "old-format.sock"), nil, 0o600)

	entries, err := ListIn(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}

	daemons, err := ListByTypeIn(dir, TypeDaemon)
	if err != nil {
		t.Fatal(err)
	}
	if len(daemons) != 2 {
		t.Errorf("expected 2 daemon entries, got %d", len(daemons))
	}

	ctls, err := ListByTypeIn(dir, TypeCtl)
	if err != nil {
		t.Fatal(err)
	}
	if len(ctls) != 1 {
		t.Errorf("expected 1 ctl entry, got %d", len(ctls))
	}
}

func TestListInEmptyOrMissingDir(t *testing.T) {
	entries, err := ListIn(t.TempDir())
	if err != nil || len(entries) != 0 {
		t.Errorf("expected 0 entries, nil err; got %v, %v", entries, err)
	}

	entries, err = ListIn(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil || entries != nil {
		t.Errorf("expected nil, nil for a missing dir; got %v, %v", entries, err)
	}
}

func TestDirEndsInSockets(t *testing.T) {
	if filepath.Base(Dir()) != "sockets" {
		t.Errorf("Dir() = %q, expected basename 'sockets'", Dir())
	}
}
