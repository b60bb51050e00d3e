package naming

import "testing"

func TestUniqueNameAvoidsExisting(t *testing.T) {
	first, err := UniqueName(nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := UniqueName([]string{first})
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("expected distinct names, got %q twice", first)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	if Generate(5) != Generate(5) {
		t.Errorf("Generate should be deterministic for a given seq")
	}
}

func TestAutoIncrementFindsMax(t *testing.T) {
	got := AutoIncrement("workspace", []string{"workspace-1", "workspace-3", "other-9"})
	if got != "workspace-4" {
		t.Errorf("got %q, want workspace-4", got)
	}
}

func TestAutoIncrementNoneMatch(t *testing.T) {
	got := AutoIncrement("workspace", []string{"other-9"})
	if got != "workspace-1" {
		t.Errorf("got %q, want workspace-1", got)
	}
}
