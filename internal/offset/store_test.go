package offset

import (
	"path/filepath"
	"testing"
)

func TestStore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state", "offsets.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}

	if _, found, err := s.Get("a.gz"); err != nil || found {
		t.Fatalf("get on empty store: %v, %v", found, err)
	}
	if err := s.Set("a.gz", 123456789012); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(filepath.Join(dir, "b.txt"), 42); err != nil {
		t.Fatal(err)
	}
	if off, found, err := s.Get("a.gz"); err != nil || !found || off != 123456789012 {
		t.Errorf("get a.gz: %d, %v, %v", off, found, err)
	}

	// Survives reopening.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s, err = Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	all, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	abs, _ := filepath.Abs("a.gz")
	if len(all) != 2 || all[abs] != 123456789012 || all[filepath.Join(dir, "b.txt")] != 42 {
		t.Errorf("list: %v", all)
	}

	if err := s.Delete("a.gz"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := s.Get("a.gz"); found {
		t.Error("offset still there after delete")
	}
	if err := s.Delete("never-set"); err != nil {
		t.Error("delete of a missing key:", err)
	}
}
