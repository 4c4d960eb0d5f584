package client

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	s, err := OpenFileStorage(path)
	if err != nil {
		t.Fatalf("OpenFileStorage() error = %v", err)
	}
	if err := saveJSON(s, "count", 3); err != nil {
		t.Fatalf("saveJSON() error = %v", err)
	}
	if err := s.Set("gone", []byte(`"x"`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Remove("gone"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := s.Set("bad", []byte("{not json")); err == nil {
		t.Error("Set() accepted invalid JSON")
	}

	reopened, err := OpenFileStorage(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	var count int
	found, err := loadJSON(reopened, "count", &count)
	if err != nil || !found || count != 3 {
		t.Errorf("loadJSON() = %v, %v, count %d; want true, nil, 3", found, err, count)
	}
	if _, ok, _ := reopened.Get("gone"); ok {
		t.Error("removed key survived reopen")
	}
}

func TestFileStorageMovesCorruptFileAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := OpenFileStorage(path)
	if err != nil {
		t.Fatalf("OpenFileStorage() error = %v", err)
	}
	if _, ok, _ := s.Get("anything"); ok {
		t.Error("corrupt storage returned a value")
	}
	if _, err := os.Stat(path + ".backup"); err != nil {
		t.Errorf("backup file missing: %v", err)
	}
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	if found, err := loadJSON(s, "missing", new(int)); found || err != nil {
		t.Errorf("loadJSON(missing) = %v, %v", found, err)
	}
	if err := saveJSON(s, "k", []string{"a"}); err != nil {
		t.Fatal(err)
	}
	var got []string
	if _, err := loadJSON(s, "k", &got); err != nil || len(got) != 1 || got[0] != "a" {
		t.Errorf("loadJSON() = %v, %v", got, err)
	}
}
