package storage

import (
	"errors"
	"path/filepath"
	"testing"

	lecterrors "github.com/FocuswithJustin/Lectern/core/errors"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoad(t *testing.T) {
	s := openStore(t)

	in := doc{Name: "notes", Count: 3}
	if err := s.Save("notes", in); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	var out doc
	found, err := s.Load("notes", &out)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !found {
		t.Fatal("Load should find the saved document")
	}
	if out != in {
		t.Errorf("Load = %+v; want %+v", out, in)
	}
}

func TestLoad_Absent(t *testing.T) {
	s := openStore(t)

	var out doc
	found, err := s.Load("missing", &out)
	if err != nil {
		t.Fatalf("Load of absent key should not error: %v", err)
	}
	if found {
		t.Error("Load of absent key should report absence")
	}
}

func TestSave_Overwrites(t *testing.T) {
	s := openStore(t)

	if err := s.Save("k", doc{Name: "old"}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := s.Save("k", doc{Name: "new"}); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	var out doc
	if _, err := s.Load("k", &out); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if out.Name != "new" {
		t.Errorf("Name = %q; want new", out.Name)
	}
}

func TestLoad_Malformed(t *testing.T) {
	s := openStore(t)

	// Write a structurally valid document, then try to decode it into an
	// incompatible shape.
	if err := s.Save("k", "just a string"); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	var out doc
	_, err := s.Load("k", &out)
	if err == nil {
		t.Fatal("Load into incompatible shape should error")
	}
	var se *lecterrors.StorageError
	if !errors.As(err, &se) {
		t.Errorf("error should be a StorageError; got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)

	if err := s.Save("k", doc{Name: "x"}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	var out doc
	if found, _ := s.Load("k", &out); found {
		t.Error("document should be gone after Delete")
	}

	// Deleting an absent key is not an error.
	if err := s.Delete("ghost"); err != nil {
		t.Errorf("Delete of absent key error: %v", err)
	}
}

func TestKeys(t *testing.T) {
	s := openStore(t)

	for _, k := range []string{"bookmarks", "notes", "positions"} {
		if err := s.Save(k, doc{}); err != nil {
			t.Fatalf("Save(%s) error: %v", k, err)
		}
	}

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys error: %v", err)
	}
	want := []string{"bookmarks", "notes", "positions"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v; want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q; want %q", i, keys[i], want[i])
		}
	}
}

func TestPersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := s1.Save("notes", doc{Name: "persisted", Count: 7}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()

	var out doc
	found, err := s2.Load("notes", &out)
	if err != nil || !found {
		t.Fatalf("Load after reopen = %v, %v", found, err)
	}
	if out.Count != 7 {
		t.Errorf("Count = %d; want 7", out.Count)
	}
}
