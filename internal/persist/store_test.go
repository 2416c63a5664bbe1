package persist

import (
	"errors"
	"path/filepath"
	"testing"
)

type row struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := Open(filepath.Join(dir, "state.db"), filepath.Join(dir, "state.lock"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestSaveLoadSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, dir)
	in := []row{{ID: "a", Value: 1.5}, {ID: "b", Value: 2}}
	if err := store.Save("rows", in); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save("rows", append(in, row{ID: "c"})); err != nil {
		t.Fatalf("second save: %v", err)
	}
	_ = store.Close()

	reopened := openTestStore(t, dir)
	defer reopened.Close()
	var out []row
	found, err := reopened.Load("rows", &out)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if len(out) != 3 || out[2].ID != "c" {
		t.Fatalf("unexpected rows: %+v", out)
	}
}

func TestLoadMissingCollection(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	var out []row
	found, err := store.Load("nothing", &out)
	if err != nil || found {
		t.Fatalf("expected missing collection, found=%v err=%v", found, err)
	}
}

func TestLoadCorruptPayload(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	if err := store.write("rows", []byte("{not json")); err != nil {
		t.Fatalf("save raw: %v", err)
	}
	var out []row
	_, err := store.Load("rows", &out)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
