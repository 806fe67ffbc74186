package persistence

import (
	"os"
	"path/filepath"
	"testing"
)

type odoState struct {
	TotalM float64 `json:"total_m"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	svc := NewJSONFileService(dir)
	store := svc.NewStore("state", "odometer", "total")

	if err := store.Save(odoState{TotalM: 12345.5}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var got odoState
	if err := store.Load(&got); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TotalM != 12345.5 {
		t.Errorf("TotalM = %v, want 12345.5", got.TotalM)
	}
}

func TestLoadMissingReturnsErrNotExists(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("state", "odometer", "never-saved")

	var got odoState
	if err := store.Load(&got); err != ErrNotExists {
		t.Errorf("Load = %v, want ErrNotExists", err)
	}
}

func TestKeySanitizedIntoFilename(t *testing.T) {
	dir := t.TempDir()
	svc := NewJSONFileService(dir)
	store := svc.NewStore("state", "trip/2024", "points:pending")

	if err := store.Save(odoState{TotalM: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want exactly one file, got %d", len(entries))
	}
	name := entries[0].Name()
	if filepath.Ext(name) != ".json" {
		t.Errorf("file %q should have .json extension", name)
	}
	for _, r := range name {
		if r == '/' || r == ':' {
			t.Errorf("file name %q should not contain separator characters", name)
		}
	}
}

func TestEmptyFileTreatedAsMissing(t *testing.T) {
	dir := t.TempDir()
	svc := NewJSONFileService(dir)
	store := svc.NewStore("state", "odometer", "total")

	if err := store.Save(odoState{TotalM: 7}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	path := filepath.Join(dir, "state_odometer_total.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	var got odoState
	if err := store.Load(&got); err != ErrNotExists {
		t.Errorf("Load of empty file = %v, want ErrNotExists", err)
	}
}
