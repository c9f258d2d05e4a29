package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/scout/internal/models"
)

func TestLoad_missingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "metadata.json"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestLoad_invalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSnapshot_MergeSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "metadata.json")
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Merge(map[string]models.ImageMetadata{
		"aaa": {Path: "assets/a.jpg", Filename: "a.jpg"},
		"bbb": {Path: "assets/b.jpg", Filename: "b.jpg"},
	})
	s.Merge(map[string]models.ImageMetadata{
		"aaa": {Path: "assets/renamed.jpg", Filename: "renamed.jpg"},
	})
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n    \"aaa\": {\n        \"path\": \"assets/renamed.jpg\"") {
		t.Errorf("unexpected layout:\n%s", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("Len = %d", reloaded.Len())
	}
	if meta, _ := reloaded.Get("aaa"); meta.Filename != "renamed.jpg" {
		t.Errorf("newer entry should win, got %+v", meta)
	}
}

func TestSnapshot_saveUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	s, _ := Load(path)
	s.Put("x", models.ImageMetadata{Path: "x.png", Filename: "x.png"})
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(path)

	again, _ := Load(path)
	if err := again.Save(); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(path)
	if string(first) != string(second) {
		t.Error("saving an unchanged snapshot should produce identical bytes")
	}
}

func TestSnapshot_RemoveAndIDs(t *testing.T) {
	s, _ := Load(filepath.Join(t.TempDir(), "m.json"))
	s.Put("c", models.ImageMetadata{})
	s.Put("a", models.ImageMetadata{})
	s.Put("b", models.ImageMetadata{})
	s.Remove("b", "missing")
	ids := s.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("IDs = %v", ids)
	}
	entries := s.Entries()
	delete(entries, "a")
	if s.Len() != 2 {
		t.Error("Entries should return a copy")
	}
}
