package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleTSV = "photo_id\tphoto_url\tphoto_description\tai_description\n" +
	"abc123\thttps://example.com/a\tA red car parked outside\ta red car on a street\n" +
	"def456\thttps://example.com/b\tDog running on the beach\t\n" +
	"ghi789\thttps://example.com/c\t\t\n" +
	"jkl012\thttps://example.com/d\tmountain view\tsnowy mountains at dawn\n"

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "data", "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestImport(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	stats, err := c.Import(ctx, strings.NewReader(sampleTSV))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Rows != 4 || stats.Imported != 3 || stats.NoText != 1 {
		t.Errorf("stats = %+v", stats)
	}
	count, _ := c.Count(ctx)
	if count != 3 {
		t.Errorf("count = %d", count)
	}

	tests := []struct {
		id   string
		want string
		ok   bool
	}{
		{"abc123", "a red car on a street", true},
		{"def456", "Dog running on the beach", true},
		{"ghi789", "", false},
		{"jkl012", "snowy mountains at dawn", true},
	}
	for _, tt := range tests {
		got, ok, err := c.Get(ctx, tt.id)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want || ok != tt.ok {
			t.Errorf("Get(%s) = %q, %v; want %q, %v", tt.id, got, ok, tt.want, tt.ok)
		}
	}
}

func TestImport_replaces(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	_, _ = c.Import(ctx, strings.NewReader(sampleTSV))
	update := "photo_id\tai_description\nabc123\ta blue car\n"
	if _, err := c.Import(ctx, strings.NewReader(update)); err != nil {
		t.Fatal(err)
	}
	got, _, _ := c.Get(ctx, "abc123")
	if got != "a blue car" {
		t.Errorf("got %q", got)
	}
}

func TestImport_missingIDColumn(t *testing.T) {
	c := openTestCatalog(t)
	if _, err := c.Import(context.Background(), strings.NewReader("id\tdescription\n1\tx\n")); err == nil {
		t.Error("expected error for missing photo_id column")
	}
}

func TestImportFile(t *testing.T) {
	c := openTestCatalog(t)
	path := filepath.Join(t.TempDir(), "photos.tsv000")
	if err := os.WriteFile(path, []byte(sampleTSV), 0644); err != nil {
		t.Fatal(err)
	}
	stats, err := c.ImportFile(context.Background(), path)
	if err != nil || stats.Imported != 3 {
		t.Errorf("stats = %+v, err = %v", stats, err)
	}
	if _, err := c.ImportFile(context.Background(), path+".missing"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLookup(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	_, _ = c.Import(ctx, strings.NewReader(sampleTSV))

	got, err := c.Lookup(ctx, []string{"abc123", "ghi789", "jkl012", "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["abc123"] == "" || got["jkl012"] == "" {
		t.Errorf("Lookup = %v", got)
	}
	empty, err := c.Lookup(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty lookup = %v, %v", empty, err)
	}
}

func TestSample(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	_, _ = c.Import(ctx, strings.NewReader(sampleTSV))

	a, err := c.Sample(ctx, 2, 42, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Sample(ctx, 2, 42, nil)
	if len(a) != 2 || a[0].PhotoID != b[0].PhotoID || a[1].PhotoID != b[1].PhotoID {
		t.Errorf("same seed should give same sample: %v vs %v", a, b)
	}

	allowed := map[string]struct{}{"def456": {}}
	only, _ := c.Sample(ctx, 10, 1, allowed)
	if len(only) != 1 || only[0].PhotoID != "def456" || only[0].Source != ColumnPhotoDescription {
		t.Errorf("filtered sample = %+v", only)
	}
}

func TestParseTSV_byteOrderMark(t *testing.T) {
	var got []Description
	stats, err := ParseTSV(strings.NewReader("\uFEFF"+sampleTSV), func(d Description) error {
		got = append(got, d)
		return nil
	})
	if err != nil {
		t.Fatalf("header with a byte order mark: %v", err)
	}
	if stats.Rows != 4 || len(got) != 3 {
		t.Fatalf("stats = %+v, descriptions = %d", stats, len(got))
	}
	if got[0].PhotoID != "abc123" {
		t.Errorf("first photo id = %q", got[0].PhotoID)
	}
}
