package fileid

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"testing"
)

func TestImageID_deterministic(t *testing.T) {
	p := "assets/image-dataset/A.jpg"
	id1 := ImageID(p)
	id2 := ImageID(p)
	if id1 != id2 {
		t.Errorf("same path should yield same id: %s vs %s", id1, id2)
	}
	if len(id1) != 32 {
		t.Errorf("id should be 32 hex chars, got %d", len(id1))
	}
}

func TestImageID_matchesMD5OfRelativePath(t *testing.T) {
	p := "assets/image-dataset/abc.jpg"
	sum := md5.Sum([]byte(p))
	if got, want := ImageID(p), hex.EncodeToString(sum[:]); got != want {
		t.Errorf("ImageID = %s, want %s", got, want)
	}
}

func TestImageID_differentPaths(t *testing.T) {
	if ImageID("assets/a.jpg") == ImageID("assets/b.jpg") {
		t.Error("different paths should yield different ids")
	}
}

func TestImageID_normalized(t *testing.T) {
	base := ImageID("assets/image-dataset/a.jpg")
	for _, p := range []string{
		"./assets/image-dataset/a.jpg",
		"assets//image-dataset/a.jpg",
		"assets/other/../image-dataset/a.jpg",
	} {
		if got := ImageID(p); got != base {
			t.Errorf("ImageID(%q) = %s, want %s", p, got, base)
		}
	}
}

func TestRelPath(t *testing.T) {
	root := t.TempDir()
	rel, err := RelPath(root, filepath.Join(root, "assets", "x.png"))
	if err != nil {
		t.Fatal(err)
	}
	if rel != "assets/x.png" {
		t.Errorf("rel = %q", rel)
	}
	if _, err := RelPath(root, filepath.Dir(root)); err == nil {
		t.Error("path outside root should fail")
	}
}

func TestUUID_roundTrip(t *testing.T) {
	id := ImageID("assets/image-dataset/a.jpg")
	u, err := UUID(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(u) != 36 {
		t.Errorf("uuid = %q", u)
	}
	back, err := FromUUID(u)
	if err != nil {
		t.Fatal(err)
	}
	if back != id {
		t.Errorf("FromUUID(UUID(id)) = %s, want %s", back, id)
	}
	if _, err := UUID("not-hex"); err == nil {
		t.Error("expected error for non-hex id")
	}
}
