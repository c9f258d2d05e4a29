// Package fileid derives deterministic image identities from project-relative paths.
package fileid

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ImageID returns the identity for a path relative to the project root: the lowercase
// hex MD5 of the slash-separated, cleaned path. Same path always yields the same ID,
// so re-running ingestion never duplicates entries. Moving a file changes its ID.
func ImageID(relPath string) string {
	sum := md5.Sum([]byte(NormalizeRel(relPath)))
	return hex.EncodeToString(sum[:])
}

// NormalizeRel cleans a relative path and converts separators to forward slashes.
func NormalizeRel(relPath string) string {
	p := filepath.ToSlash(filepath.Clean(relPath))
	return strings.TrimPrefix(p, "./")
}

// RelPath returns path relative to root in normalized form. It fails when path is outside root.
func RelPath(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside project root %s", path, root)
	}
	return NormalizeRel(rel), nil
}

// UUID maps a hex identity onto a canonical UUID string. The 16 digest bytes are used
// unchanged, so FromUUID recovers the identity. Used by backends that only accept UUID keys.
func UUID(id string) (string, error) {
	b, err := hex.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("invalid image id %q: %w", id, err)
	}
	u, err := uuid.FromBytes(b)
	if err != nil {
		return "", fmt.Errorf("invalid image id %q: %w", id, err)
	}
	return u.String(), nil
}

// FromUUID is the inverse of UUID.
func FromUUID(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid point uuid %q: %w", s, err)
	}
	return hex.EncodeToString(u[:]), nil
}
