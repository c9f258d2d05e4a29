// Package storage reports how much disk the local artifacts (snapshot, catalog, in-process
// index file) use.
package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// PathUsage is the size of one storage path.
type PathUsage struct {
	Label  string `json:"label"`
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	Exists bool   `json:"exists"`
}

// Usage returns the size of each labelled path. A path may be a file or a directory
// (summed recursively); missing or empty paths report zero. SQLite side files (-wal, -shm)
// are counted with their database.
func Usage(paths map[string]string) ([]PathUsage, int64, error) {
	labels := make([]string, 0, len(paths))
	for label := range paths {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var total int64
	out := make([]PathUsage, 0, len(labels))
	for _, label := range labels {
		p := paths[label]
		u := PathUsage{Label: label, Path: p}
		if p != "" {
			n, exists, err := pathSize(p)
			if err != nil {
				return nil, 0, err
			}
			for _, side := range []string{p + "-wal", p + "-shm"} {
				if sn, ok, err := pathSize(side); err == nil && ok {
					n += sn
				}
			}
			u.Bytes, u.Exists = n, exists
		}
		total += u.Bytes
		out = append(out, u)
	}
	return out, total, nil
}

func pathSize(p string) (int64, bool, error) {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !info.IsDir() {
		return info.Size(), true, nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, true, err
}
