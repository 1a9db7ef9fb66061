// Package storage reports how much disk the index root uses.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// IndexSize is the on-disk size of one index directory.
type IndexSize struct {
	Index string `json:"index"`
	Bytes int64  `json:"bytes"`
}

// Usage is the storage footprint of an index root.
type Usage struct {
	Root       string      `json:"root"`
	TotalBytes int64       `json:"totalBytes"`
	Indexes    []IndexSize `json:"indexes"`
}

// MB returns the total in mebibytes.
func (u Usage) MB() float64 {
	return float64(u.TotalBytes) / (1024 * 1024)
}

// Summary renders the total as a one-line message.
func (u Usage) Summary() string {
	return fmt.Sprintf("Total size of index storage: %s MB", strconv.FormatFloat(u.MB(), 'f', -1, 64))
}

// Measure sums the size of every regular file under root, broken down by
// top-level index directory. A missing root measures as empty.
func Measure(root string) (Usage, error) {
	u := Usage{Root: root}
	perIndex := make(map[string]int64)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			// Files can vanish under a running writer.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		u.TotalBytes += info.Size()
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if top, _, found := cutPath(rel); found {
			perIndex[top] += info.Size()
		}
		return nil
	})
	if err != nil {
		return Usage{}, fmt.Errorf("measure %s: %w", root, err)
	}

	for name, size := range perIndex {
		u.Indexes = append(u.Indexes, IndexSize{Index: name, Bytes: size})
	}
	sort.Slice(u.Indexes, func(i, j int) bool { return u.Indexes[i].Index < u.Indexes[j].Index })
	return u, nil
}

// cutPath splits the first element off a relative path.
func cutPath(rel string) (string, string, bool) {
	for i := 0; i < len(rel); i++ {
		if os.IsPathSeparator(rel[i]) {
			return rel[:i], rel[i+1:], true
		}
	}
	return "", rel, false
}
