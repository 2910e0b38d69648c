// Package index reads and maintains the list of source record files.
//
// The index is a JSON array of file names relative to the data directory.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"eventcal/internal/fsutil"
	appLog "eventcal/internal/log"
)

var (
	ErrShape       = errors.New("index must be a JSON array of filenames")
	ErrEntry       = errors.New("index entries must be strings")
	ErrOutsideData = errors.New("path is outside the data directory")
)

// Load reads the index at path.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes an index document.
func Parse(data []byte) ([]string, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid index JSON: %w", err)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, ErrShape
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, ErrEntry
		}
		out = append(out, s)
	}
	return out, nil
}

// Write stores entries at path as an indented JSON array.
func Write(path string, entries []string) error {
	if entries == nil {
		entries = []string{}
	}
	data, err := fsutil.MarshalJSON(entries)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// Resolve joins entry onto dataDir and fails with ErrOutsideData when the
// result escapes it.
func Resolve(dataDir, entry string) (string, error) {
	absData, err := filepath.Abs(dataDir)
	if err != nil {
		return "", err
	}
	p := entry
	if !filepath.IsAbs(p) {
		p = filepath.Join(absData, p)
	}
	rel, err := filepath.Rel(absData, p)
	if err != nil || outside(rel) {
		return "", fmt.Errorf("%s: %w", entry, ErrOutsideData)
	}
	return filepath.Clean(p), nil
}

func outside(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ParseCreated splits a newline separated list of paths, as passed through
// the CREATED environment variable.
func ParseCreated(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Sync rewrites the index at indexPath: existing entries whose files are
// still present under dataDir are kept, created paths (relative to the
// working directory or absolute) are added, and the result is sorted and
// de-duplicated. Non-string entries in the current index are dropped.
func Sync(dataDir, indexPath string, created []string) ([]string, error) {
	var current []any
	data, err := os.ReadFile(indexPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid index JSON: %w", err)
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, ErrShape
		}
		current = items
	}

	keep := make(map[string]struct{})
	for _, it := range current {
		rel, ok := it.(string)
		if !ok {
			continue
		}
		if _, err := os.Stat(filepath.Join(dataDir, rel)); err == nil {
			keep[rel] = struct{}{}
		} else {
			appLog.Info("index: dropping missing entry", "entry", rel)
		}
	}

	absData, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, err
	}
	for _, p := range created {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(absData, abs)
		if err != nil || outside(rel) {
			return nil, fmt.Errorf("%s: %w", p, ErrOutsideData)
		}
		keep[filepath.ToSlash(rel)] = struct{}{}
	}

	files := make([]string, 0, len(keep))
	for rel := range keep {
		files = append(files, rel)
	}
	sort.Strings(files)

	if err := Write(indexPath, files); err != nil {
		return nil, err
	}
	return files, nil
}
