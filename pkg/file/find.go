package file

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FindLatest returns the most recently modified file in dir matching the glob
// pattern for which keep returns true. Empty string when nothing matches.
func FindLatest(dir, pattern string, keep func(name string) bool) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", err
	}

	var (
		latest    string
		latestMod time.Time
	)
	for _, m := range matches {
		if keep != nil && !keep(filepath.Base(m)) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = m
			latestMod = info.ModTime()
		}
	}
	return latest, nil
}

// Matching returns the sorted base names of regular files in dir matching pattern.
func Matching(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		names = append(names, filepath.Base(m))
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether path exists and is a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
