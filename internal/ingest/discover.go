package ingest

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiscoverFiles walks root and returns every supported file, skipping paths that
// match an exclude pattern. Patterns use filepath.Match syntax; a pattern
// containing "**" matches any path containing the remaining text.
func DiscoverFiles(root string, exclude []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if shouldExclude(path, exclude) && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldExclude(path, exclude) || !Supported(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func shouldExclude(path string, patterns []string) bool {
	normalized := filepath.ToSlash(path)
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		pattern = filepath.ToSlash(pattern)
		if strings.Contains(pattern, "**") {
			trimmed := strings.ReplaceAll(pattern, "**", "")
			if trimmed != "" && strings.Contains(normalized, trimmed) {
				return true
			}
		}
		if ok, _ := filepath.Match(pattern, normalized); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(normalized)); ok {
			return true
		}
	}
	return false
}

// Expand replaces each directory in paths with the supported files beneath it.
// Plain file paths are kept as given so unsupported files can still be reported.
func Expand(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			out = append(out, p)
			continue
		}
		files, err := DiscoverFiles(p, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}
