package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// parseFields turns key=value flags into record fields. Values that parse
// as JSON keep their JSON type; anything else is a plain string.
func parseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: expected key=value", pair)
		}

		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			fields[key] = decoded
			continue
		}
		fields[key] = value
	}
	return fields, nil
}

// fileEntry is a local file to store along with its record name and dir.
type fileEntry struct {
	sourcePath string
	name       string
	dir        string
}

// collectFiles gathers files from a path, optionally recursively. Nested
// files keep their relative directory under destDir.
func collectFiles(p string, recursive bool, destDir string) ([]fileEntry, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}

	destDir = normalizeDir(destDir)

	if !info.IsDir() {
		return []fileEntry{{sourcePath: p, name: filepath.Base(p), dir: destDir}}, nil
	}

	if !recursive {
		return nil, fmt.Errorf("%s is a directory (use -r to add recursively)", p)
	}

	var entries []fileEntry
	walkErr := filepath.WalkDir(p, func(walkPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(p, walkPath)
		if relErr != nil {
			return relErr
		}

		relDir := path.Dir(filepath.ToSlash(relPath))
		dir := destDir
		if relDir != "." {
			dir = path.Join(destDir, relDir)
		}

		entries = append(entries, fileEntry{
			sourcePath: walkPath,
			name:       d.Name(),
			dir:        dir,
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return entries, nil
}

// normalizeDir returns dir as an absolute slash path.
func normalizeDir(dir string) string {
	return path.Clean("/" + strings.TrimSpace(dir))
}

// detectContentType guesses the MIME type from a file's extension. Stored
// content is sniffed as well; this only matters when sniffing finds nothing.
func detectContentType(p string) string {
	ext := filepath.Ext(p)
	if ext == "" {
		return ""
	}
	return mime.TypeByExtension(ext)
}
