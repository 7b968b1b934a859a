package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/getmockd/stubd/pkg/mapping"
)

// DirSink writes one document per mapping into a directory.
type DirSink struct {
	Dir    string
	Format Format
}

// Save writes every mapping to <Dir>/<id>.<ext> and returns the written
// paths. Each file is replaced atomically. mappings is taken as the complete
// set: any other document below Dir is removed afterwards, so deleted
// mappings do not come back on the next load.
func (d DirSink) Save(mappings []*mapping.Mapping) ([]string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", d.Dir, err)
	}

	ext := ".json"
	if d.Format == FormatYAML {
		ext = ".yaml"
	}

	paths := make([]string, 0, len(mappings))
	for _, m := range mappings {
		data, err := MarshalMapping(m, d.Format)
		if err != nil {
			return paths, fmt.Errorf("failed to marshal mapping %s: %w", m.ID, err)
		}
		path := filepath.Join(d.Dir, fileName(m.ID)+ext)
		if err := writeAtomic(path, data); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if err := d.prune(paths); err != nil {
		return paths, err
	}
	return paths, nil
}

// prune removes documents below Dir that are not in keep.
func (d DirSink) prune(keep []string) error {
	kept := make(map[string]bool, len(keep))
	for _, p := range keep {
		kept[filepath.Clean(p)] = true
	}
	files, err := DirSource{Dir: d.Dir}.Files()
	if err != nil {
		return err
	}
	for _, rel := range files {
		path := filepath.Join(d.Dir, filepath.FromSlash(rel))
		if kept[filepath.Clean(path)] {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale document %s: %w", path, err)
		}
	}
	return nil
}

// writeAtomic writes to a temporary file and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func fileName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, id)
}
