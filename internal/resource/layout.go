package resource

import (
	"os"
	"path/filepath"
	"strings"
)

// Layout maps resource IDs to their config file and data directory. Both are
// sharded by the first character of the ID to bound directory fan-out.
type Layout struct {
	Root      string
	ConfigDir string
	DataDir   string
}

// ConfigFile returns <root>/<configDir>/<id[0]>/<id>.json.
func (l Layout) ConfigFile(id string) string {
	return filepath.Join(l.Root, l.ConfigDir, shard(id), id+".json")
}

// DataPath returns <root>/<dataDir>/<id[0]>/<id>.
func (l Layout) DataPath(id string) string {
	return filepath.Join(l.Root, l.DataDir, shard(id), id)
}

// IsValid reports whether id is well formed and its data directory exists.
// This is the only gate in front of every resource operation.
func (l Layout) IsValid(id string) bool {
	if !WellFormed(id) {
		return false
	}
	info, err := os.Stat(l.DataPath(id))
	return err == nil && info.IsDir()
}

// Resolve joins rel onto the data directory of id and verifies the cleaned
// result stays inside it. The data directory itself is a valid result.
func (l Layout) Resolve(id, rel string) (string, error) {
	return confine(l.DataPath(id), rel)
}

func shard(id string) string {
	if id == "" {
		return "_"
	}
	return id[:1]
}

// confine resolves rel against root, rejecting anything that escapes it.
func confine(root, rel string) (string, error) {
	root = filepath.Clean(root)
	rel = filepath.FromSlash(rel)
	if filepath.VolumeName(rel) != "" {
		return "", ErrInvalidResourcePath
	}
	full := filepath.Clean(filepath.Join(root, rel))
	if full == root {
		return full, nil
	}
	if strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return full, nil
	}
	return "", ErrInvalidResourcePath
}
