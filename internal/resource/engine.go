package resource

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Options configures an Engine.
type Options struct {
	// Root is the directory owning every config and data path.
	Root      string
	ConfigDir string
	DataDir   string
	// ShareDir holds share token files. Empty disables sharing.
	ShareDir string
	// MaxResource and AutoCleanOldResource together enable eviction.
	MaxResource          int
	AutoCleanOldResource bool
	// Index is an optional share link index.
	Index ShareIndex
}

// Engine is the storage facade used by the HTTP layer.
type Engine struct {
	layout      Layout
	shareDir    string
	maxResource int
	autoClean   bool
	index       ShareIndex
	locks       *keyedMutex
}

// AddResult is returned by Add. ShareID is set when a share link was created.
type AddResult struct {
	ShareID string `json:"shareId,omitempty"`
}

// New creates an Engine rooted at opts.Root, creating the root (and the share
// directory when configured).
func New(opts Options) (*Engine, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}
	if opts.ConfigDir == "" {
		opts.ConfigDir = "conf"
	}
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}

	e := &Engine{
		layout:      Layout{Root: root, ConfigDir: opts.ConfigDir, DataDir: opts.DataDir},
		maxResource: opts.MaxResource,
		autoClean:   opts.AutoCleanOldResource,
		index:       opts.Index,
		locks:       newKeyedMutex(),
	}
	if opts.ShareDir != "" {
		shareDir, err := filepath.Abs(opts.ShareDir)
		if err != nil {
			return nil, fmt.Errorf("resolve share dir: %w", err)
		}
		if err := os.MkdirAll(shareDir, 0755); err != nil {
			return nil, fmt.Errorf("create share dir: %w", err)
		}
		e.shareDir = shareDir
	}
	return e, nil
}

// Layout returns the directory layout in use.
func (e *Engine) Layout() Layout {
	return e.layout
}

// IsValid reports whether id names an existing resource.
func (e *Engine) IsValid(id string) bool {
	return e.layout.IsValid(id)
}

// Get returns the content of a file inside a resource.
func (e *Engine) Get(id, rel string) ([]byte, error) {
	if !e.layout.IsValid(id) {
		return nil, ErrInvalidResourceID
	}
	path, err := e.resolveEntry(id, rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, ErrInvalidResourceName
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Add writes data as a new file named name in the resource's data directory.
func (e *Engine) Add(id, name string, data []byte, share bool) (*AddResult, error) {
	if len(data) == 0 {
		return e.add(id, name, nil, share)
	}
	return e.add(id, name, func(dst string) error {
		return os.WriteFile(dst, data, 0644)
	}, share)
}

// AddStaged moves an already written upload at the absolute path staged into
// the resource's data directory under name.
func (e *Engine) AddStaged(id, name, staged string, share bool) (*AddResult, error) {
	if staged == "" || !filepath.IsAbs(staged) {
		return e.add(id, name, nil, share)
	}
	if info, err := os.Stat(staged); err != nil || !info.Mode().IsRegular() {
		return e.add(id, name, nil, share)
	}
	return e.add(id, name, func(dst string) error {
		return moveFile(staged, dst)
	}, share)
}

func (e *Engine) add(id, name string, write func(dst string) error, share bool) (*AddResult, error) {
	if !e.layout.IsValid(id) {
		return nil, ErrInvalidResourceID
	}
	if name == "" {
		return nil, ErrInvalidResourceName
	}
	if write == nil {
		return nil, ErrInvalidResourceData
	}

	name = SanitizeName(name)
	dst, err := e.layout.Resolve(id, name)
	if err != nil || dst == e.layout.DataPath(id) {
		return nil, ErrInvalidResourceName
	}

	unlock := e.locks.lock(id)
	defer unlock()

	if _, err := e.maybeEvict(id); err != nil {
		return nil, fmt.Errorf("evict old files: %w", err)
	}
	if err := write(dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrInvalidResourceData
		}
		return nil, fmt.Errorf("store file: %w", err)
	}
	if _, err := e.adjustCount(id, 1); err != nil {
		return nil, err
	}

	result := &AddResult{}
	if share && e.shareDir != "" {
		token, err := e.createShare(id, dst)
		if err != nil {
			// Undo the write so a failed call leaves nothing stored.
			if rmErr := os.Remove(dst); rmErr != nil {
				log.Printf("[storage] roll back %s/%s: %v", id, name, rmErr)
			}
			if _, cErr := e.adjustCount(id, -1); cErr != nil {
				log.Printf("[storage] roll back counter of %s: %v", id, cErr)
			}
			return nil, err
		}
		result.ShareID = token
	}
	return result, nil
}

// AddFolder creates rel, and any missing parents, inside the resource.
func (e *Engine) AddFolder(id, rel string) error {
	if !e.layout.IsValid(id) {
		return ErrInvalidResourceID
	}
	path, err := e.resolveEntry(id, rel)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(id)
	defer unlock()
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	return nil
}

// Delete removes a file or an empty directory and decrements the counter.
func (e *Engine) Delete(id, rel string) error {
	if !e.layout.IsValid(id) {
		return ErrInvalidResourceID
	}
	path, err := e.resolveEntry(id, rel)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(id)
	defer unlock()

	if _, err := os.Lstat(path); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	e.dropSharesFor(path)
	if _, err := e.adjustCount(id, -1); err != nil {
		return err
	}
	return nil
}

// resolveEntry confines a non-empty relative path that names something below
// the data directory (not the directory itself).
func (e *Engine) resolveEntry(id, rel string) (string, error) {
	if rel == "" {
		return "", ErrInvalidResourcePath
	}
	path, err := e.layout.Resolve(id, rel)
	if err != nil {
		return "", err
	}
	if path == e.layout.DataPath(id) {
		return "", ErrInvalidResourcePath
	}
	return path, nil
}

var nameReplacer = strings.NewReplacer(
	"<", "_", ">", "_", "/", "_", "|", "_", `\`, "_",
	":", "_", `"`, "_", "*", "_", "?", "_",
)

// SanitizeName replaces the characters < > / | \ : " * ? with '_'.
func SanitizeName(name string) string {
	return nameReplacer.Replace(name)
}

// moveFile renames src to dst, copying when a rename is not possible (for
// example across filesystems).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	in.Close()
	return os.Remove(src)
}
