package resource

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Entry types.
const (
	TypeFile      = "file"
	TypeDirectory = "directory"
)

// Sort keys and directions accepted by List.
const (
	OrderByTime = "time"
	OrderByName = "name"
	OrderBySize = "size"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// NoLimit as a PageSize returns every entry and ignores Page.
const NoLimit = -1

const defaultPageSize = 10

// Entry is a file or directory inside a resource, derived from filesystem
// metadata on every call. Time is the modification time in Unix milliseconds.
type Entry struct {
	Name string `json:"name"`
	Time int64  `json:"time"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// ListOptions controls filtering, ordering and pagination. Zero values pick
// the defaults: page 1, 10 entries, newest first.
type ListOptions struct {
	Path      string
	Search    string
	Page      int
	PageSize  int
	OrderBy   string
	OrderMode string
}

func (o ListOptions) normalized() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize == 0 {
		o.PageSize = defaultPageSize
	}
	if o.PageSize < 0 {
		o.PageSize = NoLimit
	}
	switch o.OrderBy {
	case OrderByName, OrderBySize:
	default:
		o.OrderBy = OrderByTime
	}
	if o.OrderMode != OrderAsc {
		o.OrderMode = OrderDesc
	}
	return o
}

// List returns one page of the entries in a resource directory.
func (e *Engine) List(id string, opts ListOptions) ([]Entry, error) {
	if !e.layout.IsValid(id) {
		return nil, ErrInvalidResourceID
	}
	dir, err := e.layout.Resolve(id, opts.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, ErrInvalidResourcePath
	}
	if err != nil {
		return nil, fmt.Errorf("stat dir: %w", err)
	}
	entries, err := listDir(dir, opts)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrInvalidResourcePath
	}
	return entries, err
}

// listDir enumerates the immediate children of dir, filters them by
// substring, sorts them and applies pagination.
func listDir(dir string, opts ListOptions) ([]Entry, error) {
	opts = opts.normalized()

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !strings.Contains(de.Name(), opts.Search) {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, de.Name()))
		if err != nil {
			// Removed between ReadDir and Stat.
			continue
		}
		entry := Entry{
			Name: de.Name(),
			Time: info.ModTime().UnixMilli(),
			Type: TypeFile,
			Size: info.Size(),
		}
		if info.IsDir() {
			entry.Type = TypeDirectory
		}
		entries = append(entries, entry)
	}

	compare := comparator(opts.OrderBy)
	if opts.OrderMode == OrderDesc {
		asc := compare
		compare = func(a, b Entry) int { return asc(b, a) }
	}
	slices.SortStableFunc(entries, compare)

	return paginate(entries, opts.Page, opts.PageSize), nil
}

func comparator(orderBy string) func(a, b Entry) int {
	switch orderBy {
	case OrderByName:
		return func(a, b Entry) int { return strings.Compare(a.Name, b.Name) }
	case OrderBySize:
		return func(a, b Entry) int { return cmp.Compare(a.Size, b.Size) }
	default:
		return func(a, b Entry) int { return cmp.Compare(a.Time, b.Time) }
	}
}

// paginate returns page (1-based) of pageSize entries. NoLimit has no page
// stride, so it returns every entry.
func paginate(entries []Entry, page, pageSize int) []Entry {
	if pageSize == NoLimit {
		return entries
	}
	if page-1 > len(entries)/pageSize {
		return []Entry{}
	}
	start := (page - 1) * pageSize
	if start >= len(entries) {
		return []Entry{}
	}
	end := min(start+pageSize, len(entries))
	return entries[start:end]
}
