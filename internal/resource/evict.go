package resource

import (
	"log"
	"os"
	"path/filepath"
)

// maybeEvict makes room for one incoming file. When auto-clean is enabled and
// the counter has reached maxResource, the oldest files are removed until the
// counter sits one below the maximum. Callers hold the resource lock.
func (e *Engine) maybeEvict(id string) (int, error) {
	if e.maxResource <= 0 || !e.autoClean {
		return 0, nil
	}
	cfg, err := e.readConfig(id)
	if err != nil {
		return 0, err
	}
	if cfg.ResourceCount < e.maxResource {
		return 0, nil
	}
	cleanCount := cfg.ResourceCount - e.maxResource + 1

	dir := e.layout.DataPath(id)
	entries, err := listDir(dir, ListOptions{
		PageSize:  NoLimit,
		OrderBy:   OrderByTime,
		OrderMode: OrderAsc,
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if removed == cleanCount {
			break
		}
		if entry.Type != TypeFile {
			continue
		}
		path := filepath.Join(dir, entry.Name)
		if err := os.Remove(path); err != nil {
			log.Printf("[storage] evict %s/%s: %v", id, entry.Name, err)
			continue
		}
		e.dropSharesFor(path)
		removed++
	}
	if removed == 0 {
		return 0, nil
	}

	if _, err := e.adjustCount(id, -removed); err != nil {
		return removed, err
	}
	log.Printf("[storage] evicted %d old files from %s", removed, id)
	return removed, nil
}
