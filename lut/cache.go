package lut

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/gogpu/imp/internal/cache"
)

// Cache keeps recently loaded tables. An entry is reloaded when the file's
// size or modification time changes. Tables returned by a Cache are shared
// and must not be modified.
type Cache struct {
	tables *cache.LRU[cacheKey, *Table]
}

type cacheKey struct {
	path    string
	size    int64
	modTime time.Time
}

// NewCache creates a cache holding up to capacity tables.
func NewCache(capacity int) *Cache {
	return &Cache{tables: cache.New[cacheKey, *Table](capacity)}
}

// Load returns the table at path, parsing it only on a miss.
func (c *Cache) Load(path string) (*Table, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Kind: NotFound, Msg: path, Err: err}
		}
		return nil, err
	}
	key := cacheKey{path: path, size: fi.Size(), modTime: fi.ModTime()}
	return c.tables.GetOrLoad(key, func() (*Table, error) { return Load(path) })
}

// Hits returns how many loads were served without parsing.
func (c *Cache) Hits() uint64 { return c.tables.Stats().Hits }
