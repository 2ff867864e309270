package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

const cacheVersion = "v1"

// Cache memoizes the most recent raw load. A source with a different
// identity replaces the held entry; there is no other eviction.
type Cache struct {
	mu       sync.RWMutex
	identity string
	table    Table
	hits     int64
	misses   int64

	dir    string
	group  singleflight.Group
	logger *slog.Logger
}

// NewCache returns a cache that also persists tables as gob files under dir.
// An empty dir keeps the cache in memory only.
func NewCache(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{dir: dir, logger: logger}
}

func (c *Cache) Load(ctx context.Context, src Source) (Table, error) {
	identity, err := src.Identity()
	if err != nil {
		return Table{}, fmt.Errorf("source identity: %w", err)
	}

	c.mu.RLock()
	if c.identity == identity {
		table := c.table
		c.mu.RUnlock()
		c.count(true)
		return table, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(identity, func() (any, error) {
		if table, err := c.readDisk(identity); err == nil {
			c.logger.Info("loaded transactions from disk cache", "rows", len(table.Rows))
			return table, nil
		}

		table, err := src.Load(ctx)
		if err != nil {
			return Table{}, err
		}
		if err := c.writeDisk(identity, table); err != nil {
			c.logger.Warn("failed to save cache", "error", err)
		}
		return table, nil
	})
	if err != nil {
		return Table{}, err
	}

	table := v.(Table)
	c.mu.Lock()
	c.identity = identity
	c.table = table
	c.mu.Unlock()
	c.count(false)

	return table, nil
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func (c *Cache) Stats() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]any{
		"identity": c.identity,
		"rows":     len(c.table.Rows),
		"hits":     c.hits,
		"misses":   c.misses,
	}
}

func (c *Cache) filename(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.gob", hex.EncodeToString(sum[:8]), cacheVersion))
}

func (c *Cache) writeDisk(identity string, table Table) error {
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	file, err := os.Create(c.filename(identity))
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewEncoder(file).Encode(table)
}

func (c *Cache) readDisk(identity string) (Table, error) {
	if c.dir == "" {
		return Table{}, os.ErrNotExist
	}
	file, err := os.Open(c.filename(identity))
	if err != nil {
		return Table{}, err
	}
	defer file.Close()

	var table Table
	if err := gob.NewDecoder(file).Decode(&table); err != nil {
		return Table{}, err
	}
	return table, nil
}
