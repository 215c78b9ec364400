// Package catalog holds the ordered, deduplicated set of media descriptors
// currently shown to the user.
package catalog

import (
	"sync"

	"github.com/tidwall/btree"

	"snaphound/internal/domain"
	"snaphound/internal/logging"
)

type entry struct {
	seq  uint64
	desc domain.MediaDescriptor
}

// Catalog is an insertion-ordered map from descriptor id to descriptor.
// Re-inserting an id overwrites the value but keeps its position.
//
// The catalog has a single writer (the event dispatcher); readers such as the
// UI may call the read methods from other goroutines.
type Catalog struct {
	mu      sync.RWMutex
	nextSeq uint64
	order   *btree.Map[uint64, string] // insertion sequence -> id
	entries map[string]entry           // id -> position and value
}

// New creates an empty catalog
func New() *Catalog {
	return &Catalog{
		order:   btree.NewMap[uint64, string](0),
		entries: make(map[string]entry),
	}
}

// Merge upserts every descriptor in batch by id and returns how many were new.
// Merging the same batch twice leaves the catalog as merging it once.
func (c *Catalog) Merge(batch []domain.MediaDescriptor) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, d := range batch {
		if d.ID == "" {
			logging.Debug("Catalog: skipping descriptor without id (path %q)", d.Path)
			continue
		}
		if d.IsSentinel() {
			continue
		}

		// Real content replaces the "no results" placeholder
		c.removeLocked(domain.EmptyID)

		if existing, ok := c.entries[d.ID]; ok {
			existing.desc = d
			c.entries[d.ID] = existing
			continue
		}
		c.insertLocked(d)
		added++
	}
	return added
}

// FinalizeIfEmpty inserts the sentinel when the catalog holds nothing.
// It reports whether the sentinel was inserted.
func (c *Catalog) FinalizeIfEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > 0 {
		return false
	}
	c.insertLocked(domain.Sentinel())
	return true
}

// Clear removes every entry, the sentinel included
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = btree.NewMap[uint64, string](0)
	c.entries = make(map[string]entry)
}

// Len returns the number of entries, counting the sentinel
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Empty reports whether the catalog holds no real descriptors
func (c *Catalog) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.entries) == 0 {
		return true
	}
	_, onlySentinel := c.entries[domain.EmptyID]
	return onlySentinel && len(c.entries) == 1
}

// Get returns the descriptor stored under id
func (c *Catalog) Get(id string) (domain.MediaDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	return e.desc, ok
}

// Items returns an ordered snapshot of the catalog
func (c *Catalog) Items() []domain.MediaDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]domain.MediaDescriptor, 0, len(c.entries))
	c.order.Scan(func(_ uint64, id string) bool {
		items = append(items, c.entries[id].desc)
		return true
	})
	return items
}

// Window returns up to limit descriptors starting at position offset
func (c *Catalog) Window(offset, limit int) []domain.MediaDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= c.order.Len() {
		return nil
	}

	end := offset + limit
	if end > c.order.Len() {
		end = c.order.Len()
	}
	items := make([]domain.MediaDescriptor, 0, end-offset)
	for i := offset; i < end; i++ {
		_, id, ok := c.order.GetAt(i)
		if !ok {
			break
		}
		items = append(items, c.entries[id].desc)
	}
	return items
}

func (c *Catalog) insertLocked(d domain.MediaDescriptor) {
	c.nextSeq++
	c.order.Set(c.nextSeq, d.ID)
	c.entries[d.ID] = entry{seq: c.nextSeq, desc: d}
}

func (c *Catalog) removeLocked(id string) {
	e, ok := c.entries[id]
	if !ok {
		return
	}
	c.order.Delete(e.seq)
	delete(c.entries, id)
}
