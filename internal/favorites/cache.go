package favorites

import (
	"sort"
	"sync"
)

// Cache is the shared in-memory favorites view. The HTTP surface reads from
// it, the synchronizer applies optimistic edits to it, and the subscription
// feed replaces it wholesale on remote updates. Subscribers get a full
// snapshot on every change.
type Cache struct {
	mu    sync.RWMutex
	items map[string]Favorite
	subs  map[int]chan []Favorite
	subID int
}

func NewCache() *Cache {
	return &Cache{
		items: make(map[string]Favorite),
		subs:  make(map[int]chan []Favorite),
	}
}

// Snapshot returns the favorites ordered by creation time.
func (c *Cache) Snapshot() []Favorite {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Cache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[key]
	return ok
}

// Put adds or overwrites one favorite and notifies subscribers.
func (c *Cache) Put(f Favorite) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[f.Key()] = f
	c.notifyLocked()
}

// Drop removes one favorite and notifies subscribers.
func (c *Cache) Drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	c.notifyLocked()
}

// ReplaceAll swaps the whole view, used when the store is reloaded.
func (c *Cache) ReplaceAll(favorites []Favorite) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]Favorite, len(favorites))
	for _, f := range favorites {
		c.items[f.Key()] = f
	}
	c.notifyLocked()
}

// Subscribe registers a snapshot feed. The returned cancel func must be
// called to release the subscription.
func (c *Cache) Subscribe() (<-chan []Favorite, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.subID
	c.subID++
	ch := make(chan []Favorite, 8)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *Cache) snapshotLocked() []Favorite {
	out := make([]Favorite, 0, len(c.items))
	for _, f := range c.items {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key() < out[j].Key()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// notifyLocked never blocks: when a subscriber's buffer is full the oldest
// queued snapshot is evicted, so the latest one is always enqueued and a slow
// subscriber only misses intermediate states.
func (c *Cache) notifyLocked() {
	snapshot := c.snapshotLocked()
	for _, sub := range c.subs {
		select {
		case sub <- snapshot:
			continue
		default:
		}
		select {
		case <-sub:
		default:
		}
		select {
		case sub <- snapshot:
		default:
		}
	}
}
