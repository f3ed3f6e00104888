// Package sync keeps each client's derived view converged with the ledger.
// The coordinator treats every change notification and broadcast hint as an
// invalidation signal and refetches the canonical state; the cache holds the
// last good view per game so re-entering a game is instant while a
// background refetch revalidates.
package sync

import (
	stdsync "sync"
	"time"

	"rollbook/internal/ledger"
)

// View is the last successfully fetched state for one game. Stale is set
// when a revalidation attempt failed after the view was fetched.
type View struct {
	Game      ledger.Game
	Players   []ledger.Player
	Turns     []ledger.Turn
	FetchedAt time.Time
	Stale     bool
}

// Cache is a process-wide, per-game view cache. Entries are replaced
// wholesale, never merged, and there is no eviction beyond Forget; the
// key space is bounded by the games a process has touched.
type Cache struct {
	mu    stdsync.Mutex
	views map[uint]View
}

func NewCache() *Cache {
	return &Cache{views: make(map[uint]View)}
}

func (c *Cache) Get(gameID uint) (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.views[gameID]
	return view, ok
}

func (c *Cache) Put(gameID uint, view View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[gameID] = view
}

// MarkStale flags an existing entry without discarding it; the cached data
// keeps serving reads until a refetch succeeds.
func (c *Cache) MarkStale(gameID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if view, ok := c.views[gameID]; ok {
		view.Stale = true
		c.views[gameID] = view
	}
}

func (c *Cache) Forget(gameID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, gameID)
}
