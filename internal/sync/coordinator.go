package sync

import (
	"context"
	"log"
	"time"

	"rollbook/internal/ledger"
)

const (
	// DefaultFetchTimeout bounds one refetch attempt.
	DefaultFetchTimeout = 5 * time.Second
)

// Coordinator watches one game's change notifications and broadcast hints
// and keeps the session cache converged. The protocol is level-triggered:
// every signal, whatever row or hint produced it, funnels into the same
// full refetch, so duplicate and out-of-order signals are harmless. A burst
// of signals coalesces into a single fetch, which also absorbs the echo of
// a client's own broadcast arriving alongside the change notification.
type Coordinator struct {
	store        ledger.Store
	cache        *Cache
	gameID       uint
	fetchTimeout time.Duration
	onUpdate     func(View)
}

type Option func(*Coordinator)

// WithFetchTimeout overrides the per-attempt fetch timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.fetchTimeout = d }
}

// WithOnUpdate registers a callback invoked after each successful refetch.
func WithOnUpdate(fn func(View)) Option {
	return func(c *Coordinator) { c.onUpdate = fn }
}

func NewCoordinator(store ledger.Store, cache *Cache, gameID uint, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        store,
		cache:        cache,
		gameID:       gameID,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run subscribes and loops until ctx is cancelled. It refetches once up
// front so the cache is warm before the first signal.
func (c *Coordinator) Run(ctx context.Context) {
	changes := c.store.Subscribe(c.gameID)
	defer changes.Close()
	hints := c.store.SubscribeHints(c.gameID)
	defer hints.Close()

	c.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes.C:
			if !ok {
				return
			}
		case _, ok := <-hints.C:
			if !ok {
				return
			}
		}
		c.drainPending(changes, hints)
		c.refresh(ctx)
	}
}

// drainPending collapses queued signals so one refetch covers them all.
func (c *Coordinator) drainPending(changes *ledger.Subscription, hints *ledger.HintSubscription) {
	for {
		select {
		case <-changes.C:
		case <-hints.C:
		default:
			return
		}
	}
}

// refresh fetches the canonical state with a bounded timeout and a single
// retry, replacing the cached view on success. On failure the previous
// view is kept and marked stale rather than blocking or discarding it.
func (c *Coordinator) refresh(ctx context.Context) {
	view, err := c.fetchOnce(ctx)
	if err != nil {
		view, err = c.fetchOnce(ctx)
	}
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("refetch failed game_id=%d error=%v", c.gameID, err)
		}
		c.cache.MarkStale(c.gameID)
		return
	}
	c.cache.Put(c.gameID, view)
	if c.onUpdate != nil {
		c.onUpdate(view)
	}
}

func (c *Coordinator) fetchOnce(ctx context.Context) (View, error) {
	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	return FetchView(fctx, c.store, c.gameID)
}

// FetchView reads the full canonical state for a game. The same path
// serves the coordinator and direct cache warm-up on view entry.
func FetchView(ctx context.Context, store ledger.Store, gameID uint) (View, error) {
	game, err := store.GetGame(ctx, gameID)
	if err != nil {
		return View{}, err
	}
	players, err := store.ListPlayers(ctx, gameID)
	if err != nil {
		return View{}, err
	}
	turns, err := store.ListTurns(ctx, gameID)
	if err != nil {
		return View{}, err
	}
	return View{
		Game:      *game,
		Players:   players,
		Turns:     turns,
		FetchedAt: time.Now().UTC(),
	}, nil
}
