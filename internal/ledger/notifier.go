package ledger

import "sync"

const subscriptionBuffer = 16

// notifier fans change events and broadcast hints out to per-game
// subscribers. Delivery is non-blocking: a subscriber that falls behind
// drops signals, which is harmless because every signal triggers the same
// full refetch.
type notifier struct {
	mu      sync.Mutex
	changes map[uint]map[*Subscription]struct{}
	hints   map[uint]map[*HintSubscription]struct{}
}

func newNotifier() *notifier {
	return &notifier{
		changes: make(map[uint]map[*Subscription]struct{}),
		hints:   make(map[uint]map[*HintSubscription]struct{}),
	}
}

// Subscription is a stream of change events for one game. Close it when done.
type Subscription struct {
	C <-chan ChangeEvent

	n      *notifier
	gameID uint
	ch     chan ChangeEvent
	once   sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.n.mu.Lock()
		defer s.n.mu.Unlock()
		if group := s.n.changes[s.gameID]; group != nil {
			delete(group, s)
			if len(group) == 0 {
				delete(s.n.changes, s.gameID)
			}
		}
		close(s.ch)
	})
}

// HintSubscription is a stream of broadcast hints for one game.
type HintSubscription struct {
	C <-chan Hint

	n      *notifier
	gameID uint
	ch     chan Hint
	once   sync.Once
}

func (s *HintSubscription) Close() {
	s.once.Do(func() {
		s.n.mu.Lock()
		defer s.n.mu.Unlock()
		if group := s.n.hints[s.gameID]; group != nil {
			delete(group, s)
			if len(group) == 0 {
				delete(s.n.hints, s.gameID)
			}
		}
		close(s.ch)
	})
}

func (n *notifier) subscribe(gameID uint) *Subscription {
	ch := make(chan ChangeEvent, subscriptionBuffer)
	sub := &Subscription{C: ch, n: n, gameID: gameID, ch: ch}
	n.mu.Lock()
	group := n.changes[gameID]
	if group == nil {
		group = make(map[*Subscription]struct{})
		n.changes[gameID] = group
	}
	group[sub] = struct{}{}
	n.mu.Unlock()
	return sub
}

func (n *notifier) subscribeHints(gameID uint) *HintSubscription {
	ch := make(chan Hint, subscriptionBuffer)
	sub := &HintSubscription{C: ch, n: n, gameID: gameID, ch: ch}
	n.mu.Lock()
	group := n.hints[gameID]
	if group == nil {
		group = make(map[*HintSubscription]struct{})
		n.hints[gameID] = group
	}
	group[sub] = struct{}{}
	n.mu.Unlock()
	return sub
}

func (n *notifier) publishChange(gameID uint, event ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.changes[gameID] {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

func (n *notifier) publishHint(gameID uint, hint Hint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.hints[gameID] {
		select {
		case sub.ch <- hint:
		default:
		}
	}
}
