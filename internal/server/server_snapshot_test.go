package server

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"rollbook/internal/ledger"
)

// outageStore passes through to a memory store until failure is switched
// on, after which reads of game state report the store unavailable.
type outageStore struct {
	ledger.Store
	mu   sync.Mutex
	fail bool
}

func (s *outageStore) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *outageStore) failing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail
}

func (s *outageStore) GetGame(ctx context.Context, id uint) (*ledger.Game, error) {
	if s.failing() {
		return nil, &ledger.UnavailableError{Op: "get game"}
	}
	return s.Store.GetGame(ctx, id)
}

func TestSnapshotServesStaleCacheDuringOutage(t *testing.T) {
	store := &outageStore{Store: ledger.NewMemoryStore()}
	_, ts := newTestServerOn(t, store)

	gameID, joinCode := createGame(t, ts)
	adaID := joinPlayer(t, ts, joinCode, "Ada")
	addTurn(t, ts, gameID, adaID, 1, 600, false)

	// A successful fetch warms the cache.
	fresh := fetchSnapshot(t, ts, gameID)
	if fresh["stale"] != false {
		t.Fatalf("fresh snapshot flagged stale: %#v", fresh["stale"])
	}

	store.setFail(true)
	resp := doRequest(t, ts, http.MethodGet, gamePath(gameID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cached fallback: status %d, want %d", resp.StatusCode, http.StatusOK)
	}
	cached := decodeBody(t, resp)
	if cached["stale"] != true {
		t.Fatalf("fallback snapshot not flagged stale: %#v", cached["stale"])
	}
	if int(cached["game_id"].(float64)) != gameID {
		t.Errorf("fallback game_id = %v, want %d", cached["game_id"], gameID)
	}
	ada := snapshotPlayer(t, cached, adaID)
	if total := int(ada["total_score"].(float64)); total != 600 {
		t.Errorf("fallback total = %d, want 600", total)
	}

	// A game never fetched has nothing cached to fall back on.
	store.setFail(false)
	coldID, _ := createGame(t, ts)
	store.setFail(true)
	resp = doRequest(t, ts, http.MethodGet, gamePath(coldID), nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("cold outage: status %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	// Recovery replaces the stale entry with a fresh view.
	store.setFail(false)
	recovered := fetchSnapshot(t, ts, gameID)
	if recovered["stale"] != false {
		t.Fatalf("recovered snapshot still stale: %#v", recovered["stale"])
	}
}
