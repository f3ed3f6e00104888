package server

import (
	"net/http"
	"strconv"
	"testing"
)

func TestCreateAndJoinFlow(t *testing.T) {
	_, ts := newTestServerWith(t)

	gameID, joinCode := createGame(t, ts)
	if len(joinCode) != 6 {
		t.Fatalf("join code %q should be 6 characters", joinCode)
	}
	adaID := joinPlayer(t, ts, joinCode, "Ada")
	benID := joinPlayer(t, ts, joinCode, "Ben")

	snap := fetchSnapshot(t, ts, gameID)
	if snap["status"] != "active" {
		t.Errorf("status = %v, want active", snap["status"])
	}
	if int(snap["round_count"].(float64)) != 10 {
		t.Errorf("round_count = %v, want 10", snap["round_count"])
	}
	ada := snapshotPlayer(t, snap, adaID)
	if ada["name"] != "Ada" || int(ada["position"].(float64)) != 0 {
		t.Errorf("unexpected first player: %#v", ada)
	}
	ben := snapshotPlayer(t, snap, benID)
	if int(ben["position"].(float64)) != 1 {
		t.Errorf("second player position = %v, want 1", ben["position"])
	}
}

func TestJoinValidation(t *testing.T) {
	_, ts := newTestServerWith(t)
	_, joinCode := createGame(t, ts)

	resp := doRequest(t, ts, http.MethodPost, "/api/games/join", map[string]any{
		"code": "abc", "name": "Ada",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short code: status %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	resp = doRequest(t, ts, http.MethodPost, "/api/games/join", map[string]any{
		"code": "ZZZZZZ", "name": "Ada",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown code: status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	joinPlayer(t, ts, joinCode, "Ada")
	resp = doRequest(t, ts, http.MethodPost, "/api/games/join", map[string]any{
		"code": joinCode, "name": "Ada",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate name: status %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestTurnLifecycleOverHTTP(t *testing.T) {
	_, ts := newTestServerWith(t)
	gameID, joinCode := createGame(t, ts)
	adaID := joinPlayer(t, ts, joinCode, "Ada")

	turnID := addTurn(t, ts, gameID, adaID, 1, 600, false)

	snap := fetchSnapshot(t, ts, gameID)
	ada := snapshotPlayer(t, snap, adaID)
	if int(ada["total_score"].(float64)) != 600 {
		t.Errorf("total = %v, want 600", ada["total_score"])
	}
	if ada["on_board"] != true {
		t.Error("player should be on board")
	}
	rounds := ada["rounds"].([]any)
	if len(rounds) != 10 {
		t.Fatalf("grid has %d cells, want 10", len(rounds))
	}
	first := rounds[0].(map[string]any)
	if first["state"] != "scored" || int(first["score"].(float64)) != 600 {
		t.Errorf("round 1 cell: %#v", first)
	}

	resp := doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/turns/"+strconv.Itoa(turnID), map[string]any{
		"score": 300,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update turn: status %d", resp.StatusCode)
	}
	snap = fetchSnapshot(t, ts, gameID)
	if total := int(snapshotPlayer(t, snap, adaID)["total_score"].(float64)); total != 300 {
		t.Errorf("total after edit = %d, want 300", total)
	}

	resp = doRequest(t, ts, http.MethodDelete, gamePath(gameID)+"/turns/"+strconv.Itoa(turnID), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete turn: status %d", resp.StatusCode)
	}
	snap = fetchSnapshot(t, ts, gameID)
	if total := int(snapshotPlayer(t, snap, adaID)["total_score"].(float64)); total != 0 {
		t.Errorf("total after delete = %d, want 0", total)
	}
	// Deleting again is a no-op, not an error.
	resp = doRequest(t, ts, http.MethodDelete, gamePath(gameID)+"/turns/"+strconv.Itoa(turnID), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("repeat delete: status %d", resp.StatusCode)
	}
}

func TestTurnValidationOverHTTP(t *testing.T) {
	_, ts := newTestServerWith(t)
	gameID, joinCode := createGame(t, ts)
	adaID := joinPlayer(t, ts, joinCode, "Ada")

	resp := doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/turns", map[string]any{
		"player_id": adaID,
		"score":     325,
		"closed":    true,
		"round":     1,
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("off-grid score: status %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}

	resp = doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/turns", map[string]any{
		"player_id": 9999,
		"score":     300,
		"closed":    true,
		"round":     1,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown player: status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestDuplicateClientKeyOverHTTP(t *testing.T) {
	_, ts := newTestServerWith(t)
	gameID, joinCode := createGame(t, ts)
	adaID := joinPlayer(t, ts, joinCode, "Ada")

	payload := map[string]any{
		"player_id":  adaID,
		"score":      600,
		"closed":     true,
		"round":      1,
		"client_key": "retry-1",
	}
	resp := doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/turns", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first submit: status %d", resp.StatusCode)
	}
	firstID := int(decodeBody(t, resp)["turn_id"].(float64))

	resp = doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/turns", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("resend: status %d", resp.StatusCode)
	}
	if secondID := int(decodeBody(t, resp)["turn_id"].(float64)); secondID != firstID {
		t.Fatalf("resend created a new turn: %d != %d", secondID, firstID)
	}

	snap := fetchSnapshot(t, ts, gameID)
	if total := int(snapshotPlayer(t, snap, adaID)["total_score"].(float64)); total != 600 {
		t.Errorf("total after resend = %d, want 600", total)
	}
}

func TestRoundCountOverHTTP(t *testing.T) {
	_, ts := newTestServerWith(t)
	gameID, joinCode := createGame(t, ts)
	adaID := joinPlayer(t, ts, joinCode, "Ada")

	resp := doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/rounds", map[string]any{"count": 12})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("apply round count: status %d", resp.StatusCode)
	}
	if count := int(decodeBody(t, resp)["round_count"].(float64)); count != 12 {
		t.Errorf("round_count = %d, want 12", count)
	}

	resp = doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/rounds", map[string]any{"count": 50})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("out-of-bounds count: status %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}

	addTurn(t, ts, gameID, adaID, 9, 300, false)
	resp = doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/rounds", map[string]any{"count": 8})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("destructive shrink: status %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestFinishAndReopenOverHTTP(t *testing.T) {
	_, ts := newTestServerWith(t)
	gameID, joinCode := createGame(t, ts)
	adaID := joinPlayer(t, ts, joinCode, "Ada")
	benID := joinPlayer(t, ts, joinCode, "Ben")

	for round := 1; round <= 2; round++ {
		addTurn(t, ts, gameID, adaID, round, 5000, false)
	}
	// Ben never scored; finishing must not require his rows up front.
	resp := doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/finish", map[string]any{"winner_id": benID})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("ineligible winner: status %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}

	resp = doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/finish", map[string]any{"winner_id": adaID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finish: status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "complete" {
		t.Errorf("status = %v, want complete", body["status"])
	}
	if score := int(body["winning_score"].(float64)); score != 10000 {
		t.Errorf("winning_score = %d, want 10000", score)
	}

	snap := fetchSnapshot(t, ts, gameID)
	ben := snapshotPlayer(t, snap, benID)
	rounds := ben["rounds"].([]any)
	for i := 0; i < 2; i++ {
		cell := rounds[i].(map[string]any)
		if cell["state"] != "bust" {
			t.Errorf("ben round %d should be backfilled as bust, got %#v", i+1, cell)
		}
	}

	resp = doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/reopen", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reopen: status %d", resp.StatusCode)
	}
	snap = fetchSnapshot(t, ts, gameID)
	if snap["status"] != "active" {
		t.Errorf("status after reopen = %v, want active", snap["status"])
	}
	if _, ok := snap["winning_player_id"]; ok {
		t.Error("winner should be cleared after reopen")
	}
}

func TestRemovePlayerOverHTTP(t *testing.T) {
	_, ts := newTestServerWith(t)
	gameID, joinCode := createGame(t, ts)
	adaID := joinPlayer(t, ts, joinCode, "Ada")
	benID := joinPlayer(t, ts, joinCode, "Ben")
	addTurn(t, ts, gameID, benID, 1, 300, false)

	resp := doRequest(t, ts, http.MethodDelete, gamePath(gameID)+"/players/"+strconv.Itoa(benID), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove player: status %d", resp.StatusCode)
	}
	snap := fetchSnapshot(t, ts, gameID)
	players := snap["players"].([]any)
	if len(players) != 1 {
		t.Fatalf("expected 1 player after removal, got %d", len(players))
	}
	if id := int(players[0].(map[string]any)["id"].(float64)); id != adaID {
		t.Errorf("remaining player = %d, want %d", id, adaID)
	}
}

func TestDeleteRoundOverHTTP(t *testing.T) {
	_, ts := newTestServerWith(t)
	gameID, joinCode := createGame(t, ts)
	adaID := joinPlayer(t, ts, joinCode, "Ada")
	addTurn(t, ts, gameID, adaID, 1, 500, false)
	addTurn(t, ts, gameID, adaID, 2, 700, false)

	resp := doRequest(t, ts, http.MethodDelete, gamePath(gameID)+"/rounds/2", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete round: status %d", resp.StatusCode)
	}
	snap := fetchSnapshot(t, ts, gameID)
	ada := snapshotPlayer(t, snap, adaID)
	if total := int(ada["total_score"].(float64)); total != 500 {
		t.Errorf("total = %d, want 500", total)
	}
	second := ada["rounds"].([]any)[1].(map[string]any)
	if second["state"] != "none" {
		t.Errorf("round 2 cell should be empty, got %#v", second)
	}
}

func TestUnknownGameReturnsNotFound(t *testing.T) {
	_, ts := newTestServerWith(t)
	resp := doRequest(t, ts, http.MethodGet, "/api/games/9999", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestTurnAndPlayerRoutesScopedToGame(t *testing.T) {
	_, ts := newTestServerWith(t)
	gameID, joinCode := createGame(t, ts)
	adaID := joinPlayer(t, ts, joinCode, "Ada")
	turnID := addTurn(t, ts, gameID, adaID, 1, 600, false)

	otherID, _ := createGame(t, ts)

	// Rows from one game are invisible under another game's paths.
	resp := doRequest(t, ts, http.MethodPost, gamePath(otherID)+"/turns/"+strconv.Itoa(turnID), map[string]any{
		"score": 50,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-game update: status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp = doRequest(t, ts, http.MethodDelete, gamePath(otherID)+"/turns/"+strconv.Itoa(turnID), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-game turn delete: status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp = doRequest(t, ts, http.MethodDelete, gamePath(otherID)+"/players/"+strconv.Itoa(adaID), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-game player remove: status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	snap := fetchSnapshot(t, ts, gameID)
	ada := snapshotPlayer(t, snap, adaID)
	if total := int(ada["total_score"].(float64)); total != 600 {
		t.Errorf("total = %d, want 600 after rejected cross-game edits", total)
	}
	first := ada["rounds"].([]any)[0].(map[string]any)
	if first["state"] != "scored" {
		t.Errorf("round 1 cell should survive, got %#v", first)
	}

	// A wholly absent turn still deletes silently under its own game.
	resp = doRequest(t, ts, http.MethodDelete, gamePath(gameID)+"/turns/424242", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("missing turn delete: status %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}
