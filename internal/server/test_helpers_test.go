package server

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"rollbook/internal/config"
	"rollbook/internal/ledger"
)

func newTestServerWith(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	return newTestServerOn(t, ledger.NewMemoryStore())
}

func newTestServerOn(t *testing.T, store ledger.Store) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(store, config.Default())
	srv.limiter.disabled = true
	t.Cleanup(srv.Close)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return srv, ts
}

func createGame(t *testing.T, ts *httptest.Server) (int, string) {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/games", map[string]any{"rounds": 10})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	body := decodeBody(t, resp)
	return int(body["game_id"].(float64)), body["join_code"].(string)
}

func joinPlayer(t *testing.T, ts *httptest.Server, joinCode, name string) int {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/games/join", map[string]any{
		"code": joinCode,
		"name": name,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	body := decodeBody(t, resp)
	return int(body["player_id"].(float64))
}

func addTurn(t *testing.T, ts *httptest.Server, gameID, playerID, round, score int, bust bool) int {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, gamePath(gameID)+"/turns", map[string]any{
		"player_id": playerID,
		"score":     score,
		"bust":      bust,
		"closed":    true,
		"round":     round,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	body := decodeBody(t, resp)
	return int(body["turn_id"].(float64))
}

func fetchSnapshot(t *testing.T, ts *httptest.Server, gameID int) map[string]any {
	t.Helper()
	resp := doRequest(t, ts, http.MethodGet, gamePath(gameID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	return decodeBody(t, resp)
}

func snapshotPlayer(t *testing.T, snap map[string]any, playerID int) map[string]any {
	t.Helper()
	players, ok := snap["players"].([]any)
	if !ok {
		t.Fatalf("snapshot missing players: %#v", snap)
	}
	for _, raw := range players {
		player := raw.(map[string]any)
		if int(player["id"].(float64)) == playerID {
			return player
		}
	}
	t.Fatalf("player %d not in snapshot", playerID)
	return nil
}

func gamePath(gameID int) string {
	return "/api/games/" + strconv.Itoa(gameID)
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}
