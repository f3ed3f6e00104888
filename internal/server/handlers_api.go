package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"rollbook/internal/game"
	"rollbook/internal/ledger"
	gamesync "rollbook/internal/sync"
)

type createGameRequest struct {
	// Rounds 0 selects the configured default; bounds checking happens in
	// the manager so the caller sees the same error as a later change.
	Rounds int `json:"rounds"`
}

type joinGameRequest struct {
	Code  string `json:"code" validate:"required,len=6,alphanum"`
	Name  string `json:"name" validate:"required,max=40"`
	Guest bool   `json:"guest"`
}

type addTurnRequest struct {
	PlayerID  uint   `json:"player_id" validate:"required"`
	Score     int    `json:"score"`
	Bust      bool   `json:"bust"`
	Closed    bool   `json:"closed"`
	Round     int    `json:"round" validate:"omitempty,min=0"`
	Note      string `json:"note" validate:"max=280"`
	ClientKey string `json:"client_key" validate:"omitempty,max=64"`
}

type updateTurnRequest struct {
	Score *int    `json:"score"`
	Bust  *bool   `json:"bust"`
	Note  *string `json:"note" validate:"omitempty,max=280"`
}

type roundCountRequest struct {
	Count int `json:"count" validate:"required"`
}

type finishRequest struct {
	WinnerID uint `json:"winner_id" validate:"required"`
	// Score is accepted for wire compatibility but ignored; the recorded
	// winning score is always recomputed from the ledger.
	Score int `json:"score" validate:"omitempty,min=0"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	if !s.enforceRateLimit(w, r, "create") {
		return
	}
	req := createGameRequest{}
	if r.ContentLength > 0 {
		if !bindJSON(w, r, &req, nil, "invalid create request") {
			return
		}
	}
	rounds := req.Rounds
	if rounds == 0 {
		rounds = s.cfg.DefaultRoundCount
	}
	created, err := s.games.CreateGame(r.Context(), rounds)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"game_id":     created.ID,
		"join_code":   created.JoinCode,
		"round_count": created.RoundCount,
	})
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	if !s.enforceRateLimit(w, r, "join") {
		return
	}
	var req joinGameRequest
	messages := bindMessages{
		"Code": {"len": "join code must be exactly 6 characters", "alphanum": "join code must be letters and digits"},
		"Name": {"required": "name is required", "max": "name must be 40 characters or fewer"},
	}
	if !bindJSON(w, r, &req, messages, "invalid join request") {
		return
	}
	joined, player, err := s.games.JoinGame(r.Context(), req.Code, req.Name, req.Guest)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.ensureCoordinator(joined.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"game_id":   joined.ID,
		"player_id": player.ID,
		"name":      player.Name,
		"position":  player.Position,
	})
}

func (s *Server) handleGameSubroutes(w http.ResponseWriter, r *http.Request) {
	gameID, section, arg, ok := parseGamePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch {
	case section == "" && r.Method == http.MethodGet:
		s.handleSnapshot(w, r, gameID)
	case section == "" && r.Method == http.MethodDelete:
		s.handleDeleteGame(w, r, gameID)
	case section == "turns" && arg == "" && r.Method == http.MethodPost:
		s.handleAddTurn(w, r, gameID)
	case section == "turns" && arg != "" && r.Method == http.MethodPost:
		s.handleUpdateTurn(w, r, gameID, arg)
	case section == "turns" && arg != "" && r.Method == http.MethodDelete:
		s.handleDeleteTurn(w, r, gameID, arg)
	case section == "rounds" && arg == "" && r.Method == http.MethodPost:
		s.handleRoundCount(w, r, gameID)
	case section == "rounds" && arg != "" && r.Method == http.MethodDelete:
		s.handleDeleteRound(w, r, gameID, arg)
	case section == "players" && arg != "" && r.Method == http.MethodDelete:
		s.handleRemovePlayer(w, r, gameID, arg)
	case section == "finish" && arg == "" && r.Method == http.MethodPost:
		s.handleFinish(w, r, gameID)
	case section == "reopen" && arg == "" && r.Method == http.MethodPost:
		s.handleReopen(w, r, gameID)
	default:
		http.NotFound(w, r)
	}
}

// handleSnapshot refetches the canonical view with the configured timeout.
// When the fetch fails and a cached view exists, the cached view is served
// with its staleness flagged instead of blocking the caller.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, gameID uint) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.cfg.FetchTimeoutSeconds)*time.Second)
	defer cancel()
	view, err := gamesync.FetchView(ctx, s.store, gameID)
	if err != nil {
		s.cache.MarkStale(gameID)
		if cached, ok := s.cache.Get(gameID); ok {
			writeJSON(w, http.StatusOK, snapshot(cached))
			return
		}
		writeLedgerError(w, err)
		return
	}
	s.cache.Put(gameID, view)
	writeJSON(w, http.StatusOK, snapshot(view))
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request, gameID uint) {
	if err := s.store.DeleteGame(r.Context(), gameID); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.cache.Forget(gameID)
	log.Printf("game deleted game_id=%d", gameID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddTurn(w http.ResponseWriter, r *http.Request, gameID uint) {
	var req addTurnRequest
	if !bindJSON(w, r, &req, nil, "invalid turn request") {
		return
	}
	turn, err := s.games.AddTurn(r.Context(), game.AddTurnParams{
		GameID:      gameID,
		PlayerID:    req.PlayerID,
		Score:       req.Score,
		Bust:        req.Bust,
		Closed:      req.Closed,
		RoundNumber: req.Round,
		Note:        req.Note,
		ClientKey:   req.ClientKey,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.ensureCoordinator(gameID)
	writeJSON(w, http.StatusCreated, turnPayload(turn))
}

func (s *Server) handleUpdateTurn(w http.ResponseWriter, r *http.Request, gameID uint, arg string) {
	turnID, ok := parseID(arg)
	if !ok {
		http.NotFound(w, r)
		return
	}
	var req updateTurnRequest
	if !bindJSON(w, r, &req, nil, "invalid turn request") {
		return
	}
	// Rows addressed under one game must not reach another game's ledger.
	existing, err := s.store.GetTurn(r.Context(), turnID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if existing.GameID != gameID {
		writeLedgerError(w, &ledger.NotFoundError{Resource: "turn"})
		return
	}
	turn, err := s.games.UpdateTurn(r.Context(), turnID, game.UpdateTurnParams{
		Score: req.Score,
		Bust:  req.Bust,
		Note:  req.Note,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnPayload(turn))
}

func (s *Server) handleDeleteTurn(w http.ResponseWriter, r *http.Request, gameID uint, arg string) {
	turnID, ok := parseID(arg)
	if !ok {
		http.NotFound(w, r)
		return
	}
	existing, err := s.store.GetTurn(r.Context(), turnID)
	if err != nil {
		if ledger.IsNotFound(err) {
			// Already gone, same outcome as a successful delete.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeLedgerError(w, err)
		return
	}
	if existing.GameID != gameID {
		writeLedgerError(w, &ledger.NotFoundError{Resource: "turn"})
		return
	}
	if err := s.games.DeleteTurn(r.Context(), turnID); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoundCount(w http.ResponseWriter, r *http.Request, gameID uint) {
	var req roundCountRequest
	if !bindJSON(w, r, &req, nil, "invalid round count request") {
		return
	}
	updated, err := s.games.ApplyRoundCount(r.Context(), gameID, req.Count)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game_id":     updated.ID,
		"round_count": updated.RoundCount,
	})
}

func (s *Server) handleDeleteRound(w http.ResponseWriter, r *http.Request, gameID uint, arg string) {
	round, ok := parseID(arg)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := s.games.DeleteRound(r.Context(), gameID, int(round)); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemovePlayer(w http.ResponseWriter, r *http.Request, gameID uint, arg string) {
	playerID, ok := parseID(arg)
	if !ok {
		http.NotFound(w, r)
		return
	}
	existing, err := s.store.GetPlayer(r.Context(), playerID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if existing.GameID != gameID {
		writeLedgerError(w, &ledger.NotFoundError{Resource: "player"})
		return
	}
	if err := s.games.RemovePlayer(r.Context(), playerID); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request, gameID uint) {
	var req finishRequest
	if !bindJSON(w, r, &req, nil, "invalid finish request") {
		return
	}
	finished, err := s.games.Finish(r.Context(), gameID, req.WinnerID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	resp := map[string]any{
		"game_id": finished.ID,
		"status":  string(finished.Status),
	}
	if finished.WinningPlayerID != nil {
		resp["winning_player_id"] = *finished.WinningPlayerID
	}
	if finished.WinningScore != nil {
		resp["winning_score"] = *finished.WinningScore
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request, gameID uint) {
	reopened, err := s.games.Reopen(r.Context(), gameID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game_id": reopened.ID,
		"status":  string(reopened.Status),
	})
}
