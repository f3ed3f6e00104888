package server

import (
	"rollbook/internal/ledger"
	"rollbook/internal/scoring"
	gamesync "rollbook/internal/sync"
)

// snapshot renders a full view payload. Clients always replace their local
// state with it; nothing downstream ever patches incrementally.
func snapshot(view gamesync.View) map[string]any {
	players := make([]map[string]any, 0, len(view.Players))
	grid := scoring.Grid(view.Players, view.Turns, view.Game.RoundCount)
	for _, player := range view.Players {
		players = append(players, map[string]any{
			"id":          player.ID,
			"name":        player.Name,
			"guest":       player.Guest,
			"total_score": player.TotalScore,
			"on_board":    player.OnBoard,
			"position":    player.Position,
			"eligible":    scoring.IsEligibleWinner(player.TotalScore),
			"rounds":      gridRow(grid[player.ID]),
		})
	}
	payload := map[string]any{
		"type":        "snapshot",
		"game_id":     view.Game.ID,
		"join_code":   view.Game.JoinCode,
		"status":      string(view.Game.Status),
		"round_count": view.Game.RoundCount,
		"players":     players,
		"stale":       view.Stale,
		"fetched_at":  view.FetchedAt,
	}
	if view.Game.WinningPlayerID != nil {
		payload["winning_player_id"] = *view.Game.WinningPlayerID
	}
	if view.Game.WinningScore != nil {
		payload["winning_score"] = *view.Game.WinningScore
	}
	if view.Game.FinishedAt != nil {
		payload["finished_at"] = *view.Game.FinishedAt
	}
	return payload
}

func gridRow(results []scoring.TurnResult) []map[string]any {
	row := make([]map[string]any, 0, len(results))
	for _, result := range results {
		cell := map[string]any{
			"state": stateName(result.Kind),
		}
		if result.Kind != scoring.NoScore {
			cell["score"] = result.Score
			cell["turn_id"] = result.TurnID
		}
		row = append(row, cell)
	}
	return row
}

func stateName(kind scoring.Kind) string {
	switch kind {
	case scoring.Busted:
		return "bust"
	case scoring.Scored:
		return "scored"
	default:
		return "none"
	}
}

func turnPayload(turn *ledger.Turn) map[string]any {
	return map[string]any{
		"turn_id":      turn.ID,
		"game_id":      turn.GameID,
		"player_id":    turn.PlayerID,
		"round_number": turn.RoundNumber,
		"score":        turn.Score,
		"bust":         turn.Bust,
		"closed":       turn.Closed,
		"note":         turn.Note,
		"client_key":   turn.ClientKey,
	}
}
