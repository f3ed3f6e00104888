package game

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"rollbook/internal/ledger"
	"rollbook/internal/scoring"

	"github.com/google/uuid"
)

// Finish closes a game: it backfills missing scores so every played round
// has a row for every player, verifies the winner's eligibility against a
// recomputed total, and records the result. The recorded winning score is
// always the resolver's own recomputation, never a caller-supplied value.
func (m *Manager) Finish(ctx context.Context, gameID uint, winnerPlayerID uint) (*ledger.Game, error) {
	game, err := m.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status == ledger.GameComplete {
		return nil, &ledger.ValidationError{Field: "status", Reason: "game is already finished"}
	}
	players, err := m.store.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := m.cleanupMissingScores(ctx, gameID, players); err != nil {
		return nil, err
	}
	if err := m.reconcileTotals(ctx, players); err != nil {
		return nil, err
	}

	var winner *ledger.Player
	for i := range players {
		if players[i].ID == winnerPlayerID {
			winner = &players[i]
			break
		}
	}
	if winner == nil {
		return nil, &ledger.NotFoundError{Resource: "player"}
	}
	winnerTurns, err := m.store.ListTurnsForPlayer(ctx, winner.ID)
	if err != nil {
		return nil, err
	}
	total := scoring.Total(winnerTurns)
	if !scoring.IsEligibleWinner(total) {
		return nil, &ledger.ValidationError{
			Field:  "winner",
			Reason: fmt.Sprintf("%s has %d points, needs %d to win", winner.Name, total, scoring.WinningThreshold),
		}
	}

	status := ledger.GameComplete
	updated, err := m.store.UpdateGame(ctx, gameID, ledger.GamePatch{
		Status: &status,
		Winner: &ledger.WinnerRecord{PlayerID: winner.ID, Score: total, FinishedAt: time.Now().UTC()},
	})
	if err != nil {
		return nil, err
	}
	if err := m.store.Broadcast(ctx, gameID, ledger.Hint{Type: ledger.HintGameFinished}); err != nil {
		log.Printf("finish hint failed game_id=%d error=%v", gameID, err)
	}
	log.Printf("game finished game_id=%d winner_id=%d score=%d", gameID, winner.ID, total)
	return updated, nil
}

// Reopen returns a finished game to the active state. The ledger is left
// untouched; only editability changes.
func (m *Manager) Reopen(ctx context.Context, gameID uint) (*ledger.Game, error) {
	game, err := m.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status != ledger.GameComplete {
		return nil, &ledger.ValidationError{Field: "status", Reason: "game is not finished"}
	}
	status := ledger.GameActive
	updated, err := m.store.UpdateGame(ctx, gameID, ledger.GamePatch{Status: &status, ClearWinner: true})
	if err != nil {
		return nil, err
	}
	if err := m.store.Broadcast(ctx, gameID, ledger.Hint{Type: ledger.HintGameReopened}); err != nil {
		log.Printf("reopen hint failed game_id=%d error=%v", gameID, err)
	}
	log.Printf("game reopened game_id=%d", gameID)
	return updated, nil
}

// cleanupMissingScores makes the ledger unambiguous before finishing. For
// every round number holding at least one committed turn, each player
// lacking a row there gets a zero-score bust; rounds holding only
// uncommitted placeholders have those rows deleted.
func (m *Manager) cleanupMissingScores(ctx context.Context, gameID uint, players []ledger.Player) error {
	turns, err := m.store.ListTurns(ctx, gameID)
	if err != nil {
		return err
	}
	byRound := make(map[int][]ledger.Turn)
	for _, turn := range turns {
		byRound[turn.RoundNumber] = append(byRound[turn.RoundNumber], turn)
	}
	rounds := make([]int, 0, len(byRound))
	for round := range byRound {
		rounds = append(rounds, round)
	}
	sort.Ints(rounds)

	for _, round := range rounds {
		roundTurns := byRound[round]
		committed := false
		for _, turn := range roundTurns {
			if turn.Closed {
				committed = true
				break
			}
		}
		if !committed {
			// Placeholder-only round: unused capacity, drop the rows.
			for _, turn := range roundTurns {
				if _, err := m.store.DeleteTurn(ctx, turn.ID); err != nil {
					return err
				}
			}
			continue
		}
		have := make(map[uint]bool, len(roundTurns))
		for _, turn := range roundTurns {
			if turn.Closed {
				have[turn.PlayerID] = true
				continue
			}
			// Open placeholder in a committed round: the player never
			// banked, so drop the row and let the backfill below
			// record the miss explicitly.
			if _, err := m.store.DeleteTurn(ctx, turn.ID); err != nil {
				return err
			}
		}
		for _, player := range players {
			if have[player.ID] {
				continue
			}
			fill := &ledger.Turn{
				GameID:      gameID,
				PlayerID:    player.ID,
				RoundNumber: round,
				Score:       0,
				Bust:        true,
				Closed:      true,
				ClientKey:   uuid.NewString(),
			}
			if _, err := m.store.CreateTurn(ctx, fill); err != nil {
				return err
			}
			log.Printf("missing score backfilled game_id=%d player_id=%d round=%d", gameID, player.ID, round)
		}
	}
	return nil
}

// reconcileTotals resets each player's stored total to the sum recomputed
// from their turn history. Incremental corrections keep totals right in
// normal operation; finishing is the natural point to repair any drift.
func (m *Manager) reconcileTotals(ctx context.Context, players []ledger.Player) error {
	for _, player := range players {
		turns, err := m.store.ListTurnsForPlayer(ctx, player.ID)
		if err != nil {
			return err
		}
		total := scoring.Total(turns)
		if total == player.TotalScore {
			continue
		}
		onBoard := player.OnBoard || scoring.IsOnBoard(total)
		if _, err := m.store.UpdatePlayer(ctx, player.ID, ledger.PlayerPatch{TotalScore: &total, OnBoard: &onBoard}); err != nil {
			return err
		}
		log.Printf("total reconciled player_id=%d stored=%d actual=%d", player.ID, player.TotalScore, total)
	}
	return nil
}
