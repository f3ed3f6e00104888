package game

import (
	"context"
	"log"

	"rollbook/internal/ledger"
)

// ApplyRoundCount validates and records a new configured round count.
// Shrinking below a round that still holds recorded turns is refused
// outright; this manager never deletes turn data. On success a hint
// carrying the new count is broadcast so connected clients adjust their
// grids without waiting for the change-notification round trip.
func (m *Manager) ApplyRoundCount(ctx context.Context, gameID uint, target int) (*ledger.Game, error) {
	if err := validateRoundCount(target); err != nil {
		return nil, err
	}
	game, err := m.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if target < game.RoundCount {
		blocking, err := m.store.TurnsAboveRound(ctx, gameID, target)
		if err != nil {
			return nil, err
		}
		if len(blocking) > 0 {
			first, last := blocking[0].RoundNumber, blocking[0].RoundNumber
			for _, turn := range blocking {
				if turn.RoundNumber < first {
					first = turn.RoundNumber
				}
				if turn.RoundNumber > last {
					last = turn.RoundNumber
				}
			}
			return nil, &ledger.DestructiveChangeError{FirstRound: first, LastRound: last, TurnCount: len(blocking)}
		}
	}
	updated, err := m.store.UpdateGame(ctx, gameID, ledger.GamePatch{RoundCount: &target})
	if err != nil {
		return nil, err
	}
	if err := m.store.Broadcast(ctx, gameID, ledger.Hint{Type: ledger.HintRoundCount, RoundCount: target}); err != nil {
		log.Printf("round count hint failed game_id=%d error=%v", gameID, err)
	}
	log.Printf("round count changed game_id=%d rounds=%d", gameID, target)
	return updated, nil
}
