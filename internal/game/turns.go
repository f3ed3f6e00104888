package game

import (
	"context"
	"fmt"
	"log"
	"sort"

	"rollbook/internal/ledger"
	"rollbook/internal/scoring"

	"github.com/google/uuid"
)

type AddTurnParams struct {
	GameID      uint
	PlayerID    uint
	Score       int
	Bust        bool
	Closed      bool
	RoundNumber int // 0 assigns the next round after the game's current highest
	Note        string
	ClientKey   string // "" generates one; resent keys return the original row
}

// AddTurn records one turn and, when it contributes, advances the player's
// stored total and on-board flag.
func (m *Manager) AddTurn(ctx context.Context, p AddTurnParams) (*ledger.Turn, error) {
	if p.Score < 0 {
		return nil, &ledger.ValidationError{Field: "score", Reason: "must not be negative"}
	}
	if !p.Bust && !scoring.ValidScore(p.Score) {
		return nil, &ledger.ValidationError{
			Field:  "score",
			Reason: fmt.Sprintf("must be a multiple of %d between 0 and %d", scoring.ScoreStep, scoring.MaxTurnScore),
		}
	}
	player, err := m.store.GetPlayer(ctx, p.PlayerID)
	if err != nil {
		return nil, err
	}
	if player.GameID != p.GameID {
		return nil, &ledger.NotFoundError{Resource: "player"}
	}
	game, err := m.store.GetGame(ctx, p.GameID)
	if err != nil {
		return nil, err
	}
	round := p.RoundNumber
	if round == 0 {
		highest, err := m.store.MaxRoundNumber(ctx, p.GameID)
		if err != nil {
			return nil, err
		}
		round = highest + 1
	}
	if round < 1 {
		return nil, &ledger.ValidationError{Field: "round_number", Reason: "must be positive"}
	}
	// The configured round count always stays >= the highest recorded
	// round; the shrink guard in ApplyRoundCount enforces the other
	// direction.
	if round > game.RoundCount {
		return nil, &ledger.ValidationError{
			Field:  "round_number",
			Reason: fmt.Sprintf("exceeds the configured %d rounds", game.RoundCount),
		}
	}
	key := p.ClientKey
	if key == "" {
		key = uuid.NewString()
	}
	turn := &ledger.Turn{
		GameID:      p.GameID,
		PlayerID:    p.PlayerID,
		RoundNumber: round,
		Score:       p.Score,
		Bust:        p.Bust,
		Closed:      p.Closed,
		Note:        p.Note,
		ClientKey:   key,
	}
	created, err := m.store.CreateTurn(ctx, turn)
	if err != nil {
		return nil, err
	}
	if !created {
		// Duplicate client key: the original insert already settled the
		// total, so return the recorded row untouched.
		return turn, nil
	}
	if scoring.Counts(*turn) {
		total := player.TotalScore + turn.Score
		onBoard := player.OnBoard || scoring.IsOnBoard(turn.Score)
		if _, err := m.store.UpdatePlayer(ctx, p.PlayerID, ledger.PlayerPatch{TotalScore: &total, OnBoard: &onBoard}); err != nil {
			return nil, err
		}
	}
	log.Printf("turn added game_id=%d player_id=%d round=%d score=%d bust=%t", p.GameID, p.PlayerID, round, turn.Score, turn.Bust)
	return turn, nil
}

type UpdateTurnParams struct {
	Score *int
	Bust  *bool
	Note  *string
}

// UpdateTurn edits a recorded turn and applies a delta correction to the
// player's total. The prior score and bust values are re-read from the
// store inside the operation rather than taken from the caller, so a stale
// client cache cannot drift the total.
func (m *Manager) UpdateTurn(ctx context.Context, turnID uint, p UpdateTurnParams) (*ledger.Turn, error) {
	old, err := m.store.GetTurn(ctx, turnID)
	if err != nil {
		return nil, err
	}
	newScore := old.Score
	if p.Score != nil {
		newScore = *p.Score
	}
	newBust := old.Bust
	if p.Bust != nil {
		newBust = *p.Bust
	}
	if newScore < 0 {
		return nil, &ledger.ValidationError{Field: "score", Reason: "must not be negative"}
	}
	if !newBust && !scoring.ValidScore(newScore) {
		return nil, &ledger.ValidationError{
			Field:  "score",
			Reason: fmt.Sprintf("must be a multiple of %d between 0 and %d", scoring.ScoreStep, scoring.MaxTurnScore),
		}
	}
	updated, err := m.store.UpdateTurn(ctx, turnID, ledger.TurnPatch{Score: p.Score, Bust: p.Bust, Note: p.Note})
	if err != nil {
		return nil, err
	}
	if old.Closed {
		delta := contribution(newScore, newBust) - contribution(old.Score, old.Bust)
		if err := m.correctTotal(ctx, old.PlayerID, delta); err != nil {
			return nil, err
		}
	}
	log.Printf("turn updated turn_id=%d player_id=%d score=%d bust=%t", turnID, old.PlayerID, newScore, newBust)
	return updated, nil
}

// DeleteTurn removes a turn and reverses its contribution. Deleting an
// already-deleted turn is a no-op.
func (m *Manager) DeleteTurn(ctx context.Context, turnID uint) error {
	turn, err := m.store.GetTurn(ctx, turnID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil
		}
		return err
	}
	deleted, err := m.store.DeleteTurn(ctx, turnID)
	if err != nil {
		return err
	}
	if deleted && scoring.Counts(*turn) {
		if err := m.correctTotal(ctx, turn.PlayerID, -turn.Score); err != nil {
			return err
		}
	}
	log.Printf("turn deleted turn_id=%d player_id=%d round=%d", turnID, turn.PlayerID, turn.RoundNumber)
	return nil
}

// DeleteRound removes every turn recorded at the given round number and
// reverses each contribution. There is no multi-row transaction: rows are
// processed in turn-ID order and each step is idempotent, so a retry after
// a partial failure completes the remainder without double-correcting.
func (m *Manager) DeleteRound(ctx context.Context, gameID uint, roundNumber int) error {
	turns, err := m.store.ListTurnsForRound(ctx, gameID, roundNumber)
	if err != nil {
		return err
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].ID < turns[j].ID })
	for _, turn := range turns {
		deleted, err := m.store.DeleteTurn(ctx, turn.ID)
		if err != nil {
			return err
		}
		if deleted && scoring.Counts(turn) {
			if err := m.correctTotal(ctx, turn.PlayerID, -turn.Score); err != nil {
				return err
			}
		}
	}
	log.Printf("round deleted game_id=%d round=%d turns=%d", gameID, roundNumber, len(turns))
	return nil
}
