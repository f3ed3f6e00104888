// Package game implements the turn-ledger operations: recording and
// correcting turns, gating round-count changes, and finishing or reopening
// a game. All state lives in the ledger store; the manager owns the
// invariants, in particular that a player's stored total always equals the
// sum of their contributing turns.
package game

import (
	"context"
	"fmt"
	"log"
	"strings"

	"rollbook/internal/ledger"
	"rollbook/internal/scoring"
)

const (
	MinRoundCount     = 5
	MaxRoundCount     = 30
	DefaultRoundCount = 10

	maxNameLength = 40
)

type Manager struct {
	store ledger.Store
}

func NewManager(store ledger.Store) *Manager {
	return &Manager{store: store}
}

// CreateGame creates a game with a fresh join code. roundCount 0 selects
// the default. Join-code collisions are retried a bounded number of times
// before surfacing a try-again-later error.
func (m *Manager) CreateGame(ctx context.Context, roundCount int) (*ledger.Game, error) {
	if roundCount == 0 {
		roundCount = DefaultRoundCount
	}
	if err := validateRoundCount(roundCount); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		game := &ledger.Game{
			JoinCode:   newJoinCode(),
			Status:     ledger.GameActive,
			RoundCount: roundCount,
		}
		err := m.store.CreateGame(ctx, game)
		if err == nil {
			log.Printf("game created game_id=%d join_code=%s rounds=%d", game.ID, game.JoinCode, game.RoundCount)
			return game, nil
		}
		if ledger.IsConflict(err) {
			continue
		}
		return nil, err
	}
	return nil, &ledger.UnavailableError{
		Op:  "create game",
		Err: fmt.Errorf("no free join code after %d attempts, try again later", joinCodeAttempts),
	}
}

// JoinGame adds a player to the game identified by joinCode. Codes are
// case-insensitive.
func (m *Manager) JoinGame(ctx context.Context, joinCode, name string, guest bool) (*ledger.Game, *ledger.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, &ledger.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(name) > maxNameLength {
		return nil, nil, &ledger.ValidationError{Field: "name", Reason: fmt.Sprintf("must be %d characters or fewer", maxNameLength)}
	}
	game, err := m.store.GetGameByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(joinCode)))
	if err != nil {
		return nil, nil, err
	}
	players, err := m.store.ListPlayers(ctx, game.ID)
	if err != nil {
		return nil, nil, err
	}
	player := &ledger.Player{
		GameID:   game.ID,
		Name:     name,
		Guest:    guest,
		Position: len(players),
	}
	if err := m.store.CreatePlayer(ctx, player); err != nil {
		return nil, nil, err
	}
	log.Printf("player joined game_id=%d player_id=%d name=%s guest=%t", game.ID, player.ID, player.Name, player.Guest)
	return game, player, nil
}

// RemovePlayer deletes a player and all of their turns. No total
// correction is needed since the player row goes with them.
func (m *Manager) RemovePlayer(ctx context.Context, playerID uint) error {
	turns, err := m.store.ListTurnsForPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	for _, turn := range turns {
		if _, err := m.store.DeleteTurn(ctx, turn.ID); err != nil {
			return err
		}
	}
	if err := m.store.DeletePlayer(ctx, playerID); err != nil {
		return err
	}
	log.Printf("player removed player_id=%d turns=%d", playerID, len(turns))
	return nil
}

// correctTotal applies a signed delta to a player's stored total, clamping
// at zero, and re-derives the on-board flag as a monotonic OR against the
// corrected total.
func (m *Manager) correctTotal(ctx context.Context, playerID uint, delta int) error {
	if delta == 0 {
		return nil
	}
	player, err := m.store.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	total := player.TotalScore + delta
	if total < 0 {
		total = 0
	}
	onBoard := player.OnBoard || scoring.IsOnBoard(total)
	_, err = m.store.UpdatePlayer(ctx, playerID, ledger.PlayerPatch{TotalScore: &total, OnBoard: &onBoard})
	return err
}

func validateRoundCount(count int) error {
	if count < MinRoundCount {
		return &ledger.ValidationError{Field: "round_count", Reason: fmt.Sprintf("must be at least %d", MinRoundCount)}
	}
	if count > MaxRoundCount {
		return &ledger.ValidationError{Field: "round_count", Reason: fmt.Sprintf("must be at most %d", MaxRoundCount)}
	}
	return nil
}

// contribution is the amount a (score, bust) pair adds to a total.
func contribution(score int, bust bool) int {
	if bust {
		return 0
	}
	return score
}
