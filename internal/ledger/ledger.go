// Package ledger defines the durable store contract for the turn ledger:
// games, players and turns, plus row-level change notifications and a
// best-effort broadcast channel per game. Two implementations exist, a
// Postgres-backed store and an in-memory store used when no database is
// configured and in tests.
package ledger

import (
	"context"
	"time"
)

type GameStatus string

const (
	GameActive   GameStatus = "active"
	GameComplete GameStatus = "complete"
)

type Game struct {
	ID              uint
	JoinCode        string
	Status          GameStatus
	RoundCount      int
	WinningPlayerID *uint
	WinningScore    *int
	FinishedAt      *time.Time
	CreatedAt       time.Time
}

type Player struct {
	ID         uint
	GameID     uint
	Name       string
	Guest      bool
	TotalScore int
	OnBoard    bool
	Position   int
}

type Turn struct {
	ID          uint
	GameID      uint
	PlayerID    uint
	RoundNumber int
	Score       int
	Bust        bool
	Closed      bool
	Note        string
	ClientKey   string
}

// WinnerRecord carries the finish-time fields set together on a game.
type WinnerRecord struct {
	PlayerID   uint
	Score      int
	FinishedAt time.Time
}

// GamePatch updates a subset of game fields. Winner and ClearWinner are
// mutually exclusive; ClearWinner nulls out all three finish fields.
type GamePatch struct {
	Status      *GameStatus
	RoundCount  *int
	Winner      *WinnerRecord
	ClearWinner bool
}

type PlayerPatch struct {
	Name       *string
	TotalScore *int
	OnBoard    *bool
	Position   *int
}

type TurnPatch struct {
	Score  *int
	Bust   *bool
	Closed *bool
	Note   *string
}

const (
	TableGames   = "games"
	TablePlayers = "players"
	TableTurns   = "turns"

	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ChangeEvent announces that a row in one of the ledger tables changed.
// It carries no row data: consumers treat it purely as an invalidation
// signal and refetch the canonical state.
type ChangeEvent struct {
	Table string
	Op    string
}

// Hint types carried on the broadcast channel.
const (
	HintRoundCount   = "round_count"
	HintGameFinished = "game_finished"
	HintGameReopened = "game_reopened"
	HintRefresh      = "refresh"
)

// Hint is a low-latency, best-effort revalidation prompt. Origin identifies
// the client that initiated it; hints are delivered to every subscriber on
// the game's channel, the origin included.
type Hint struct {
	Type       string `json:"type"`
	Origin     string `json:"origin,omitempty"`
	RoundCount int    `json:"round_count,omitempty"`
}

// Store is the ledger contract. Writes are individually durable; no
// multi-row transaction is promised, so callers keep multi-row operations
// idempotent per row. CreateTurn deduplicates on (game, client key) and
// reports whether a new row was actually inserted. Delete operations do
// not fail on missing rows; DeleteTurn reports whether a row was removed.
type Store interface {
	CreateGame(ctx context.Context, game *Game) error
	GetGame(ctx context.Context, id uint) (*Game, error)
	GetGameByJoinCode(ctx context.Context, code string) (*Game, error)
	UpdateGame(ctx context.Context, id uint, patch GamePatch) (*Game, error)
	DeleteGame(ctx context.Context, id uint) error

	CreatePlayer(ctx context.Context, player *Player) error
	GetPlayer(ctx context.Context, id uint) (*Player, error)
	ListPlayers(ctx context.Context, gameID uint) ([]Player, error)
	UpdatePlayer(ctx context.Context, id uint, patch PlayerPatch) (*Player, error)
	DeletePlayer(ctx context.Context, id uint) error

	CreateTurn(ctx context.Context, turn *Turn) (created bool, err error)
	GetTurn(ctx context.Context, id uint) (*Turn, error)
	ListTurns(ctx context.Context, gameID uint) ([]Turn, error)
	ListTurnsForRound(ctx context.Context, gameID uint, round int) ([]Turn, error)
	ListTurnsForPlayer(ctx context.Context, playerID uint) ([]Turn, error)
	TurnsAboveRound(ctx context.Context, gameID uint, round int) ([]Turn, error)
	MaxRoundNumber(ctx context.Context, gameID uint) (int, error)
	UpdateTurn(ctx context.Context, id uint, patch TurnPatch) (*Turn, error)
	DeleteTurn(ctx context.Context, id uint) (deleted bool, err error)

	Subscribe(gameID uint) *Subscription
	SubscribeHints(gameID uint) *HintSubscription
	Broadcast(ctx context.Context, gameID uint, hint Hint) error
}
