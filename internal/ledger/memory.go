package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memStore keeps the ledger in process memory. It backs the server when no
// database is configured and every package test. Semantics match the gorm
// store: codes are unique case-insensitively, turn inserts dedupe on client
// key, deletes are silent on missing rows.
type memStore struct {
	mu       sync.Mutex
	nextID   uint
	games    map[uint]*Game
	players  map[uint]*Player
	turns    map[uint]*Turn
	notifier *notifier
}

// NewMemoryStore returns an empty in-memory ledger store.
func NewMemoryStore() Store {
	return &memStore{
		nextID:   1,
		games:    make(map[uint]*Game),
		players:  make(map[uint]*Player),
		turns:    make(map[uint]*Turn),
		notifier: newNotifier(),
	}
}

func (s *memStore) allocID() uint {
	id := s.nextID
	s.nextID++
	return id
}

func (s *memStore) CreateGame(ctx context.Context, game *Game) error {
	s.mu.Lock()
	for _, existing := range s.games {
		if strings.EqualFold(existing.JoinCode, game.JoinCode) {
			s.mu.Unlock()
			return &ConflictError{Resource: "join code"}
		}
	}
	game.ID = s.allocID()
	if game.CreatedAt.IsZero() {
		game.CreatedAt = time.Now().UTC()
	}
	stored := *game
	s.games[game.ID] = &stored
	s.mu.Unlock()
	s.notifier.publishChange(game.ID, ChangeEvent{Table: TableGames, Op: OpInsert})
	return nil
}

func (s *memStore) GetGame(ctx context.Context, id uint) (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[id]
	if !ok {
		return nil, &NotFoundError{Resource: "game"}
	}
	copied := *game
	return &copied, nil
}

func (s *memStore) GetGameByJoinCode(ctx context.Context, code string) (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, game := range s.games {
		if strings.EqualFold(game.JoinCode, code) {
			copied := *game
			return &copied, nil
		}
	}
	return nil, &NotFoundError{Resource: "game"}
}

func (s *memStore) UpdateGame(ctx context.Context, id uint, patch GamePatch) (*Game, error) {
	s.mu.Lock()
	game, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return nil, &NotFoundError{Resource: "game"}
	}
	if patch.Status != nil {
		game.Status = *patch.Status
	}
	if patch.RoundCount != nil {
		game.RoundCount = *patch.RoundCount
	}
	if patch.Winner != nil {
		playerID := patch.Winner.PlayerID
		score := patch.Winner.Score
		finishedAt := patch.Winner.FinishedAt
		game.WinningPlayerID = &playerID
		game.WinningScore = &score
		game.FinishedAt = &finishedAt
	}
	if patch.ClearWinner {
		game.WinningPlayerID = nil
		game.WinningScore = nil
		game.FinishedAt = nil
	}
	copied := *game
	s.mu.Unlock()
	s.notifier.publishChange(id, ChangeEvent{Table: TableGames, Op: OpUpdate})
	return &copied, nil
}

func (s *memStore) DeleteGame(ctx context.Context, id uint) error {
	s.mu.Lock()
	_, existed := s.games[id]
	delete(s.games, id)
	for playerID, player := range s.players {
		if player.GameID == id {
			delete(s.players, playerID)
		}
	}
	for turnID, turn := range s.turns {
		if turn.GameID == id {
			delete(s.turns, turnID)
		}
	}
	s.mu.Unlock()
	if existed {
		s.notifier.publishChange(id, ChangeEvent{Table: TableGames, Op: OpDelete})
	}
	return nil
}

func (s *memStore) CreatePlayer(ctx context.Context, player *Player) error {
	s.mu.Lock()
	if _, ok := s.games[player.GameID]; !ok {
		s.mu.Unlock()
		return &NotFoundError{Resource: "game"}
	}
	for _, existing := range s.players {
		if existing.GameID == player.GameID && strings.EqualFold(existing.Name, player.Name) {
			s.mu.Unlock()
			return &ConflictError{Resource: "player name"}
		}
	}
	player.ID = s.allocID()
	stored := *player
	s.players[player.ID] = &stored
	s.mu.Unlock()
	s.notifier.publishChange(player.GameID, ChangeEvent{Table: TablePlayers, Op: OpInsert})
	return nil
}

func (s *memStore) GetPlayer(ctx context.Context, id uint) (*Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[id]
	if !ok {
		return nil, &NotFoundError{Resource: "player"}
	}
	copied := *player
	return &copied, nil
}

func (s *memStore) ListPlayers(ctx context.Context, gameID uint) ([]Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Player, 0)
	for _, player := range s.players {
		if player.GameID == gameID {
			list = append(list, *player)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Position != list[j].Position {
			return list[i].Position < list[j].Position
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (s *memStore) UpdatePlayer(ctx context.Context, id uint, patch PlayerPatch) (*Player, error) {
	s.mu.Lock()
	player, ok := s.players[id]
	if !ok {
		s.mu.Unlock()
		return nil, &NotFoundError{Resource: "player"}
	}
	if patch.Name != nil {
		player.Name = *patch.Name
	}
	if patch.TotalScore != nil {
		player.TotalScore = *patch.TotalScore
	}
	if patch.OnBoard != nil {
		player.OnBoard = *patch.OnBoard
	}
	if patch.Position != nil {
		player.Position = *patch.Position
	}
	copied := *player
	gameID := player.GameID
	s.mu.Unlock()
	s.notifier.publishChange(gameID, ChangeEvent{Table: TablePlayers, Op: OpUpdate})
	return &copied, nil
}

func (s *memStore) DeletePlayer(ctx context.Context, id uint) error {
	s.mu.Lock()
	player, ok := s.players[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	gameID := player.GameID
	delete(s.players, id)
	s.mu.Unlock()
	s.notifier.publishChange(gameID, ChangeEvent{Table: TablePlayers, Op: OpDelete})
	return nil
}

func (s *memStore) CreateTurn(ctx context.Context, turn *Turn) (bool, error) {
	s.mu.Lock()
	if _, ok := s.games[turn.GameID]; !ok {
		s.mu.Unlock()
		return false, &NotFoundError{Resource: "game"}
	}
	if turn.ClientKey != "" {
		for _, existing := range s.turns {
			if existing.GameID == turn.GameID && existing.ClientKey == turn.ClientKey {
				*turn = *existing
				s.mu.Unlock()
				return false, nil
			}
		}
	}
	turn.ID = s.allocID()
	stored := *turn
	s.turns[turn.ID] = &stored
	s.mu.Unlock()
	s.notifier.publishChange(turn.GameID, ChangeEvent{Table: TableTurns, Op: OpInsert})
	return true, nil
}

func (s *memStore) GetTurn(ctx context.Context, id uint) (*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn, ok := s.turns[id]
	if !ok {
		return nil, &NotFoundError{Resource: "turn"}
	}
	copied := *turn
	return &copied, nil
}

func (s *memStore) ListTurns(ctx context.Context, gameID uint) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectTurns(func(t *Turn) bool { return t.GameID == gameID }), nil
}

func (s *memStore) ListTurnsForRound(ctx context.Context, gameID uint, round int) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectTurns(func(t *Turn) bool {
		return t.GameID == gameID && t.RoundNumber == round
	}), nil
}

func (s *memStore) ListTurnsForPlayer(ctx context.Context, playerID uint) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectTurns(func(t *Turn) bool { return t.PlayerID == playerID }), nil
}

func (s *memStore) TurnsAboveRound(ctx context.Context, gameID uint, round int) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectTurns(func(t *Turn) bool {
		return t.GameID == gameID && t.RoundNumber > round
	}), nil
}

func (s *memStore) MaxRoundNumber(ctx context.Context, gameID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	highest := 0
	for _, turn := range s.turns {
		if turn.GameID == gameID && turn.RoundNumber > highest {
			highest = turn.RoundNumber
		}
	}
	return highest, nil
}

func (s *memStore) UpdateTurn(ctx context.Context, id uint, patch TurnPatch) (*Turn, error) {
	s.mu.Lock()
	turn, ok := s.turns[id]
	if !ok {
		s.mu.Unlock()
		return nil, &NotFoundError{Resource: "turn"}
	}
	if patch.Score != nil {
		turn.Score = *patch.Score
	}
	if patch.Bust != nil {
		turn.Bust = *patch.Bust
	}
	if patch.Closed != nil {
		turn.Closed = *patch.Closed
	}
	if patch.Note != nil {
		turn.Note = *patch.Note
	}
	copied := *turn
	gameID := turn.GameID
	s.mu.Unlock()
	s.notifier.publishChange(gameID, ChangeEvent{Table: TableTurns, Op: OpUpdate})
	return &copied, nil
}

func (s *memStore) DeleteTurn(ctx context.Context, id uint) (bool, error) {
	s.mu.Lock()
	turn, ok := s.turns[id]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	gameID := turn.GameID
	delete(s.turns, id)
	s.mu.Unlock()
	s.notifier.publishChange(gameID, ChangeEvent{Table: TableTurns, Op: OpDelete})
	return true, nil
}

func (s *memStore) collectTurns(match func(*Turn) bool) []Turn {
	list := make([]Turn, 0)
	for _, turn := range s.turns {
		if match(turn) {
			list = append(list, *turn)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (s *memStore) Subscribe(gameID uint) *Subscription {
	return s.notifier.subscribe(gameID)
}

func (s *memStore) SubscribeHints(gameID uint) *HintSubscription {
	return s.notifier.subscribeHints(gameID)
}

func (s *memStore) Broadcast(ctx context.Context, gameID uint, hint Hint) error {
	s.notifier.publishHint(gameID, hint)
	return nil
}
