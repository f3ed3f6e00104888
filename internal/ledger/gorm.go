package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"rollbook/internal/db"

	"github.com/jackc/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormStore persists the ledger in Postgres. Every successful mutation
// appends an event-log row and publishes a change notification for the
// affected game.
type gormStore struct {
	conn     *gorm.DB
	notifier *notifier
}

// NewGormStore wraps an open gorm connection as a ledger Store.
func NewGormStore(conn *gorm.DB) Store {
	return &gormStore{conn: conn, notifier: newNotifier()}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func storeErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Resource: op}
	}
	return &UnavailableError{Op: op, Err: err}
}

func (s *gormStore) persistEvent(gameID uint, playerID *uint, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	event := db.Event{
		GameID:   gameID,
		PlayerID: playerID,
		Type:     eventType,
		Payload:  datatypes.JSON(data),
	}
	_ = s.conn.Create(&event).Error
}

func gameFromRecord(record *db.Game) *Game {
	return &Game{
		ID:              record.ID,
		JoinCode:        record.JoinCode,
		Status:          GameStatus(record.Status),
		RoundCount:      record.RoundCount,
		WinningPlayerID: record.WinningPlayerID,
		WinningScore:    record.WinningScore,
		FinishedAt:      record.FinishedAt,
		CreatedAt:       record.CreatedAt,
	}
}

func playerFromRecord(record *db.Player) *Player {
	return &Player{
		ID:         record.ID,
		GameID:     record.GameID,
		Name:       record.Name,
		Guest:      record.Guest,
		TotalScore: record.TotalScore,
		OnBoard:    record.OnBoard,
		Position:   record.Position,
	}
}

func turnFromRecord(record *db.Turn) *Turn {
	return &Turn{
		ID:          record.ID,
		GameID:      record.GameID,
		PlayerID:    record.PlayerID,
		RoundNumber: record.RoundNumber,
		Score:       record.Score,
		Bust:        record.Bust,
		Closed:      record.Closed,
		Note:        record.Note,
		ClientKey:   record.ClientKey,
	}
}

func (s *gormStore) CreateGame(ctx context.Context, game *Game) error {
	record := db.Game{
		JoinCode:   game.JoinCode,
		Status:     string(game.Status),
		RoundCount: game.RoundCount,
	}
	if err := s.conn.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Resource: "join code"}
		}
		return &UnavailableError{Op: "create game", Err: err}
	}
	game.ID = record.ID
	game.CreatedAt = record.CreatedAt
	s.persistEvent(record.ID, nil, "game_created", map[string]any{"join_code": record.JoinCode})
	s.notifier.publishChange(record.ID, ChangeEvent{Table: TableGames, Op: OpInsert})
	return nil
}

func (s *gormStore) GetGame(ctx context.Context, id uint) (*Game, error) {
	var record db.Game
	if err := s.conn.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, storeErr("game", err)
	}
	return gameFromRecord(&record), nil
}

func (s *gormStore) GetGameByJoinCode(ctx context.Context, code string) (*Game, error) {
	var record db.Game
	if err := s.conn.WithContext(ctx).Where("upper(join_code) = upper(?)", code).First(&record).Error; err != nil {
		return nil, storeErr("game", err)
	}
	return gameFromRecord(&record), nil
}

func (s *gormStore) UpdateGame(ctx context.Context, id uint, patch GamePatch) (*Game, error) {
	updates := map[string]any{}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.RoundCount != nil {
		updates["round_count"] = *patch.RoundCount
	}
	if patch.Winner != nil {
		updates["winning_player_id"] = patch.Winner.PlayerID
		updates["winning_score"] = patch.Winner.Score
		updates["finished_at"] = patch.Winner.FinishedAt
	}
	if patch.ClearWinner {
		updates["winning_player_id"] = nil
		updates["winning_score"] = nil
		updates["finished_at"] = nil
	}
	if len(updates) > 0 {
		result := s.conn.WithContext(ctx).Model(&db.Game{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, &UnavailableError{Op: "update game", Err: result.Error}
		}
		if result.RowsAffected == 0 {
			return nil, &NotFoundError{Resource: "game"}
		}
	}
	var record db.Game
	if err := s.conn.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, storeErr("game", err)
	}
	s.persistEvent(id, nil, "game_updated", updates)
	s.notifier.publishChange(id, ChangeEvent{Table: TableGames, Op: OpUpdate})
	return gameFromRecord(&record), nil
}

func (s *gormStore) DeleteGame(ctx context.Context, id uint) error {
	steps := []error{
		s.conn.WithContext(ctx).Where("game_id = ?", id).Delete(&db.Turn{}).Error,
		s.conn.WithContext(ctx).Where("game_id = ?", id).Delete(&db.Player{}).Error,
		s.conn.WithContext(ctx).Delete(&db.Game{}, id).Error,
	}
	for _, err := range steps {
		if err != nil {
			return &UnavailableError{Op: "delete game", Err: err}
		}
	}
	s.notifier.publishChange(id, ChangeEvent{Table: TableGames, Op: OpDelete})
	return nil
}

func (s *gormStore) CreatePlayer(ctx context.Context, player *Player) error {
	record := db.Player{
		GameID:     player.GameID,
		Name:       player.Name,
		Guest:      player.Guest,
		TotalScore: player.TotalScore,
		OnBoard:    player.OnBoard,
		Position:   player.Position,
	}
	if err := s.conn.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Resource: "player name"}
		}
		return &UnavailableError{Op: "create player", Err: err}
	}
	player.ID = record.ID
	s.persistEvent(player.GameID, &record.ID, "player_joined", map[string]any{"name": record.Name})
	s.notifier.publishChange(player.GameID, ChangeEvent{Table: TablePlayers, Op: OpInsert})
	return nil
}

func (s *gormStore) GetPlayer(ctx context.Context, id uint) (*Player, error) {
	var record db.Player
	if err := s.conn.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, storeErr("player", err)
	}
	return playerFromRecord(&record), nil
}

func (s *gormStore) ListPlayers(ctx context.Context, gameID uint) ([]Player, error) {
	var records []db.Player
	err := s.conn.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("position asc, id asc").
		Find(&records).Error
	if err != nil {
		return nil, &UnavailableError{Op: "list players", Err: err}
	}
	players := make([]Player, 0, len(records))
	for i := range records {
		players = append(players, *playerFromRecord(&records[i]))
	}
	return players, nil
}

func (s *gormStore) UpdatePlayer(ctx context.Context, id uint, patch PlayerPatch) (*Player, error) {
	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.TotalScore != nil {
		updates["total_score"] = *patch.TotalScore
	}
	if patch.OnBoard != nil {
		updates["on_board"] = *patch.OnBoard
	}
	if patch.Position != nil {
		updates["position"] = *patch.Position
	}
	if len(updates) > 0 {
		result := s.conn.WithContext(ctx).Model(&db.Player{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, &UnavailableError{Op: "update player", Err: result.Error}
		}
		if result.RowsAffected == 0 {
			return nil, &NotFoundError{Resource: "player"}
		}
	}
	var record db.Player
	if err := s.conn.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, storeErr("player", err)
	}
	s.persistEvent(record.GameID, &record.ID, "player_updated", updates)
	s.notifier.publishChange(record.GameID, ChangeEvent{Table: TablePlayers, Op: OpUpdate})
	return playerFromRecord(&record), nil
}

func (s *gormStore) DeletePlayer(ctx context.Context, id uint) error {
	var record db.Player
	if err := s.conn.WithContext(ctx).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return &UnavailableError{Op: "delete player", Err: err}
	}
	if err := s.conn.WithContext(ctx).Delete(&db.Player{}, id).Error; err != nil {
		return &UnavailableError{Op: "delete player", Err: err}
	}
	s.persistEvent(record.GameID, nil, "player_removed", map[string]any{"name": record.Name})
	s.notifier.publishChange(record.GameID, ChangeEvent{Table: TablePlayers, Op: OpDelete})
	return nil
}

func (s *gormStore) CreateTurn(ctx context.Context, turn *Turn) (bool, error) {
	record := db.Turn{
		GameID:      turn.GameID,
		PlayerID:    turn.PlayerID,
		RoundNumber: turn.RoundNumber,
		Score:       turn.Score,
		Bust:        turn.Bust,
		Closed:      turn.Closed,
		Note:        turn.Note,
		ClientKey:   turn.ClientKey,
	}
	result := s.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "game_id"}, {Name: "client_key"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return false, &UnavailableError{Op: "create turn", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		// Idempotent re-send: return the previously recorded row.
		var existing db.Turn
		err := s.conn.WithContext(ctx).
			Where("game_id = ? AND client_key = ?", turn.GameID, turn.ClientKey).
			First(&existing).Error
		if err != nil {
			return false, storeErr("turn", err)
		}
		*turn = *turnFromRecord(&existing)
		return false, nil
	}
	turn.ID = record.ID
	s.persistEvent(turn.GameID, &record.PlayerID, "turn_added", map[string]any{
		"round": record.RoundNumber, "score": record.Score, "bust": record.Bust,
	})
	s.notifier.publishChange(turn.GameID, ChangeEvent{Table: TableTurns, Op: OpInsert})
	return true, nil
}

func (s *gormStore) GetTurn(ctx context.Context, id uint) (*Turn, error) {
	var record db.Turn
	if err := s.conn.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, storeErr("turn", err)
	}
	return turnFromRecord(&record), nil
}

func (s *gormStore) listTurns(ctx context.Context, query *gorm.DB) ([]Turn, error) {
	var records []db.Turn
	if err := query.Order("id asc").Find(&records).Error; err != nil {
		return nil, &UnavailableError{Op: "list turns", Err: err}
	}
	turns := make([]Turn, 0, len(records))
	for i := range records {
		turns = append(turns, *turnFromRecord(&records[i]))
	}
	return turns, nil
}

func (s *gormStore) ListTurns(ctx context.Context, gameID uint) ([]Turn, error) {
	return s.listTurns(ctx, s.conn.WithContext(ctx).Where("game_id = ?", gameID))
}

func (s *gormStore) ListTurnsForRound(ctx context.Context, gameID uint, round int) ([]Turn, error) {
	return s.listTurns(ctx, s.conn.WithContext(ctx).Where("game_id = ? AND round_number = ?", gameID, round))
}

func (s *gormStore) ListTurnsForPlayer(ctx context.Context, playerID uint) ([]Turn, error) {
	return s.listTurns(ctx, s.conn.WithContext(ctx).Where("player_id = ?", playerID))
}

func (s *gormStore) TurnsAboveRound(ctx context.Context, gameID uint, round int) ([]Turn, error) {
	return s.listTurns(ctx, s.conn.WithContext(ctx).Where("game_id = ? AND round_number > ?", gameID, round))
}

func (s *gormStore) MaxRoundNumber(ctx context.Context, gameID uint) (int, error) {
	var highest *int
	err := s.conn.WithContext(ctx).Model(&db.Turn{}).
		Where("game_id = ?", gameID).
		Select("max(round_number)").
		Scan(&highest).Error
	if err != nil {
		return 0, &UnavailableError{Op: "max round", Err: err}
	}
	if highest == nil {
		return 0, nil
	}
	return *highest, nil
}

func (s *gormStore) UpdateTurn(ctx context.Context, id uint, patch TurnPatch) (*Turn, error) {
	updates := map[string]any{}
	if patch.Score != nil {
		updates["score"] = *patch.Score
	}
	if patch.Bust != nil {
		updates["bust"] = *patch.Bust
	}
	if patch.Closed != nil {
		updates["closed"] = *patch.Closed
	}
	if patch.Note != nil {
		updates["note"] = *patch.Note
	}
	if len(updates) > 0 {
		result := s.conn.WithContext(ctx).Model(&db.Turn{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, &UnavailableError{Op: "update turn", Err: result.Error}
		}
		if result.RowsAffected == 0 {
			return nil, &NotFoundError{Resource: "turn"}
		}
	}
	var record db.Turn
	if err := s.conn.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, storeErr("turn", err)
	}
	s.persistEvent(record.GameID, &record.PlayerID, "turn_updated", updates)
	s.notifier.publishChange(record.GameID, ChangeEvent{Table: TableTurns, Op: OpUpdate})
	return turnFromRecord(&record), nil
}

func (s *gormStore) DeleteTurn(ctx context.Context, id uint) (bool, error) {
	var record db.Turn
	if err := s.conn.WithContext(ctx).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, &UnavailableError{Op: "delete turn", Err: err}
	}
	result := s.conn.WithContext(ctx).Delete(&db.Turn{}, id)
	if result.Error != nil {
		return false, &UnavailableError{Op: "delete turn", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	s.persistEvent(record.GameID, &record.PlayerID, "turn_deleted", map[string]any{
		"round": record.RoundNumber, "score": record.Score,
	})
	s.notifier.publishChange(record.GameID, ChangeEvent{Table: TableTurns, Op: OpDelete})
	return true, nil
}

func (s *gormStore) Subscribe(gameID uint) *Subscription {
	return s.notifier.subscribe(gameID)
}

func (s *gormStore) SubscribeHints(gameID uint) *HintSubscription {
	return s.notifier.subscribeHints(gameID)
}

func (s *gormStore) Broadcast(ctx context.Context, gameID uint, hint Hint) error {
	s.notifier.publishHint(gameID, hint)
	return nil
}
