package db

import "time"

type Player struct {
	ID         uint      `gorm:"primaryKey"`
	GameID     uint      `gorm:"index;not null;uniqueIndex:idx_players_game_name"`
	Name       string    `gorm:"size:40;not null;uniqueIndex:idx_players_game_name"`
	Guest      bool      `gorm:"not null;default:false"`
	TotalScore int       `gorm:"not null;default:0"`
	OnBoard    bool      `gorm:"not null;default:false"`
	Position   int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
	Turns      []Turn
}
