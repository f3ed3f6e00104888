package db

import "time"

type Turn struct {
	ID          uint      `gorm:"primaryKey"`
	GameID      uint      `gorm:"index;not null;uniqueIndex:idx_turns_game_client_key"`
	PlayerID    uint      `gorm:"index;not null"`
	RoundNumber int       `gorm:"not null"`
	Score       int       `gorm:"not null;default:0"`
	Bust        bool      `gorm:"not null;default:false"`
	Closed      bool      `gorm:"not null;default:true"`
	Note        string    `gorm:"size:280;not null;default:''"`
	ClientKey   string    `gorm:"size:64;not null;uniqueIndex:idx_turns_game_client_key"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}
