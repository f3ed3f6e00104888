package db

import "time"

type Game struct {
	ID              uint   `gorm:"primaryKey"`
	JoinCode        string `gorm:"size:6;uniqueIndex;not null"`
	Status          string `gorm:"size:16;not null;default:active"`
	RoundCount      int    `gorm:"not null;default:10"`
	WinningPlayerID *uint  `gorm:"index"`
	WinningScore    *int
	FinishedAt      *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
	Players         []Player
	Turns           []Turn
	Events          []Event
}
