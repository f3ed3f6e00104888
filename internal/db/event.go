package db

import (
	"time"

	"gorm.io/datatypes"
)

// Event is an append-only change log row written alongside each ledger
// mutation. Diagnostic only; the sync path never reads it back.
type Event struct {
	ID        uint           `gorm:"primaryKey"`
	GameID    uint           `gorm:"index;not null"`
	PlayerID  *uint          `gorm:"index"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
