package models

import (
	"time"

	"gorm.io/datatypes"
)

// Run records a single finished playthrough. Username is a lookup
// back-reference to Account, ownership is checked against it.
type Run struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	Username     string         `gorm:"index;size:24;not null" json:"username"`
	TotalTime    float64        `gorm:"not null;default:0" json:"totalTime"`
	AvgTime      float64        `gorm:"not null;default:0" json:"avgTime"`
	Level        int            `gorm:"not null;default:0" json:"level"`
	LastPassword string         `gorm:"size:256;not null" json:"lastPassword"`
	RulesUsed    datatypes.JSON `json:"rulesUsed"`
	PlayedAt     time.Time      `gorm:"index;not null" json:"playedAt"`
}

// LeaderboardEntry is one user's best run.
type LeaderboardEntry struct {
	Username     string    `json:"username"`
	Level        int       `json:"level"`
	AvgTime      float64   `json:"avgTime"`
	TotalTime    float64   `json:"totalTime"`
	LastPassword string    `json:"lastPassword"`
	PlayedAt     time.Time `json:"playedAt"`
}

func (r *Run) LeaderboardEntry() LeaderboardEntry {
	return LeaderboardEntry{
		Username:     r.Username,
		Level:        r.Level,
		AvgTime:      r.AvgTime,
		TotalTime:    r.TotalTime,
		LastPassword: r.LastPassword,
		PlayedAt:     r.PlayedAt,
	}
}
