package models

import (
	"time"

	"gorm.io/datatypes"
)

// RuleCheck is a write-only audit row, one per evaluation call.
type RuleCheck struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Password    string         `gorm:"size:256;default:''" json:"password"`
	Level       int            `gorm:"not null" json:"level"`
	OverallPass bool           `gorm:"not null" json:"overallPass"`
	RulesUsed   datatypes.JSON `json:"rulesUsed"`
	Results     datatypes.JSON `json:"results"`
	CreatedAt   time.Time      `gorm:"index;autoCreateTime" json:"createdAt"`
}
