package models

// Account is a player identity keyed by its normalized username.
// Stats only ever grow; see services.AccountService.ApplyRunResult.
type Account struct {
	ID           string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username     string  `gorm:"uniqueIndex;size:24;not null" json:"username"`
	HighestLevel int     `gorm:"not null;default:0" json:"highestLevel"`
	LongestTime  float64 `gorm:"not null;default:0" json:"longestTime"`
	TimesPlayed  int64   `gorm:"not null;default:0" json:"timesPlayed"`

	Timestamps
}

// AccountSummary is the public view returned by login and verify.
type AccountSummary struct {
	Username     string  `json:"username"`
	HighestLevel int     `json:"highestLevel"`
	LongestTime  float64 `json:"longestTime"`
	TimesPlayed  int64   `json:"timesPlayed"`
}

func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		Username:     a.Username,
		HighestLevel: a.HighestLevel,
		LongestTime:  a.LongestTime,
		TimesPlayed:  a.TimesPlayed,
	}
}
