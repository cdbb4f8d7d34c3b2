// Package game drives one password game session: the countdown, the
// accumulating rule list and the hand-off of the finished run to a saver.
package game

import (
	"errors"
	"math"

	"github.com/goccy/go-json"
)

const DefaultCountdown = 20

type State int

const (
	StateIdle State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// CheckStatus is the outcome of the most recent judge call.
type CheckStatus string

const (
	StatusNone    CheckStatus = ""
	StatusLoading CheckStatus = "loading"
	StatusPass    CheckStatus = "pass"
	StatusFail    CheckStatus = "fail"
	StatusError   CheckStatus = "error"
)

var (
	ErrNotActive     = errors.New("game is not active")
	ErrAlreadyActive = errors.New("game is already active")
	ErrCheckInFlight = errors.New("a rule check is already in flight")
	ErrStale         = errors.New("response arrived after the session moved on")
	ErrMissingRules  = errors.New("judge reply had no updated_rules")
)

// Summary describes a finished run.
type Summary struct {
	TotalTime    int               `json:"totalTime"`
	AvgTime      float64           `json:"avgTime"`
	Level        int               `json:"level"`
	LastPassword string            `json:"lastPassword"`
	Rules        []json.RawMessage `json:"rules"`
}

func newSummary(elapsed, level int, password string, rules []json.RawMessage) Summary {
	return Summary{
		TotalTime:    elapsed,
		AvgTime:      averageTime(elapsed, level),
		Level:        level,
		LastPassword: password,
		Rules:        cloneRules(rules),
	}
}

// averageTime is seconds per cleared level, rounded to two decimals.
func averageTime(elapsed, level int) float64 {
	v := float64(elapsed) / float64(max(1, level))
	return math.Round(v*100) / 100
}

func cloneRules(rules []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, len(rules))
	copy(out, rules)
	return out
}
