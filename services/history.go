package services

import (
	"context"
	"strings"

	"password-game/models"
)

// RunQuery selects between a user's history (Username set) and the
// global leaderboard (Username empty).
type RunQuery struct {
	Username string
	Limit    int
}

// RunsView holds exactly one of History or Leaderboard.
type RunsView struct {
	History     []models.Run
	Leaderboard []models.LeaderboardEntry
}

func (v RunsView) IsHistory() bool { return v.History != nil }

type HistoryService struct {
	runs *RunService
}

func NewHistoryService(runs *RunService) *HistoryService {
	return &HistoryService{runs: runs}
}

func (s *HistoryService) Query(ctx context.Context, q RunQuery) (RunsView, error) {
	if username := strings.TrimSpace(q.Username); username != "" {
		history, err := s.runs.ListByUser(ctx, username, q.Limit)
		if err != nil {
			return RunsView{}, err
		}
		return RunsView{History: history}, nil
	}

	board, err := s.runs.Leaderboard(ctx, q.Limit)
	if err != nil {
		return RunsView{}, err
	}
	return RunsView{Leaderboard: board}, nil
}
