package services

import (
	"context"
	"log/slog"

	"password-game/models"

	"gorm.io/gorm"
)

type GameService struct {
	DB       *gorm.DB
	accounts *AccountService
	runs     *RunService
	logger   *slog.Logger
}

func NewGameService(db *gorm.DB, accounts *AccountService, runs *RunService, logger *slog.Logger) *GameService {
	return &GameService{DB: db, accounts: accounts, runs: runs, logger: logger}
}

// SaveResult stores the finished run and folds it into the owner's stats in
// one transaction.
func (s *GameService) SaveResult(ctx context.Context, account *models.Account, in RunInput) (*models.Run, *models.Account, error) {
	var (
		run     *models.Run
		updated *models.Account
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		run, err = s.runs.create(tx, account.Username, in)
		if err != nil {
			return err
		}
		updated, err = s.accounts.applyRunResult(tx, account.ID, run.Level, run.TotalTime)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("run_saved",
		"username", account.Username,
		"run_id", run.ID,
		"level", run.Level,
		"total_time", run.TotalTime,
		"highest_level", updated.HighestLevel,
	)
	return run, updated, nil
}
