package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"password-game/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MinUsernameLength = 2
	MaxUsernameLength = 24
)

type AccountService struct {
	DB     *gorm.DB
	logger *slog.Logger
}

func NewAccountService(db *gorm.DB, logger *slog.Logger) *AccountService {
	return &AccountService{DB: db, logger: logger}
}

// NormalizeUsername trims, keeps only [A-Za-z0-9_] and truncates to 24 chars.
func NormalizeUsername(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if b.Len() == MaxUsernameLength {
			break
		}
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FindOrCreate returns the account for rawUsername, creating it with zeroed
// stats on first login. Concurrent first logins collapse onto one row through
// the unique index on username. Names shorter than two characters after
// normalization are rejected like empty ones.
func (s *AccountService) FindOrCreate(ctx context.Context, rawUsername string) (*models.Account, error) {
	username := NormalizeUsername(rawUsername)
	if len(username) < MinUsernameLength {
		return nil, ErrInvalidUsername
	}

	candidate := models.Account{
		ID:       uuid.NewString(),
		Username: username,
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoNothing: true,
		}).
		Create(&candidate)
	if res.Error != nil {
		return nil, fmt.Errorf("upsert account %q: %w", username, res.Error)
	}
	if res.RowsAffected == 1 {
		s.logger.Info("account_created", "username", username, "id", candidate.ID)
	}

	var acc models.Account
	if err := s.DB.WithContext(ctx).Where("username = ?", username).First(&acc).Error; err != nil {
		return nil, fmt.Errorf("load account %q: %w", username, err)
	}
	return &acc, nil
}

func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// ApplyRunResult folds one finished run into the account stats.
func (s *AccountService) ApplyRunResult(ctx context.Context, accountID string, level int, totalTime float64) (*models.Account, error) {
	var acc *models.Account
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		acc, err = s.applyRunResult(tx, accountID, level, totalTime)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// applyRunResult runs a single conditional UPDATE so concurrent folds for the
// same account never lose an increment.
func (s *AccountService) applyRunResult(tx *gorm.DB, accountID string, level int, totalTime float64) (*models.Account, error) {
	res := tx.Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"highest_level": gorm.Expr("CASE WHEN highest_level < ? THEN ? ELSE highest_level END", level, level),
			"longest_time":  gorm.Expr("CASE WHEN longest_time < ? THEN ? ELSE longest_time END", totalTime, totalTime),
			"times_played":  gorm.Expr("times_played + ?", 1),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("fold run result into %s: %w", accountID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAccountNotFound
	}

	var acc models.Account
	if err := tx.Where("id = ?", accountID).First(&acc).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}
