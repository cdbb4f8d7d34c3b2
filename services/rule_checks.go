package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"password-game/models"
	"password-game/oracle"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const pruneBatchSize = 500

type RuleCheckService struct {
	DB     *gorm.DB
	logger *slog.Logger
}

func NewRuleCheckService(db *gorm.DB, logger *slog.Logger) *RuleCheckService {
	return &RuleCheckService{DB: db, logger: logger}
}

// BuildRecord normalizes a verdict into an audit row. Missing level falls
// back to the number of rules sent, missing rules to the rules sent.
func BuildRecord(password string, sent []json.RawMessage, v *oracle.Verdict) (*models.RuleCheck, error) {
	if sent == nil {
		sent = []json.RawMessage{}
	}
	rules, err := json.Marshal(v.RulesOr(sent))
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	results, err := json.Marshal(v.Results)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return &models.RuleCheck{
		Password:    truncateRunes(password, MaxLastPasswordChars),
		Level:       v.LevelOr(len(sent)),
		OverallPass: v.OverallPass,
		RulesUsed:   datatypes.JSON(rules),
		Results:     datatypes.JSON(results),
	}, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (s *RuleCheckService) Insert(ctx context.Context, rec *models.RuleCheck) error {
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert rule check: %w", err)
	}
	return nil
}

// OlderThan returns up to one batch of records created before cutoff, oldest first.
func (s *RuleCheckService) OlderThan(ctx context.Context, cutoff time.Time) ([]models.RuleCheck, error) {
	var recs []models.RuleCheck
	err := s.DB.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Order("id ASC").
		Limit(pruneBatchSize).
		Find(&recs).Error
	return recs, err
}

// DeleteThrough removes records created before cutoff with id <= maxID.
func (s *RuleCheckService) DeleteThrough(ctx context.Context, cutoff time.Time, maxID uint) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("created_at < ? AND id <= ?", cutoff, maxID).
		Delete(&models.RuleCheck{})
	return res.RowsAffected, res.Error
}
