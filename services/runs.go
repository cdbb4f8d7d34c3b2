package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"password-game/models"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultRunLimit      = 20
	MaxRunLimit          = 100
	MaxLastPasswordChars = 256
)

// bestRunPerUserSQL picks each user's best run: highest level, then lowest
// total time, then earliest play. id only breaks exact duplicates.
const bestRunPerUserSQL = `SELECT id FROM (
	SELECT id, ROW_NUMBER() OVER (
		PARTITION BY username
		ORDER BY level DESC, total_time ASC, played_at ASC, id ASC
	) AS rn
	FROM runs
) ranked WHERE rn = 1`

// RunInput is a complete run as submitted by a client.
type RunInput struct {
	TotalTime    float64
	AvgTime      float64
	Level        float64
	LastPassword string
	RulesUsed    []json.RawMessage
}

// RunPatch changes only the non-nil fields.
type RunPatch struct {
	TotalTime    *float64
	AvgTime      *float64
	Level        *float64
	LastPassword *string
}

type RunService struct {
	DB     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewRunService(db *gorm.DB, logger *slog.Logger) *RunService {
	return &RunService{DB: db, logger: logger, now: time.Now}
}

// ClampLimit bounds a requested page size to [1, 100]; 0 means default.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultRunLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxRunLimit {
		return MaxRunLimit
	}
	return limit
}

// ParseLimit reads a ?limit= query value. Garbage falls back to the default.
func ParseLimit(raw string) int {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return DefaultRunLimit
	}
	if v > MaxRunLimit {
		return MaxRunLimit
	}
	if v < 1 && v != 0 {
		return 1
	}
	return ClampLimit(int(v))
}

// sanitizeNumber clamps negatives to zero and refuses non-finite values.
func sanitizeNumber(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return math.Max(0, v), true
}

func sanitizeLevel(v float64) (int, bool) {
	n, ok := sanitizeNumber(v)
	if !ok {
		return 0, false
	}
	return int(math.Floor(n)), true
}

func sanitizePassword(pwd string) (string, bool) {
	if strings.TrimSpace(pwd) == "" || utf8.RuneCountInString(pwd) > MaxLastPasswordChars {
		return "", false
	}
	return pwd, true
}

func encodeRules(rules []json.RawMessage) (datatypes.JSON, error) {
	if rules == nil {
		rules = []json.RawMessage{}
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func (s *RunService) buildRun(username string, in RunInput) (*models.Run, error) {
	totalTime, okTotal := sanitizeNumber(in.TotalTime)
	avgTime, okAvg := sanitizeNumber(in.AvgTime)
	level, okLevel := sanitizeLevel(in.Level)
	pwd, okPwd := sanitizePassword(in.LastPassword)
	if !okTotal || !okAvg || !okLevel || !okPwd {
		return nil, ErrInvalidRunPayload
	}
	rules, err := encodeRules(in.RulesUsed)
	if err != nil {
		return nil, fmt.Errorf("%w: rules: %v", ErrInvalidRunPayload, err)
	}
	return &models.Run{
		ID:           uuid.NewString(),
		Username:     username,
		TotalTime:    totalTime,
		AvgTime:      avgTime,
		Level:        level,
		LastPassword: pwd,
		RulesUsed:    rules,
		PlayedAt:     s.now().UTC(),
	}, nil
}

// Create validates and stores one run for username.
func (s *RunService) Create(ctx context.Context, username string, in RunInput) (*models.Run, error) {
	return s.create(s.DB.WithContext(ctx), username, in)
}

func (s *RunService) create(tx *gorm.DB, username string, in RunInput) (*models.Run, error) {
	run, err := s.buildRun(username, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Create(run).Error; err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// validRunID reports whether id can name a run. Postgres rejects non-uuid
// literals on the uuid column with a syntax error, not an empty result.
func validRunID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *RunService) Get(ctx context.Context, id string) (*models.Run, error) {
	if !validRunID(id) {
		return nil, ErrRunNotFound
	}
	var run models.Run
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (p RunPatch) columns() (map[string]interface{}, error) {
	updates := map[string]interface{}{}
	if p.TotalTime != nil {
		v, ok := sanitizeNumber(*p.TotalTime)
		if !ok {
			return nil, fmt.Errorf("%w: totalTime must be numeric", ErrInvalidRunPayload)
		}
		updates["total_time"] = v
	}
	if p.AvgTime != nil {
		v, ok := sanitizeNumber(*p.AvgTime)
		if !ok {
			return nil, fmt.Errorf("%w: avgTime must be numeric", ErrInvalidRunPayload)
		}
		updates["avg_time"] = v
	}
	if p.Level != nil {
		v, ok := sanitizeLevel(*p.Level)
		if !ok {
			return nil, fmt.Errorf("%w: level must be numeric", ErrInvalidRunPayload)
		}
		updates["level"] = v
	}
	if p.LastPassword != nil {
		v, ok := sanitizePassword(*p.LastPassword)
		if !ok {
			return nil, fmt.Errorf("%w: lastPassword cannot be empty or longer than %d", ErrInvalidRunPayload, MaxLastPasswordChars)
		}
		updates["last_password"] = v
	}
	if len(updates) == 0 {
		return nil, ErrNoFieldsToUpdate
	}
	return updates, nil
}

// lockOwned loads the run under a row lock and checks caller owns it.
func lockOwned(tx *gorm.DB, id, caller string) (*models.Run, error) {
	var run models.Run
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	if run.Username != caller {
		return nil, ErrForbidden
	}
	return &run, nil
}

// Update applies patch to a run owned by caller.
func (s *RunService) Update(ctx context.Context, id, caller string, patch RunPatch) (*models.Run, error) {
	if !validRunID(id) {
		return nil, ErrRunNotFound
	}
	updates, err := patch.columns()
	if err != nil {
		return nil, err
	}

	var updated models.Run
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockOwned(tx, id, caller); err != nil {
			return err
		}
		if err := tx.Model(&models.Run{}).Where("id = ? AND username = ?", id, caller).Updates(updates).Error; err != nil {
			return fmt.Errorf("update run %s: %w", id, err)
		}
		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("run_updated", "id", id, "username", caller, "fields", len(updates))
	return &updated, nil
}

// Delete removes a run owned by caller. Deleting twice yields ErrRunNotFound.
func (s *RunService) Delete(ctx context.Context, id, caller string) error {
	if !validRunID(id) {
		return ErrRunNotFound
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockOwned(tx, id, caller); err != nil {
			return err
		}
		res := tx.Where("id = ? AND username = ?", id, caller).Delete(&models.Run{})
		if res.Error != nil {
			return fmt.Errorf("delete run %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRunNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("run_deleted", "id", id, "username", caller)
	return nil
}

// ListByUser returns username's runs, newest first.
func (s *RunService) ListByUser(ctx context.Context, username string, limit int) ([]models.Run, error) {
	runs := []models.Run{}
	err := s.DB.WithContext(ctx).
		Where("username = ?", strings.TrimSpace(username)).
		Order("played_at DESC").
		Limit(ClampLimit(limit)).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", username, err)
	}
	return runs, nil
}

// Leaderboard returns one best run per user ordered by level then average
// time. The per-user pick and the final order use different keys on purpose.
func (s *RunService) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	db := s.DB.WithContext(ctx)

	var best []models.Run
	err := db.Model(&models.Run{}).
		Where("id IN (?)", db.Raw(bestRunPerUserSQL)).
		Order("level DESC").
		Order("avg_time ASC").
		Order("username ASC").
		Limit(ClampLimit(limit)).
		Find(&best).Error
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	entries := make([]models.LeaderboardEntry, len(best))
	for i := range best {
		entries[i] = best[i].LeaderboardEntry()
	}
	return entries, nil
}
