package services

import (
	"testing"

	"password-game/logging"
	"password-game/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.Run{}, &models.RuleCheck{}))
	return db
}

type stack struct {
	db       *gorm.DB
	accounts *AccountService
	runs     *RunService
	game     *GameService
	history  *HistoryService
}

func newStack(t *testing.T) stack {
	db := newTestDB(t)
	logger := logging.Discard()
	accounts := NewAccountService(db, logger)
	runs := NewRunService(db, logger)
	return stack{
		db:       db,
		accounts: accounts,
		runs:     runs,
		game:     NewGameService(db, accounts, runs, logger),
		history:  NewHistoryService(runs),
	}
}

func validRun() RunInput {
	return RunInput{TotalTime: 40, AvgTime: 8, Level: 5, LastPassword: "Abc123!"}
}
