package services

import (
	"context"
	"sync"
	"testing"

	"password-game/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUsername(t *testing.T) {
	cases := map[string]string{
		"  Bob!! ":                         "Bob",
		"###":                              "",
		"snake_case_99":                    "snake_case_99",
		"ab cd":                            "abcd",
		"éa_b":                             "a_b",
		"abcdefghijklmnopqrstuvwxyz012345": "abcdefghijklmnopqrstuvwx",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeUsername(in), "input %q", in)
	}
}

func TestFindOrCreate(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	acc, err := s.accounts.FindOrCreate(ctx, "  Bob!! ")
	require.NoError(t, err)
	assert.Equal(t, "Bob", acc.Username)
	assert.Zero(t, acc.HighestLevel)
	assert.Zero(t, acc.TimesPlayed)
	assert.NotEmpty(t, acc.ID)

	again, err := s.accounts.FindOrCreate(ctx, "Bob")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, again.ID)
}

func TestFindOrCreateRejectsInvalid(t *testing.T) {
	s := newStack(t)
	for _, raw := range []string{"", "   ", "###", "a!"} {
		_, err := s.accounts.FindOrCreate(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidUsername, "input %q", raw)
	}
}

func TestFindOrCreateConcurrentFirstLogin(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc, err := s.accounts.FindOrCreate(ctx, "racer")
			errs[i] = err
			if acc != nil {
				ids[i] = acc.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	var count int64
	require.NoError(t, s.db.Model(&models.Account{}).Where("username = ?", "racer").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestApplyRunResultFoldsMonotonically(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	acc, err := s.accounts.FindOrCreate(ctx, "folder")
	require.NoError(t, err)

	results := []struct {
		level int
		total float64
	}{{3, 30}, {7, 12}, {5, 90}, {0, 0}}

	var got *models.Account
	for _, r := range results {
		got, err = s.accounts.ApplyRunResult(ctx, acc.ID, r.level, r.total)
		require.NoError(t, err)
	}
	assert.Equal(t, 7, got.HighestLevel)
	assert.Equal(t, 90.0, got.LongestTime)
	assert.EqualValues(t, 4, got.TimesPlayed)
}

func TestApplyRunResultConcurrent(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	acc, err := s.accounts.FindOrCreate(ctx, "busy")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(level int) {
			defer wg.Done()
			_, err := s.accounts.ApplyRunResult(ctx, acc.ID, level, float64(level*10))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.accounts.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.HighestLevel)
	assert.Equal(t, 100.0, got.LongestTime)
	assert.EqualValues(t, 10, got.TimesPlayed)
}

func TestApplyRunResultUnknownAccount(t *testing.T) {
	s := newStack(t)
	_, err := s.accounts.ApplyRunResult(context.Background(), "missing", 1, 1)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = s.accounts.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
