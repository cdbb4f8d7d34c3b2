package game

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"password-game/oracle"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	password string
	rules    []json.RawMessage
}

// scriptedJudge replies from a queue of raw JSON bodies or errors.
type scriptedJudge struct {
	mu      sync.Mutex
	replies []any
	calls   []call
}

func (j *scriptedJudge) push(replies ...any) {
	j.mu.Lock()
	j.replies = append(j.replies, replies...)
	j.mu.Unlock()
}

func (j *scriptedJudge) Evaluate(_ context.Context, password string, rules []json.RawMessage) (*oracle.Verdict, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call{password: password, rules: rules})
	if len(j.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	next := j.replies[0]
	j.replies = j.replies[1:]
	switch v := next.(type) {
	case error:
		return nil, v
	case string:
		return oracle.Decode([]byte(v))
	}
	panic("bad scripted reply")
}

// gatedJudge blocks every call until release is closed.
type gatedJudge struct {
	entered chan struct{}
	release chan struct{}
	reply   string
}

func (g *gatedJudge) Evaluate(ctx context.Context, _ string, _ []json.RawMessage) (*oracle.Verdict, error) {
	g.entered <- struct{}{}
	<-g.release
	return oracle.Decode([]byte(g.reply))
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []Summary
}

func (r *recordingSaver) SaveResult(_ context.Context, s Summary) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, s)
	return s.Level, nil
}

const (
	bootstrapReply = `{"overall_pass":true,"level":1,"results":[],"updated_rules":[{"rule":"include a digit"}]}`
	passReply      = `{"overall_pass":true,"level":2,"results":[{"rule":"include a digit","pass":true,"reason":"ok"}],"updated_rules":[{"rule":"include a digit"},{"rule":"name a color"}]}`
	failReply      = `{"overall_pass":false,"level":1,"results":[{"rule":"include a digit","pass":false,"reason":"none"}],"updated_rules":[{"rule":"include a digit"}]}`
)

func startedController(t *testing.T, judge *scriptedJudge, opts ...Option) *Controller {
	t.Helper()
	judge.push(bootstrapReply)
	c := NewController(judge, opts...)
	require.NoError(t, c.Start(context.Background()))
	return c
}

func TestStartBootstrapsFirstRule(t *testing.T) {
	judge := &scriptedJudge{}
	c := startedController(t, judge, WithCountdown(10))

	snap := c.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.Len(t, snap.Rules, 1)
	assert.Equal(t, 1, snap.Level)
	assert.Equal(t, 10, snap.Remaining)
	assert.Zero(t, snap.Elapsed)
	assert.Equal(t, StatusPass, snap.Status)

	require.Len(t, judge.calls, 1)
	assert.Equal(t, "", judge.calls[0].password)
	assert.Empty(t, judge.calls[0].rules)
}

func TestStartFailureReturnsToIdle(t *testing.T) {
	judge := &scriptedJudge{}
	judge.push(oracle.Upstream(http.StatusServiceUnavailable, "down", nil))
	c := NewController(judge)

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, oracle.StatusOf(err))
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, StatusError, c.Snapshot().Status)

	_, ended := c.Tick()
	assert.False(t, ended)
}

func TestStartRejectsWhileActive(t *testing.T) {
	c := startedController(t, &scriptedJudge{})
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyActive)
}

func TestFailedCheckKeepsCountdown(t *testing.T) {
	judge := &scriptedJudge{}
	c := startedController(t, judge, WithCountdown(10))
	c.Tick()
	c.Tick()

	judge.push(failReply)
	snap, err := c.SubmitCheck(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, StatusFail, snap.Status)
	assert.Equal(t, 8, snap.Remaining)
	assert.Equal(t, 2, snap.Elapsed)
}

func TestPassingCheckResetsCountdownAndReplacesRules(t *testing.T) {
	judge := &scriptedJudge{}
	c := startedController(t, judge, WithCountdown(10))
	c.Tick()
	c.Tick()
	c.Tick()

	judge.push(passReply)
	snap, err := c.SubmitCheck(context.Background(), "abc1")
	require.NoError(t, err)
	assert.Equal(t, StatusPass, snap.Status)
	assert.Equal(t, 10, snap.Remaining)
	assert.Equal(t, 3, snap.Elapsed)
	assert.Equal(t, 2, snap.Level)

	v, err := oracle.Decode([]byte(passReply))
	require.NoError(t, err)
	assert.Equal(t, v.UpdatedRules, snap.Rules)

	require.Len(t, judge.calls, 2)
	assert.Equal(t, "abc1", judge.calls[1].password)
	assert.Len(t, judge.calls[1].rules, 1)
}

func TestShrinkingRuleListIsTakenWholesale(t *testing.T) {
	judge := &scriptedJudge{}
	c := startedController(t, judge)

	judge.push(`{"overall_pass":true,"results":[],"updated_rules":[]}`)
	snap, err := c.SubmitCheck(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, snap.Rules)
	assert.Equal(t, 0, snap.Level)
}

func TestLevelFallsBackToRuleCount(t *testing.T) {
	judge := &scriptedJudge{}
	c := startedController(t, judge)

	judge.push(`{"overall_pass":true,"level":"two","results":[],"updated_rules":[1,2,3]}`)
	snap, err := c.SubmitCheck(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Level)
}

func TestOracleErrorLeavesStateAlone(t *testing.T) {
	judge := &scriptedJudge{}
	c := startedController(t, judge)
	before := c.Snapshot()

	judge.push(oracle.Upstream(http.StatusBadGateway, "Failed to parse Gemini JSON", nil))
	snap, err := c.SubmitCheck(context.Background(), "abc")
	require.Error(t, err)
	assert.Equal(t, StatusError, snap.Status)
	assert.NotEqual(t, StatusFail, snap.Status)
	assert.Equal(t, before.Rules, snap.Rules)
	assert.Equal(t, before.Level, snap.Level)
	assert.Equal(t, StateActive, snap.State)
}

func TestMissingUpdatedRulesIsAnError(t *testing.T) {
	judge := &scriptedJudge{}
	c := startedController(t, judge)
	before := c.Snapshot()

	judge.push(`{"overall_pass":true,"level":9,"results":[]}`)
	snap, err := c.SubmitCheck(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrMissingRules)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, before.Level, snap.Level)
}

func TestSubmitOutsideActive(t *testing.T) {
	c := NewController(&scriptedJudge{})
	_, err := c.SubmitCheck(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestCountdownEndsRunAndSaves(t *testing.T) {
	judge := &scriptedJudge{}
	saver := &recordingSaver{}
	c := startedController(t, judge, WithCountdown(3), WithSaver(saver))

	judge.push(passReply)
	_, err := c.SubmitCheck(context.Background(), "abc1")
	require.NoError(t, err)
	c.SetDraft("abc1!")

	var (
		summary Summary
		ended   bool
	)
	for i := 0; i < 3; i++ {
		summary, ended = c.Tick()
	}
	require.True(t, ended)
	assert.Equal(t, StateEnded, c.State())
	assert.Equal(t, 3, summary.TotalTime)
	assert.Equal(t, 1.5, summary.AvgTime)
	assert.Equal(t, 2, summary.Level)
	assert.Equal(t, "abc1!", summary.LastPassword)
	assert.Len(t, summary.Rules, 2)

	c.Wait()
	require.Len(t, saver.saved, 1)
	assert.Equal(t, summary, saver.saved[0])

	_, ended = c.Tick()
	assert.False(t, ended)
	_, err = c.SubmitCheck(context.Background(), "late")
	assert.ErrorIs(t, err, ErrNotActive)

	last, ok := c.LastSummary()
	assert.True(t, ok)
	assert.Equal(t, summary, last)
}

func TestAverageTimeRounding(t *testing.T) {
	assert.Equal(t, 7.0, averageTime(7, 0))
	assert.Equal(t, 3.33, averageTime(10, 3))
	assert.Equal(t, 6.67, averageTime(20, 3))
}

func TestAnonymousOrEmptyRunIsNotSaved(t *testing.T) {
	saver := &recordingSaver{}
	c := startedController(t, &scriptedJudge{}, WithCountdown(1), WithSaver(saver))
	_, ended := c.Tick()
	require.True(t, ended)
	c.Wait()
	assert.Empty(t, saver.saved)

	c2 := startedController(t, &scriptedJudge{}, WithCountdown(1))
	c2.SetDraft("pw")
	_, ended = c2.Tick()
	assert.True(t, ended)
}

func TestQuitDiscardsWithoutSaving(t *testing.T) {
	saver := &recordingSaver{}
	c := startedController(t, &scriptedJudge{}, WithSaver(saver))
	c.SetDraft("pw")
	c.Tick()

	c.Quit()
	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Rules)
	assert.Zero(t, snap.Level)
	assert.Zero(t, snap.Elapsed)
	c.Wait()
	assert.Empty(t, saver.saved)
}

func TestSecondCheckRejectedWhileInFlight(t *testing.T) {
	gate := &gatedJudge{entered: make(chan struct{}, 1), release: make(chan struct{}), reply: bootstrapReply}
	c := NewController(gate)

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background()) }()
	<-gate.entered
	close(gate.release)
	require.NoError(t, <-started)

	gate.release = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitCheck(context.Background(), "first")
		done <- err
	}()
	<-gate.entered

	_, err := c.SubmitCheck(context.Background(), "second")
	assert.ErrorIs(t, err, ErrCheckInFlight)

	// ticks keep running while the judge is busy
	before := c.Snapshot().Remaining
	c.Tick()
	assert.Equal(t, before-1, c.Snapshot().Remaining)

	close(gate.release)
	require.NoError(t, <-done)
}

func TestLateReplyAfterEndIsDropped(t *testing.T) {
	gate := &gatedJudge{entered: make(chan struct{}, 1), release: make(chan struct{}), reply: bootstrapReply}
	c := NewController(gate, WithCountdown(1))

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background()) }()
	<-gate.entered
	close(gate.release)
	require.NoError(t, <-started)

	gate.release = make(chan struct{})
	gate.reply = passReply
	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitCheck(context.Background(), "pw")
		done <- err
	}()
	<-gate.entered

	_, ended := c.Tick()
	require.True(t, ended)

	close(gate.release)
	assert.ErrorIs(t, <-done, ErrStale)
	snap := c.Snapshot()
	assert.Equal(t, StateEnded, snap.State)
	assert.Len(t, snap.Rules, 1)
	assert.Equal(t, 1, snap.Level)
}

func TestLateBootstrapAfterQuitIsDropped(t *testing.T) {
	gate := &gatedJudge{entered: make(chan struct{}, 1), release: make(chan struct{}), reply: bootstrapReply}
	c := NewController(gate)

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background()) }()
	<-gate.entered
	c.Quit()
	close(gate.release)

	assert.ErrorIs(t, <-started, ErrStale)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.Snapshot().Rules)
}

func TestRunTicksUntilEnd(t *testing.T) {
	c := startedController(t, &scriptedJudge{}, WithCountdown(2))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	summary, err := c.Run(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalTime)
	assert.Equal(t, StateEnded, c.State())
}

func TestRunStopsOnCancel(t *testing.T) {
	c := startedController(t, &scriptedJudge{}, WithCountdown(1000))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}
