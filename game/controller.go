package game

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"password-game/oracle"

	"github.com/goccy/go-json"
)

// ResultSaver persists a finished run for the signed-in player.
type ResultSaver interface {
	SaveResult(ctx context.Context, s Summary) (highestLevel int, err error)
}

// Snapshot is a point-in-time copy of the session for rendering.
type Snapshot struct {
	State     State
	Status    CheckStatus
	Rules     []json.RawMessage
	Results   []oracle.Result
	Level     int
	Remaining int
	Elapsed   int
	Password  string
	Checking  bool
	LastError error
}

type Option func(*Controller)

func WithCountdown(seconds int) Option {
	return func(c *Controller) {
		if seconds > 0 {
			c.countdown = seconds
		}
	}
}

func WithSaver(s ResultSaver) Option {
	return func(c *Controller) { c.saver = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithSaveTimeout bounds the background save of a finished run.
func WithSaveTimeout(d time.Duration) Option {
	return func(c *Controller) { c.saveTimeout = d }
}

// Controller is the session state machine Idle -> Active -> Ended.
// All methods are safe for concurrent use. At most one judge call is in
// flight; replies that land after the session ended, quit or restarted are
// dropped.
type Controller struct {
	judge       oracle.Evaluator
	saver       ResultSaver
	logger      *slog.Logger
	countdown   int
	saveTimeout time.Duration

	mu        sync.Mutex
	state     State
	status    CheckStatus
	rules     []json.RawMessage
	results   []oracle.Result
	level     int
	remaining int
	elapsed   int
	draft     string
	checking  bool
	ticking   bool
	lastErr   error
	gen       uint64
	summary   *Summary

	saves sync.WaitGroup
}

func NewController(judge oracle.Evaluator, opts ...Option) *Controller {
	c := &Controller{
		judge:       judge,
		logger:      slog.New(slog.DiscardHandler),
		countdown:   DefaultCountdown,
		saveTimeout: 15 * time.Second,
		rules:       []json.RawMessage{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.remaining = c.countdown
	return c
}

// SetSaver attaches or clears the identity used to persist finished runs.
func (c *Controller) SetSaver(s ResultSaver) {
	c.mu.Lock()
	c.saver = s
	c.mu.Unlock()
}

// Start begins a new run and asks the judge for the first rule with an empty
// password. The countdown only starts once that bootstrap call succeeds; if
// it fails the session returns to Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateActive {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.resetLocked()
	c.state = StateActive
	c.gen++
	gen := c.gen
	c.checking = true
	c.status = StatusLoading
	c.mu.Unlock()

	verdict, err := c.judge.Evaluate(ctx, "", []json.RawMessage{})

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return ErrStale
	}
	c.checking = false
	if err == nil && !verdict.RulesDeclared {
		err = ErrMissingRules
	}
	if err != nil {
		c.status = StatusError
		c.lastErr = err
		c.state = StateIdle
		c.logger.Warn("bootstrap_failed", "err", err)
		return fmt.Errorf("bootstrap: %w", err)
	}
	c.applyLocked(verdict, true)
	c.remaining = c.countdown
	c.ticking = true
	return nil
}

// SetDraft records what the player has typed so far. The draft at the moment
// the countdown expires becomes the run's last password.
func (c *Controller) SetDraft(password string) {
	c.mu.Lock()
	if c.state == StateActive {
		c.draft = password
	}
	c.mu.Unlock()
}

// SubmitCheck judges password against the current rules. A failed judge call
// leaves rules and level untouched and sets StatusError.
func (c *Controller) SubmitCheck(ctx context.Context, password string) (Snapshot, error) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return Snapshot{}, ErrNotActive
	}
	if c.checking {
		c.mu.Unlock()
		return Snapshot{}, ErrCheckInFlight
	}
	c.draft = password
	c.checking = true
	c.status = StatusLoading
	gen := c.gen
	rules := cloneRules(c.rules)
	c.mu.Unlock()

	verdict, err := c.judge.Evaluate(ctx, password, rules)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != StateActive {
		c.logger.Debug("late_verdict_dropped", "gen", gen)
		return c.snapshotLocked(), ErrStale
	}
	c.checking = false
	if err == nil && !verdict.RulesDeclared {
		err = ErrMissingRules
	}
	if err != nil {
		c.status = StatusError
		c.lastErr = err
		return c.snapshotLocked(), err
	}
	c.applyLocked(verdict, false)
	return c.snapshotLocked(), nil
}

func (c *Controller) applyLocked(v *oracle.Verdict, bootstrap bool) {
	c.rules = cloneRules(v.UpdatedRules)
	c.level = v.LevelOr(len(c.rules))
	c.results = append([]oracle.Result(nil), v.Results...)
	c.lastErr = nil
	if v.OverallPass {
		c.status = StatusPass
		if !bootstrap {
			c.remaining = c.countdown
		}
	} else {
		c.status = StatusFail
	}
}

// Tick advances the clock by one second. It reports the summary when this
// tick ended the run.
func (c *Controller) Tick() (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive || !c.ticking {
		return Summary{}, false
	}
	c.remaining--
	c.elapsed++
	if c.remaining > 0 {
		return Summary{}, false
	}
	return c.finalizeLocked(), true
}

// Run ticks every period until the run ends or ctx is cancelled.
func (c *Controller) Run(ctx context.Context, period time.Duration) (Summary, error) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return Summary{}, ctx.Err()
		case <-t.C:
			if s, ended := c.Tick(); ended {
				return s, nil
			}
			if c.State() != StateActive {
				return Summary{}, ErrNotActive
			}
		}
	}
}

// Quit abandons the session without saving anything.
func (c *Controller) Quit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return
	}
	c.gen++
	c.resetLocked()
	c.state = StateIdle
}

func (c *Controller) finalizeLocked() Summary {
	c.state = StateEnded
	c.ticking = false
	c.checking = false
	c.gen++
	if c.remaining < 0 {
		c.remaining = 0
	}

	s := newSummary(c.elapsed, c.level, c.draft, c.rules)
	c.summary = &s
	c.logger.Info("run_ended", "level", s.Level, "total_time", s.TotalTime, "avg_time", s.AvgTime)

	if c.saver == nil {
		return s
	}
	if strings.TrimSpace(s.LastPassword) == "" {
		c.logger.Info("run_not_saved", "reason", "empty_password")
		return s
	}
	c.saves.Add(1)
	go c.save(c.saver, s)
	return s
}

func (c *Controller) save(saver ResultSaver, s Summary) {
	defer c.saves.Done()
	ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
	defer cancel()
	highest, err := saver.SaveResult(ctx, s)
	if err != nil {
		c.logger.Warn("run_save_failed", "err", err)
		return
	}
	c.logger.Info("run_saved", "level", s.Level, "highest_level", highest)
}

// Wait blocks until background saves have finished.
func (c *Controller) Wait() {
	c.saves.Wait()
}

func (c *Controller) resetLocked() {
	c.status = StatusNone
	c.rules = []json.RawMessage{}
	c.results = nil
	c.level = 0
	c.elapsed = 0
	c.remaining = c.countdown
	c.draft = ""
	c.checking = false
	c.ticking = false
	c.lastErr = nil
	c.summary = nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// LastSummary returns the summary of the run that just ended, if any.
func (c *Controller) LastSummary() (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return Summary{}, false
	}
	return *c.summary, true
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:     c.state,
		Status:    c.status,
		Rules:     cloneRules(c.rules),
		Results:   append([]oracle.Result(nil), c.results...),
		Level:     c.level,
		Remaining: c.remaining,
		Elapsed:   c.elapsed,
		Password:  c.draft,
		Checking:  c.checking,
		LastError: c.lastErr,
	}
}
