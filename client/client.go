// Package client talks to the password game API. It doubles as the judge and
// the result saver for a game.Controller running outside the browser.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"password-game/game"
	"password-game/models"
	"password-game/oracle"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
)

// APIError is a non-2xx reply from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d", e.Status)
	}
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

// ErrNotSignedIn is returned by calls that need a bearer token.
var ErrNotSignedIn = errors.New("not signed in")

type Client struct {
	BaseURL string
	Client  *http.Client

	// SaveRetries is how many extra attempts SaveResult makes on network
	// errors and 5xx replies.
	SaveRetries uint64

	logger *slog.Logger

	mu       sync.RWMutex
	token    string
	username string
}

type LoginResult struct {
	Token        string  `json:"token"`
	Username     string  `json:"username"`
	HighestLevel int     `json:"highestLevel"`
	LongestTime  float64 `json:"longestTime"`
	TimesPlayed  int64   `json:"timesPlayed"`
}

func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			// the judge may take up to its own 30s timeout
			Timeout: 45 * time.Second,
		},
		SaveRetries: 3,
		logger:      logger,
	}
}

// SetToken restores a previously issued bearer token.
func (c *Client) SetToken(token, username string) {
	c.mu.Lock()
	c.token, c.username = token, username
	c.mu.Unlock()
}

// Token returns the current bearer token and the username it was issued for.
func (c *Client) Token() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.username
}

func (c *Client) SignedIn() bool {
	token, _ := c.Token()
	return token != ""
}

func (c *Client) Logout() { c.SetToken("", "") }

// do sends one JSON request. A nil out discards the body.
func (c *Client) do(ctx context.Context, method, path string, body any, auth bool, out any) error {
	raw, err := c.send(ctx, method, path, body, auth)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, auth bool) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token, _ := c.Token()
		if token == "" {
			return nil, ErrNotSignedIn
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &msg) == nil {
			apiErr.Message = msg.Message
		}
		c.logger.Debug("api_error", "method", method, "path", path, "status", resp.StatusCode, "message", apiErr.Message)
		return nil, apiErr
	}
	return raw, nil
}

func (c *Client) Login(ctx context.Context, username string) (*LoginResult, error) {
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"username": username}, false, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token, out.Username)
	return &out, nil
}

// Verify returns the signed-in account, clearing the token when the server
// no longer accepts it.
func (c *Client) Verify(ctx context.Context) (*models.AccountSummary, error) {
	var out models.AccountSummary
	err := c.do(ctx, http.MethodGet, "/api/auth/verify", nil, true, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		c.Logout()
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Evaluate implements oracle.Evaluator over POST /api/rules/check. Every
// failure comes back as an *oracle.Error so callers leave their rule state
// alone.
func (c *Client) Evaluate(ctx context.Context, password string, rules []json.RawMessage) (*oracle.Verdict, error) {
	if rules == nil {
		rules = []json.RawMessage{}
	}
	raw, err := c.send(ctx, http.MethodPost, "/api/rules/check", oracle.Request{Password: password, Rules: rules}, false)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, oracle.Upstream(apiErr.Status, apiErr.Message, apiErr)
		}
		return nil, oracle.Upstream(http.StatusBadGateway, "Rule check request failed", err)
	}
	verdict, err := oracle.Decode(raw)
	if err != nil {
		return nil, err
	}
	if !verdict.RulesDeclared {
		return nil, oracle.Upstream(http.StatusBadGateway, "Judge reply had no updated_rules", nil)
	}
	return verdict, nil
}

// RuleTest probes the judge through GET /api/rules/test.
func (c *Client) RuleTest(ctx context.Context) (*oracle.PingResult, error) {
	var out oracle.PingResult
	if err := c.do(ctx, http.MethodGet, "/api/rules/test", nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type saveReply struct {
	OK           bool `json:"ok"`
	HighestLevel int  `json:"highestLevel"`
}

// SaveResult implements game.ResultSaver. Network errors and 5xx replies are
// retried with exponential backoff; a retry after a lost reply can store the
// run twice.
func (c *Client) SaveResult(ctx context.Context, s game.Summary) (int, error) {
	body := map[string]any{
		"totalTime":    s.TotalTime,
		"avgTime":      s.AvgTime,
		"level":        s.Level,
		"lastPassword": s.LastPassword,
		"rules":        s.Rules,
	}

	var out saveReply
	op := func() error {
		err := c.do(ctx, http.MethodPost, "/api/game/save", body, true, &out)
		var apiErr *APIError
		if errors.Is(err, ErrNotSignedIn) || (errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("save_retry", "err", err, "wait", wait)
	}
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, c.SaveRetries), ctx), notify)
	if err != nil {
		return 0, err
	}
	return out.HighestLevel, nil
}

// History lists username's runs, newest first.
func (c *Client) History(ctx context.Context, username string, limit int) ([]models.Run, error) {
	q := url.Values{}
	q.Set("username", username)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []models.Run
	if err := c.do(ctx, http.MethodGet, "/api/runs?"+q.Encode(), nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	path := "/api/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []models.LeaderboardEntry
	if err := c.do(ctx, http.MethodGet, path, nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteRun(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/runs/"+url.PathEscape(id), nil, true, nil)
}
