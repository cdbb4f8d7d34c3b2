package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-2.0-flash"
	primerReply        = "555"
	pingPrompt         = "Reply with the single word READY so I can verify connectivity."
)

var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not configured")

// systemPrompt primes the model as the game's judge. It is replayed at the
// head of every conversation, followed by the primer reply.
const systemPrompt = `You are the judge of a password game.

Read these instructions, then answer ONLY with: 555
Every later message is a JSON object:
{"password": "PLAYER_PASSWORD", "rules": [ ...rule objects... ]}

For every such message reply with JSON only. No prose, no markdown.

Your job:
1. Check whether the password satisfies EVERY rule in "rules".
2. If all rules pass, invent exactly ONE new rule and append it.
3. If any rule fails, do not invent a rule and keep the list unchanged.

Rules may be about digits, letters, roman numerals, special characters,
arithmetic patterns (primes, Fibonacci, divisibility), words (animals, colors,
food, objects) or geography (countries, capitals). Evaluate each rule with
plain logic and the simplest reading. New rules must be enforceable, must not
contradict earlier rules, and should get gradually harder.

A new rule has this shape:
{"category": "...", "rule": "...", "difficulty": "easy|medium|hard",
 "example_valid": "...", "example_invalid": "...", "internal_reasoning": "..."}

Reply shape:
{
  "overall_pass": true|false,
  "level": <length of updated_rules>,
  "results": [{"rule": "<rule text>", "pass": true|false, "reason": "<short>"}],
  "updated_rules": [ ...the input rules, plus the new rule only when overall_pass ]
}

Your only reply to this message must be: 555`

type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// BaseURL overrides the API endpoint; empty uses Google's.
	BaseURL string
}

// Gemini judges passwords through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// PingResult is the outcome of a connectivity probe.
type PingResult struct {
	Reply string `json:"reply"`
	Model string `json:"model"`
}

func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
			Timeout: genai.Ptr(timeout),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model, logger: logger}, nil
}

func (g *Gemini) Model() string { return g.model }

// Evaluate sends the password and rules to the model and decodes its JSON reply.
func (g *Gemini) Evaluate(ctx context.Context, password string, rules []json.RawMessage) (*Verdict, error) {
	if rules == nil {
		rules = []json.RawMessage{}
	}
	payload, err := json.MarshalIndent(Request{Password: password, Rules: rules}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode judge payload: %w", err)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, buildContents(string(payload)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		g.logger.Warn("gemini_generate_failed", "model", g.model, "elapsed", time.Since(start), "err", err)
		return nil, Upstream(upstreamStatus(err), "Gemini rule check failed", err)
	}

	text := sanitizeJSONText(resp.Text())
	if text == "" {
		return nil, Upstream(http.StatusBadGateway, "Gemini response was empty", nil)
	}
	verdict, err := Decode([]byte(text))
	if err != nil {
		return nil, Upstream(http.StatusBadGateway, "Failed to parse Gemini JSON", err)
	}

	g.logger.Debug("gemini_evaluated",
		"model", g.model,
		"elapsed", time.Since(start),
		"rules_in", len(rules),
		"overall_pass", verdict.OverallPass,
	)
	return verdict, nil
}

// Ping asks the model for a one word reply.
func (g *Gemini) Ping(ctx context.Context) (*PingResult, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(pingPrompt), nil)
	if err != nil {
		return nil, Upstream(upstreamStatus(err), "Gemini API test failed", err)
	}
	model := resp.ModelVersion
	if model == "" {
		model = g.model
	}
	return &PingResult{Reply: strings.TrimSpace(resp.Text()), Model: model}, nil
}

func buildContents(payload string) []*genai.Content {
	return []*genai.Content{
		genai.NewContentFromText(systemPrompt, genai.RoleUser),
		genai.NewContentFromText(primerReply, genai.RoleModel),
		genai.NewContentFromText(payload, genai.RoleUser),
	}
}

// sanitizeJSONText strips a markdown code fence the model sometimes adds.
func sanitizeJSONText(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimLeftFunc(trimmed, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	})
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func upstreamStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code >= http.StatusInternalServerError {
		return apiErr.Code
	}
	return http.StatusBadGateway
}
