// Package oracle defines the contract with the external rule judge and a
// Gemini-backed implementation of it.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/goccy/go-json"
)

const unlabeledRule = "Unlabeled rule"

// Result is the judge's verdict on a single rule.
type Result struct {
	Rule   string `json:"rule"`
	Pass   bool   `json:"pass"`
	Reason string `json:"reason"`
}

// Verdict is a decoded judge response. Raw keeps the exact bytes so the
// server can relay them untouched.
type Verdict struct {
	OverallPass   bool
	Level         int
	LevelDeclared bool
	Results       []Result
	UpdatedRules  []json.RawMessage
	RulesDeclared bool
	Raw           json.RawMessage
}

// Evaluator judges password against rules and may append one new rule.
type Evaluator interface {
	Evaluate(ctx context.Context, password string, rules []json.RawMessage) (*Verdict, error)
}

// Request is the wire shape sent to the judge and to POST /rules/check.
type Request struct {
	Password string            `json:"password"`
	Rules    []json.RawMessage `json:"rules"`
}

// Error is an upstream judge failure. Status is the HTTP status to relay.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oracle: %s: %v", e.Message, e.Err)
	}
	return "oracle: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Upstream(status int, message string, err error) *Error {
	if status < http.StatusInternalServerError {
		status = http.StatusBadGateway
	}
	return &Error{Status: status, Message: message, Err: err}
}

// StatusOf returns the relay status of err, 500 for non-oracle errors.
func StatusOf(err error) int {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Status
	}
	return http.StatusInternalServerError
}

// Decode parses a judge response. Anything but a JSON object is a contract
// violation; fields inside the object are read leniently.
func Decode(raw []byte) (*Verdict, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, Upstream(http.StatusBadGateway, "malformed judge response", err)
	}

	v := &Verdict{Raw: append(json.RawMessage(nil), raw...)}

	if b, ok := fields["overall_pass"]; ok {
		var flag any
		if json.Unmarshal(b, &flag) == nil {
			v.OverallPass = truthy(flag)
		}
	}

	if b, ok := fields["level"]; ok && string(b) != "null" {
		var level float64
		if err := json.Unmarshal(b, &level); err == nil && !math.IsNaN(level) && !math.IsInf(level, 0) && level >= 0 {
			v.Level = int(math.Floor(level))
			v.LevelDeclared = true
		}
	}

	if b, ok := fields["updated_rules"]; ok {
		var rules []json.RawMessage
		if err := json.Unmarshal(b, &rules); err == nil && rules != nil {
			v.UpdatedRules = rules
			v.RulesDeclared = true
		}
	}

	if b, ok := fields["results"]; ok {
		var entries []json.RawMessage
		if err := json.Unmarshal(b, &entries); err == nil {
			v.Results = make([]Result, 0, len(entries))
			for _, entry := range entries {
				v.Results = append(v.Results, decodeResult(entry))
			}
		}
	}
	if v.Results == nil {
		v.Results = []Result{}
	}
	return v, nil
}

func decodeResult(raw json.RawMessage) Result {
	var loose struct {
		Rule   any `json:"rule"`
		Pass   any `json:"pass"`
		Reason any `json:"reason"`
	}
	_ = json.Unmarshal(raw, &loose)

	res := Result{Rule: unlabeledRule}
	if s, ok := loose.Rule.(string); ok {
		res.Rule = s
	}
	res.Pass = truthy(loose.Pass)
	if s, ok := loose.Reason.(string); ok {
		res.Reason = s
	}
	return res
}

// truthy reads a loosely typed JSON flag: false, null, 0 and "" are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	default:
		return true
	}
}

// RulesOr returns the declared rule list, or fallback when the judge sent none.
func (v *Verdict) RulesOr(fallback []json.RawMessage) []json.RawMessage {
	if v.RulesDeclared {
		return v.UpdatedRules
	}
	return fallback
}

// LevelOr returns the declared level, or fallback when absent or invalid.
func (v *Verdict) LevelOr(fallback int) int {
	if v.LevelDeclared {
		return v.Level
	}
	return fallback
}

// Unavailable is used when no judge is configured.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Evaluate(context.Context, string, []json.RawMessage) (*Verdict, error) {
	return nil, Upstream(http.StatusServiceUnavailable, u.Reason, nil)
}

func (u Unavailable) Ping(context.Context) (*PingResult, error) {
	return nil, Upstream(http.StatusServiceUnavailable, u.Reason, nil)
}
