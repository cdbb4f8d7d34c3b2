package oracle

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFullReply(t *testing.T) {
	raw := []byte(`{"overall_pass":true,"level":2,"results":[{"rule":"digit","pass":true,"reason":"has 5"}],"updated_rules":[{"rule":"digit"},{"rule":"color"}]}`)
	v, err := Decode(raw)
	require.NoError(t, err)

	assert.True(t, v.OverallPass)
	assert.True(t, v.LevelDeclared)
	assert.Equal(t, 2, v.Level)
	assert.True(t, v.RulesDeclared)
	assert.Len(t, v.UpdatedRules, 2)
	assert.Equal(t, []Result{{Rule: "digit", Pass: true, Reason: "has 5"}}, v.Results)
	assert.Equal(t, string(raw), string(v.Raw))
}

func TestDecodeLenientFields(t *testing.T) {
	v, err := Decode([]byte(`{"level":-1,"updated_rules":"nope","results":[{"pass":"yes"},7]}`))
	require.NoError(t, err)

	assert.False(t, v.OverallPass)
	assert.False(t, v.LevelDeclared)
	assert.False(t, v.RulesDeclared)
	assert.Equal(t, 3, v.LevelOr(3))
	assert.Equal(t, []Result{{Rule: unlabeledRule, Pass: true}, {Rule: unlabeledRule}}, v.Results)
}

func TestDecodeLooseFlags(t *testing.T) {
	for raw, want := range map[string]bool{
		`{"overall_pass":1}`:     true,
		`{"overall_pass":0}`:     false,
		`{"overall_pass":""}`:    false,
		`{"overall_pass":"no"}`:  true,
		`{"overall_pass":null}`:  false,
		`{"overall_pass":false}`: false,
	} {
		v, err := Decode([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, want, v.OverallPass, raw)
	}
}

func TestDecodeNullLevelIsAbsent(t *testing.T) {
	v, err := Decode([]byte(`{"level":null,"updated_rules":[]}`))
	require.NoError(t, err)
	assert.False(t, v.LevelDeclared)
	assert.True(t, v.RulesDeclared)
	assert.Equal(t, 0, v.LevelOr(len(v.UpdatedRules)))
}

func TestDecodeFloorsLevel(t *testing.T) {
	v, err := Decode([]byte(`{"level":3.9}`))
	require.NoError(t, err)
	assert.Equal(t, 3, v.Level)
}

func TestDecodeRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{``, `null`, `[]`, `"text"`, `{broken`} {
		_, err := Decode([]byte(raw))
		require.Error(t, err, "input %q", raw)
		assert.Equal(t, http.StatusBadGateway, StatusOf(err), "input %q", raw)
	}
}

func TestUpstreamStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, StatusOf(Upstream(http.StatusBadRequest, "bad", nil)))
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(Upstream(http.StatusServiceUnavailable, "down", nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))

	cause := errors.New("boom")
	err := Upstream(http.StatusGatewayTimeout, "slow", cause)
	assert.ErrorIs(t, err, cause)
}

func TestSanitizeJSONText(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"  {\"a\":1}\n":           `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```{\"a\":1}```":         `{"a":1}`,
		"```JSON {\"a\":1} ```":   `{"a":1}`,
		"":                        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeJSONText(in), "input %q", in)
	}
}

func TestBuildContentsPrimesJudge(t *testing.T) {
	contents := buildContents(`{"password":"","rules":[]}`)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, primerReply, contents[1].Parts[0].Text)
	assert.Equal(t, `{"password":"","rules":[]}`, contents[2].Parts[0].Text)
}
