package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberAcceptsNumbersAndNumericStrings(t *testing.T) {
	var body struct {
		A *Number `json:"a"`
		B *Number `json:"b"`
		C *Number `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12.5,"b":" 7 ","c":null}`), &body))
	assert.Equal(t, 12.5, *body.A.Float())
	assert.Equal(t, 7.0, *body.B.Float())
	assert.Nil(t, body.C.Float())
}

func TestNumberRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`"abc"`, `true`, `"NaN"`, `"Inf"`, `{}`} {
		var n Number
		assert.Error(t, json.Unmarshal([]byte(raw), &n), "input %s", raw)
	}
}
