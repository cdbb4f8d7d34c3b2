package models

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrNotANumber = errors.New("not a finite number")

// Number is a float that also accepts numeric strings ("12.5"), which is
// how browsers tend to send form-derived values.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		unquoted, err := strconv.Unquote(string(data))
		if err != nil {
			return ErrNotANumber
		}
		data = []byte(strings.TrimSpace(unquoted))
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrNotANumber
	}
	*n = Number(v)
	return nil
}

// Float returns nil when n is nil.
func (n *Number) Float() *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}
